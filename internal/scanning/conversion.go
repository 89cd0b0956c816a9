package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// pdfRenderDPI is the resolution PDF pages are rasterized at before OCR
	pdfRenderDPI = 300

	// DefaultMaxPDFPages limits how many pages of an uploaded PDF get scanned
	DefaultMaxPDFPages = 10
)

func init() {
	// pdfcpu would otherwise write a config file under the user's home
	api.DisableConfigDir()
}

// conversionOptions controls how uploads are turned into OCR-ready pages
type conversionOptions struct {
	maxPages int
	enhance  bool
}

// pdfPageCount validates the PDF structure and returns its page count
func pdfPageCount(pdfData []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	count, err := api.PageCount(bytes.NewReader(pdfData), conf)
	if err != nil {
		return 0, fmt.Errorf("counting PDF pages: %w", err)
	}
	return count, nil
}

// pdfToImages renders every page of a PDF
func pdfToImages(pdfData []byte, maxPages int) ([]image.Image, error) {
	count, err := pdfPageCount(pdfData)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	if maxPages > 0 && count > maxPages {
		return nil, fmt.Errorf("PDF has %d pages, at most %d are supported", count, maxPages)
	}

	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]image.Image, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		img, err := doc.ImageDPI(n, pdfRenderDPI)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", n+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// decodeImage decodes any supported still image, including HEIC/HEIF
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// enhanceForOCR boosts contrast and sharpness, which helps on faded thermal paper
func enhanceForOCR(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 30)
	out = imaging.Sharpen(out, 1.5)
	out = imaging.AdjustBrightness(out, 10)
	return imaging.AdjustGamma(out, 1.2)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// normalizeMimeType lowercases and trims a content type, defaulting to JPEG
func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

// prepareImages turns an upload into one PNG per page, in page order
func prepareImages(data []byte, contentType string, opts conversionOptions) ([][]byte, error) {
	mimeType := normalizeMimeType(contentType)

	if mimeType == "image/png" && !opts.enhance {
		return [][]byte{data}, nil
	}

	var pages []image.Image
	if mimeType == "application/pdf" {
		rendered, err := pdfToImages(data, opts.maxPages)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to images: %w", err)
		}
		pages = rendered
	} else {
		img, err := decodeImage(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		pages = []image.Image{img}
	}

	out := make([][]byte, 0, len(pages))
	for _, page := range pages {
		if opts.enhance {
			page = enhanceForOCR(page)
		}
		encoded, err := encodePNG(page)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return out, nil
}
