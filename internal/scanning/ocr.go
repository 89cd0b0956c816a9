package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentPages bounds how many pages of one document are recognized at once
const maxConcurrentPages = 4

// OCRScanner implements Scanner by running a Recognizer over every page of an
// upload and feeding the combined text to Extract
type OCRScanner struct {
	recognizer Recognizer
	opts       conversionOptions
	timeout    time.Duration
}

// OCROption configures an OCRScanner
type OCROption func(*OCRScanner)

// WithMaxPages caps the number of PDF pages that get scanned (0 means no limit)
func WithMaxPages(n int) OCROption {
	return func(s *OCRScanner) {
		s.opts.maxPages = n
	}
}

// WithEnhancement turns on contrast/sharpen pre-processing before OCR
func WithEnhancement(enabled bool) OCROption {
	return func(s *OCRScanner) {
		s.opts.enhance = enabled
	}
}

// WithTimeout bounds the total time spent recognizing one document
func WithTimeout(d time.Duration) OCROption {
	return func(s *OCRScanner) {
		s.timeout = d
	}
}

// NewOCRScanner creates a Scanner backed by the given OCR engine
func NewOCRScanner(recognizer Recognizer, opts ...OCROption) *OCRScanner {
	s := &OCRScanner{
		recognizer: recognizer,
		opts:       conversionOptions{maxPages: DefaultMaxPDFPages},
		timeout:    2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanReceipt converts the upload to page images, OCRs them and extracts a guess
func (s *OCRScanner) ScanReceipt(ctx context.Context, data []byte, contentType string) (*ReceiptData, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	pages, err := prepareImages(data, contentType, s.opts)
	if err != nil {
		return nil, err
	}

	text, err := s.recognizePages(ctx, pages)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Recognized receipt text", "pages", len(pages), "chars", len(text))
	return Extract(text), nil
}

// recognizePages OCRs pages concurrently and joins the results in page order
func (s *OCRScanner) recognizePages(ctx context.Context, pages [][]byte) (string, error) {
	texts := make([]string, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPages)
	for i, page := range pages {
		g.Go(func() error {
			text, err := s.recognizer.Recognize(gctx, page)
			if err != nil {
				return fmt.Errorf("recognizing page %d: %w", i+1, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, text := range texts {
		b.WriteString(text)
		if text != "" && !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// Close closes the underlying recognizer
func (s *OCRScanner) Close() error {
	return s.recognizer.Close()
}
