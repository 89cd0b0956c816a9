package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 12), B: 128, A: 255})
		}
	}
	return img
}

func encodeTestPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func encodeTestJPEG() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("prepareImages", func() {
	var (
		data        []byte
		contentType string
		opts        conversionOptions
		pages       [][]byte
		err         error
	)

	BeforeEach(func() {
		opts = conversionOptions{maxPages: DefaultMaxPDFPages}
	})

	JustBeforeEach(func() {
		pages, err = prepareImages(data, contentType, opts)
	})

	When("the upload is a PNG", func() {
		BeforeEach(func() {
			data = encodeTestPNG()
			contentType = "image/png"
		})

		It("passes the bytes through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(1))
			Expect(pages[0]).To(Equal(data))
		})

		When("enhancement is on", func() {
			BeforeEach(func() {
				opts.enhance = true
			})

			It("re-encodes a grayscale PNG of the same size", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(pages).To(HaveLen(1))

				img, format, decodeErr := image.Decode(bytes.NewReader(pages[0]))
				Expect(decodeErr).NotTo(HaveOccurred())
				Expect(format).To(Equal("png"))
				Expect(img.Bounds().Dx()).To(Equal(40))
				Expect(img.Bounds().Dy()).To(Equal(20))

				r, g, b, _ := img.At(10, 10).RGBA()
				Expect(r).To(Equal(g))
				Expect(g).To(Equal(b))
			})
		})
	})

	When("the upload is a JPEG with parameters in the content type", func() {
		BeforeEach(func() {
			data = encodeTestJPEG()
			contentType = " Image/JPEG; charset=binary"
		})

		It("converts it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(1))
			_, format, decodeErr := image.DecodeConfig(bytes.NewReader(pages[0]))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			data = encodeTestJPEG()
			contentType = ""
		})

		It("sniffs the image format", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(1))
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
			contentType = "image/jpeg"
		})

		It("returns an unsupported format error", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})

	When("the PDF is malformed", func() {
		BeforeEach(func() {
			data = []byte("%PDF-1.4\nthis is not really a pdf")
			contentType = "application/pdf"
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("converting PDF to images")))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	DescribeTable("checks the ftyp brand",
		func(data []byte, expected bool) {
			Expect(isHEICFormat(data)).To(Equal(expected))
		},
		Entry("heic brand", []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"), true),
		Entry("mif1 brand", []byte("\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00"), true),
		Entry("mp4 brand", []byte("\x00\x00\x00\x18ftypisom\x00\x00\x00\x00"), false),
		Entry("too short", []byte("ftyp"), false),
		Entry("png magic", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0d"), false),
	)
})

var _ = Describe("normalizeMimeType", func() {
	DescribeTable("normalizes content types",
		func(input, expected string) {
			Expect(normalizeMimeType(input)).To(Equal(expected))
		},
		Entry("empty", "", "image/jpeg"),
		Entry("upper case", "APPLICATION/PDF", "application/pdf"),
		Entry("with parameters", "image/png; q=1", "image/png"),
		Entry("padded", "  image/heic ", "image/heic"),
	)
})
