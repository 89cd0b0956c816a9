package scanning

import (
	"context"
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type closeTrackingRecognizer struct {
	RecognizerFunc
	closed bool
}

func (r *closeTrackingRecognizer) Close() error {
	r.closed = true
	return nil
}

var _ = Describe("OCRScanner", func() {
	var (
		recognizer  RecognizerFunc
		calls       atomic.Int32
		scanner     *OCRScanner
		data        []byte
		contentType string
		result      *ReceiptData
		err         error
	)

	BeforeEach(func() {
		calls.Store(0)
		data = encodeTestPNG()
		contentType = "image/png"
		recognizer = func(ctx context.Context, png []byte) (string, error) {
			calls.Add(1)
			return "Coffee Shop\nLatte 4.50\nTotal 4.50\n", nil
		}
	})

	JustBeforeEach(func() {
		scanner = NewOCRScanner(recognizer)
		result, err = scanner.ScanReceipt(context.Background(), data, contentType)
	})

	When("the recognizer succeeds", func() {
		It("does not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("recognizes the single page once", func() {
			Expect(calls.Load()).To(BeEquivalentTo(1))
		})

		It("extracts the name and amount", func() {
			Expect(result.Name).To(Equal("Coffee Shop"))
			Expect(result.Amount).To(Equal(4.50))
		})

		It("keeps the recognized text", func() {
			Expect(result.RawText).To(Equal("Coffee Shop\nLatte 4.50\nTotal 4.50\n"))
		})
	})

	When("the recognizer finds no text", func() {
		BeforeEach(func() {
			recognizer = func(ctx context.Context, png []byte) (string, error) {
				return "", nil
			}
		})

		It("falls back to the default name and zero", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Name).To(Equal(DefaultExpenseName))
			Expect(result.Amount).To(BeZero())
		})
	})

	When("the recognizer fails", func() {
		BeforeEach(func() {
			recognizer = func(ctx context.Context, png []byte) (string, error) {
				return "", errors.New("engine exploded")
			}
		})

		It("returns the wrapped error", func() {
			Expect(err).To(MatchError(ContainSubstring("recognizing page 1: engine exploded")))
			Expect(result).To(BeNil())
		})
	})

	When("the upload cannot be converted", func() {
		BeforeEach(func() {
			data = []byte("garbage")
			contentType = "image/gif"
		})

		It("never calls the recognizer", func() {
			Expect(err).To(HaveOccurred())
			Expect(calls.Load()).To(BeZero())
		})
	})
})

var _ = Describe("OCRScanner.recognizePages", func() {
	It("joins pages in page order", func() {
		pages := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
		scanner := NewOCRScanner(RecognizerFunc(func(ctx context.Context, png []byte) (string, error) {
			switch string(png) {
			case "1":
				return "Shop", nil
			case "2":
				return "Item 3.00\n", nil
			default:
				return "Total 3.00", nil
			}
		}))

		text, err := scanner.recognizePages(context.Background(), pages)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Shop\nItem 3.00\nTotal 3.00\n"))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		scanner := NewOCRScanner(RecognizerFunc(func(ctx context.Context, png []byte) (string, error) {
			return "", ctx.Err()
		}))

		_, err := scanner.recognizePages(ctx, [][]byte{[]byte("1")})
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("OCRScanner.Close", func() {
	It("closes the recognizer", func() {
		recognizer := &closeTrackingRecognizer{}
		Expect(NewOCRScanner(recognizer).Close()).To(Succeed())
		Expect(recognizer.closed).To(BeTrue())
	})
})

var _ = Describe("NewOCRScanner options", func() {
	It("applies the defaults", func() {
		scanner := NewOCRScanner(RecognizerFunc(nil))
		Expect(scanner.opts.maxPages).To(Equal(DefaultMaxPDFPages))
		Expect(scanner.opts.enhance).To(BeFalse())
	})

	It("applies the options", func() {
		scanner := NewOCRScanner(RecognizerFunc(nil), WithMaxPages(3), WithEnhancement(true), WithTimeout(0))
		Expect(scanner.opts.maxPages).To(Equal(3))
		Expect(scanner.opts.enhance).To(BeTrue())
		Expect(scanner.timeout).To(BeZero())
	})
})
