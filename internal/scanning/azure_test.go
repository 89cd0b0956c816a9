package scanning

import (
	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func ocrLine(words ...string) computervision.OcrLine {
	ws := make([]computervision.OcrWord, 0, len(words))
	for _, w := range words {
		ws = append(ws, computervision.OcrWord{Text: &w})
	}
	return computervision.OcrLine{Words: &ws}
}

var _ = Describe("ocrResultText", func() {
	It("writes one line per OCR line across regions", func() {
		header := []computervision.OcrLine{ocrLine("Corner", "Market")}
		body := []computervision.OcrLine{ocrLine("Milk", "3.49"), ocrLine("Total", "3.49")}
		regions := []computervision.OcrRegion{{Lines: &header}, {Lines: &body}}

		text := ocrResultText(computervision.OcrResult{Regions: &regions})
		Expect(text).To(Equal("Corner Market\nMilk 3.49\nTotal 3.49\n"))
	})

	It("handles an empty result", func() {
		Expect(ocrResultText(computervision.OcrResult{})).To(BeEmpty())
	})
})

var _ = Describe("NewAzure", func() {
	It("requires an endpoint and key", func() {
		_, err := NewAzure("", "")
		Expect(err).To(HaveOccurred())
	})

	It("builds a client", func() {
		a, err := NewAzure("https://example.cognitiveservices.azure.com", "key")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Close()).To(Succeed())
	})
})
