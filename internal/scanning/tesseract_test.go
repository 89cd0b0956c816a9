package scanning

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// writeFakeTesseract installs a shell script standing in for tesseract
func writeFakeTesseract(dir, body string) string {
	path := filepath.Join(dir, "tesseract")
	Expect(os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)).To(Succeed())
	return path
}

var _ = Describe("Tesseract", func() {
	var (
		dir    string
		script string
		tess   *Tesseract
		text   string
		err    error
	)

	BeforeEach(func() {
		if runtime.GOOS == "windows" {
			Skip("fake tesseract is a shell script")
		}
		dir = GinkgoT().TempDir()
	})

	JustBeforeEach(func() {
		var newErr error
		tess, newErr = NewTesseract(writeFakeTesseract(dir, script), "deu")
		Expect(newErr).NotTo(HaveOccurred())
		text, err = tess.Recognize(context.Background(), []byte("PNGDATA"))
	})

	When("tesseract succeeds", func() {
		BeforeEach(func() {
			script = `input=$(cat)
echo "args: $*"
echo "input: $input"
echo "Total 9.99"
`
		})

		It("passes stdin, stdout and the language", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("args: stdin stdout -l deu"))
		})

		It("pipes the image on stdin", func() {
			Expect(text).To(ContainSubstring("input: PNGDATA"))
		})

		It("returns stdout", func() {
			Expect(Extract(text).Amount).To(Equal(9.99))
		})
	})

	When("tesseract fails", func() {
		BeforeEach(func() {
			script = `cat >/dev/null
echo "Error opening data file" >&2
exit 1
`
		})

		It("includes stderr in the error", func() {
			Expect(err).To(MatchError(ContainSubstring("Error opening data file")))
			Expect(text).To(BeEmpty())
		})
	})
})

var _ = Describe("NewTesseract", func() {
	It("fails when the executable cannot be found", func() {
		_, err := NewTesseract(filepath.Join(GinkgoT().TempDir(), "missing-tesseract"), "")
		Expect(err).To(MatchError(ContainSubstring("finding tesseract executable")))
	})
})
