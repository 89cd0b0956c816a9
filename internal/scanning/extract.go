package scanning

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultExpenseName is used when the OCR text has no non-blank line
const DefaultExpenseName = "Scanned Receipt"

// moneyPattern matches an optional $, ₹ or € symbol, optional whitespace and a
// number with an optional two-digit fraction after a dot or comma.
var moneyPattern = regexp.MustCompile(`[$₹€]?\s*(\d+(?:[.,]\d{2})?)`)

// amountKeywords mark the line holding the receipt total. Matching is plain
// substring containment, so "subtotal" and "totally" match as well.
var amountKeywords = []string{"total", "amount"}

// Extract guesses an expense name and amount from raw OCR text. It never fails:
// when no signal is found the name falls back to DefaultExpenseName and the
// amount to 0.
func Extract(text string) *ReceiptData {
	lines := splitLines(text)
	return &ReceiptData{
		Name:    guessName(lines),
		Amount:  guessAmount(lines, text),
		RawText: text,
	}
}

// ExtractLines is Extract for text that is already split into lines
func ExtractLines(lines []string) *ReceiptData {
	text := strings.Join(lines, "\n")
	return &ReceiptData{
		Name:    guessName(lines),
		Amount:  guessAmount(lines, text),
		RawText: text,
	}
}

// guessName returns the first non-blank line, trimmed
func guessName(lines []string) string {
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return DefaultExpenseName
}

// guessAmount scans from the bottom for a keyword line carrying a number and
// returns the largest number on it. Keyword lines without numbers are skipped.
// A zero total counts as no signal. Without a usable keyword line the largest
// number anywhere in the text wins.
func guessAmount(lines []string, text string) float64 {
	for i := len(lines) - 1; i >= 0; i-- {
		if !hasAmountKeyword(lines[i]) {
			continue
		}
		if amount, ok := maxAmount(lines[i]); ok {
			if amount > 0 {
				return amount
			}
			break
		}
	}

	if amount, ok := maxAmount(text); ok {
		return amount
	}
	return 0
}

func hasAmountKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, keyword := range amountKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// maxAmount returns the largest monetary value in s. The bool is false when s
// holds no parseable token.
func maxAmount(s string) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, m := range moneyPattern.FindAllStringSubmatchIndex(s, -1) {
		if precededByForeignCurrency(s, m[0]) {
			continue
		}
		// Comma thousands separators are misread as decimals here ("1,234.56").
		token := strings.Replace(s[m[2]:m[3]], ",", ".", 1)
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			continue
		}
		if !found || value > best {
			best = value
			found = true
		}
	}
	return best, found
}

// precededByForeignCurrency reports whether the match starting at start sits
// right after a currency symbol the pattern does not recognize, such as £ or ¥.
func precededByForeignCurrency(s string, start int) bool {
	if r, _ := utf8.DecodeRuneInString(s[start:]); strings.ContainsRune("$₹€", r) {
		return false
	}
	before := strings.TrimRightFunc(s[:start], unicode.IsSpace)
	if before == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(before)
	return unicode.Is(unicode.Sc, r)
}

// splitLines breaks OCR output on line and page boundaries. Tesseract ends
// every page with a form feed.
func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
			return true
		}
		return false
	})
}
