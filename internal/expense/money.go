package expense

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseAmountCents converts a user-entered decimal string to cents.
//
// It accepts a dot or comma decimal separator and an optional leading $, ₹ or €
// symbol, and rounds half-up on the third decimal. Negative values are rejected;
// zero is allowed because scanned receipts without a total come back as 0.
func parseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$₹€ ")
	if s == "" {
		return 0, fmt.Errorf("%w: amount is required", ErrInvalidInput)
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: amount must be a positive number", ErrInvalidInput)
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrInvalidInput, s)
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: invalid amount %q", ErrInvalidInput, s)
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || iv > math.MaxInt32 {
		return 0, fmt.Errorf("%w: amount %q is too large", ErrInvalidInput, s)
	}

	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
		}
		if len(fracPart) > 2 && fracPart[2] >= '5' {
			frac++
		}
	}
	return iv*100 + frac, nil
}

// centsToAmount converts cents to a decimal amount for JSON responses
func centsToAmount(cents int64) float64 {
	return float64(cents) / 100
}

// amountToCents converts a scanned amount to cents, rounding to the nearest cent
func amountToCents(amount float64) int64 {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return int64(math.Round(amount * 100))
}

// formatCents renders cents as a plain two-decimal string
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
