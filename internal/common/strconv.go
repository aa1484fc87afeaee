package common

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AtoiDefault converts the provided string to an integer falling back to the default when parsing fails.
func AtoiDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

// ParseLocaleDecimal parses numbers as they come out of invoices: comma or dot
// decimal separator, grouping spaces, trailing OCR dots and unit or currency
// decorations ("€12,50", "0,75 l", "13.5%"). Plain numbers, exponent form
// included ("7.5e-1"), are read as is. It reports false when nothing numeric
// remains.
func ParseLocaleDecimal(raw string) (decimal.Decimal, bool) {
	text := strings.TrimSpace(raw)
	text = strings.TrimRight(text, ". ")
	if text == "" {
		return decimal.Zero, false
	}
	if value, err := decimal.NewFromString(text); err == nil {
		return value, true
	}
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteByte('.')
		case r == '-' && b.Len() == 0 && i < len(text)-1:
			b.WriteByte('-')
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// FormatFixed renders d with exactly places fractional digits.
func FormatFixed(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

// FormatMinPlaces renders d with at least places fractional digits, keeping
// any additional precision d already carries.
func FormatMinPlaces(d decimal.Decimal, places int32) string {
	if exp := -d.Exponent(); exp > places {
		return d.StringFixed(exp)
	}
	return d.StringFixed(places)
}

var percentToken = regexp.MustCompile(`-?\d+(?:[.,]\d*)?\s*%`)

// StripPercentages removes "38%" style tokens, so an OCR volume cell such as
// "0.7 40%" keeps only its volume.
func StripPercentages(raw string) string {
	return strings.TrimSpace(percentToken.ReplaceAllString(raw, " "))
}
