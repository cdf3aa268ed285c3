// Invoice amounts are kept as decimals so sums over many files stay exact.

package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a raw amount cell into a positive decimal.
//
// All whitespace (including non-breaking spaces used as thousands
// separators) is removed and a decimal comma is turned into a point.
// Values still containing letters after normalization, unparseable values
// and values that are not strictly positive return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("15 000,50") -> 15000.5, nil
//	ParseAmount("1200")      -> 1200, nil
//	ParseAmount("12.5 руб")  -> 0, ErrInvalidAmount
//	ParseAmount("-3")        -> 0, ErrInvalidAmount
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals and a space thousands
// separator, e.g. "15 000.50".
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
