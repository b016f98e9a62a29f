package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// zeroDate marks an absent date in the extract.
	zeroDate = "00000000"

	extractDateLayout = "02012006"
	outputDateLayout  = "02/01/2006"
)

var thousand = decimal.NewFromInt(1000)

// NormalizeDate converts a ddMMyyyy value to dd/MM/yyyy. The zero date yields
// nil with no error.
func NormalizeDate(raw string) (*string, error) {
	if raw == zeroDate {
		return nil, nil
	}
	if len(raw) != len(extractDateLayout) || !allDigits(raw) {
		return nil, fmt.Errorf("%w: %q is not an 8-digit ddMMyyyy value", ErrInvalidDate, raw)
	}

	t, err := time.Parse(extractDateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidDate, raw, err)
	}

	out := t.Format(outputDateLayout)
	return &out, nil
}

// NormalizeSignedDecimal parses a decimal that may use trailing-minus
// notation ("123.45-") and may carry stray non-numeric characters.
func NormalizeSignedDecimal(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return decimal.Zero, ErrEmptyValue
	}

	if strings.HasSuffix(cleaned, "-") {
		cleaned = "-" + cleaned[:len(cleaned)-1]
	}

	cleaned = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	return d, nil
}

// NormalizeScaledAmount parses an amount field whose whole-number encoding is
// in thousandths: "1000" means 1.000 while "1000.50" is taken as written.
// The result is rounded to three places.
func NormalizeScaledAmount(raw string) (decimal.Decimal, error) {
	d, err := NormalizeSignedDecimal(raw)
	if err != nil {
		return decimal.Zero, err
	}

	if d.IsInteger() {
		d = d.Div(thousand)
	}
	return d.Round(3), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
