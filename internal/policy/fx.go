package policy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"issuer-core/internal/domain"
)

// Converter is a static rate table into the single base currency the ledger
// is denominated in. No live sourcing: rates change by redeploying.
type Converter struct {
	base  string
	rates map[string]decimal.Decimal
}

func NewConverter(base string, rates map[string]decimal.Decimal) *Converter {
	norm := make(map[string]decimal.Decimal, len(rates))
	for cur, r := range rates {
		norm[strings.ToUpper(strings.TrimSpace(cur))] = r
	}
	return &Converter{base: strings.ToUpper(strings.TrimSpace(base)), rates: norm}
}

func (c *Converter) Base() string { return c.base }

// Rate returns the multiplier from one currency into another. Only
// conversions into the base currency are supported. An unknown pair is a
// hard ErrFxUnavailable, never a silent 1.0; callers must decline.
func (c *Converter) Rate(from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if to != c.base {
		return decimal.Decimal{}, fmt.Errorf("%w: %s->%s", domain.ErrFxUnavailable, from, to)
	}
	r, ok := c.rates[from]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s->%s", domain.ErrFxUnavailable, from, to)
	}
	return r, nil
}

// DefaultConverter quotes a handful of majors into USD.
func DefaultConverter() *Converter {
	return NewConverter("USD", map[string]decimal.Decimal{
		"EUR": d("1.08"),
		"GBP": d("1.27"),
		"JPY": d("0.0067"),
		"CAD": d("0.73"),
		"AUD": d("0.65"),
	})
}
