package report

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var perMillion = decimal.NewFromInt(1_000_000)

// Pricing holds model prices in US dollars per million tokens.
type Pricing struct {
	InputPerMTok  decimal.Decimal
	OutputPerMTok decimal.Decimal
}

// ParsePricing reads decimal price strings such as "3.00". Empty strings
// mean zero.
func ParsePricing(input, output string) (Pricing, error) {
	var p Pricing
	var err error
	if input != "" {
		if p.InputPerMTok, err = decimal.NewFromString(input); err != nil {
			return Pricing{}, fmt.Errorf("report: input price %q: %w", input, err)
		}
	}
	if output != "" {
		if p.OutputPerMTok, err = decimal.NewFromString(output); err != nil {
			return Pricing{}, fmt.Errorf("report: output price %q: %w", output, err)
		}
	}
	if p.InputPerMTok.IsNegative() || p.OutputPerMTok.IsNegative() {
		return Pricing{}, fmt.Errorf("report: prices must not be negative")
	}
	return p, nil
}

// Cost returns the dollar cost of u.
func (p Pricing) Cost(u TokenUsage) decimal.Decimal {
	in := p.InputPerMTok.Mul(decimal.NewFromInt(int64(u.Input)))
	out := p.OutputPerMTok.Mul(decimal.NewFromInt(int64(u.Output)))
	return in.Add(out).Div(perMillion)
}

// FormatCost renders a cost with six decimal places, e.g. "0.012345".
func FormatCost(d decimal.Decimal) string {
	return d.StringFixed(6)
}
