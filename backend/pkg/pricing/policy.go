package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	PolicyGST             = "gst"
	PolicyHandlingPercent = "handling_percent"
)

// Surcharges are the unrounded amounts a policy adds on top of the subtotal.
type Surcharges struct {
	SGST     decimal.Decimal
	CGST     decimal.Decimal
	Handling decimal.Decimal
}

// Policy decides which surcharges apply to a subtotal.
type Policy interface {
	Name() string
	Surcharges(subtotal decimal.Decimal) Surcharges
}

// GSTPolicy charges state and central GST on the subtotal plus a flat
// handling fee.
type GSTPolicy struct {
	SGSTRate     decimal.Decimal
	CGSTRate     decimal.Decimal
	FlatHandling decimal.Decimal
}

// NewGSTPolicy returns the venue default: 2.5% SGST, 2.5% CGST, 4.00 handling.
func NewGSTPolicy() GSTPolicy {
	return GSTPolicy{
		SGSTRate:     decimal.RequireFromString("0.025"),
		CGSTRate:     decimal.RequireFromString("0.025"),
		FlatHandling: decimal.NewFromInt(4),
	}
}

func (p GSTPolicy) Name() string { return PolicyGST }

func (p GSTPolicy) Surcharges(subtotal decimal.Decimal) Surcharges {
	return Surcharges{
		SGST:     subtotal.Mul(p.SGSTRate),
		CGST:     subtotal.Mul(p.CGSTRate),
		Handling: p.FlatHandling,
	}
}

// HandlingPercentPolicy charges a single percentage handling fee and no tax lines.
type HandlingPercentPolicy struct {
	Rate decimal.Decimal
}

// NewHandlingPercentPolicy returns a 4% handling charge policy.
func NewHandlingPercentPolicy() HandlingPercentPolicy {
	return HandlingPercentPolicy{Rate: decimal.RequireFromString("0.04")}
}

func (p HandlingPercentPolicy) Name() string { return PolicyHandlingPercent }

func (p HandlingPercentPolicy) Surcharges(subtotal decimal.Decimal) Surcharges {
	return Surcharges{
		SGST:     decimal.Zero,
		CGST:     decimal.Zero,
		Handling: subtotal.Mul(p.Rate),
	}
}

// PolicyByName resolves the PRICING_POLICY setting. An empty name selects the GST policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyGST:
		return NewGSTPolicy(), nil
	case PolicyHandlingPercent:
		return NewHandlingPercentPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown pricing policy %q", name)
	}
}
