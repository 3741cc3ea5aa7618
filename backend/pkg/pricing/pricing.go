package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitFactor converts a currency amount to its smallest unit (rupees to paise).
const MinorUnitFactor = 100

var (
	ErrEmptyCart   = errors.New("cart is empty")
	ErrInvalidLine = errors.New("invalid cart line")
)

// CartLine is a single entry of the patron's cart at checkout time.
type CartLine struct {
	ItemID    string          `json:"item_id" binding:"required"`
	Name      string          `json:"name" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	ImageRef  string          `json:"image_ref,omitempty"`
}

// LineTotal returns unitPrice x quantity, unrounded.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Breakdown is the priced view of a cart. Every field is already rounded
// with Round, and Total is what the gateway is charged.
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	SGST           decimal.Decimal `json:"sgst"`
	CGST           decimal.Decimal `json:"cgst"`
	HandlingCharge decimal.Decimal `json:"handling_charge"`
	Total          decimal.Decimal `json:"total"`
	Policy         string          `json:"policy"`
}

// AmountMinor is the gateway amount for this breakdown.
func (b Breakdown) AmountMinor() int64 {
	return ToMinorUnits(b.Total)
}

// Round is the one rounding rule used for display and for charging:
// half-up to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToMinorUnits rounds the amount and applies the minor-unit factor. This is
// the only place in the codebase where that factor is applied.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return Round(amount).Mul(decimal.NewFromInt(MinorUnitFactor)).IntPart()
}

// FromMinorUnits converts a stored minor-unit amount back to a decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Validate checks every line before pricing.
func Validate(lines []CartLine) error {
	if len(lines) == 0 {
		return ErrEmptyCart
	}
	for i, l := range lines {
		if l.Quantity < 1 {
			return fmt.Errorf("%w: line %d quantity %d", ErrInvalidLine, i, l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d negative price", ErrInvalidLine, i)
		}
		if l.ItemID == "" {
			return fmt.Errorf("%w: line %d missing item id", ErrInvalidLine, i)
		}
	}
	return nil
}

// Subtotal sums unitPrice x quantity over all lines.
func Subtotal(lines []CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// ComputeBreakdown prices the cart with the given policy. It is pure: the
// same lines and policy always yield the same breakdown. The total is the
// unrounded subtotal plus surcharges, rounded once. The displayed lines
// always add up to Total: the rounding remainder is carried by the CGST
// line, or by the handling charge when no CGST applies.
func ComputeBreakdown(lines []CartLine, policy Policy) Breakdown {
	subtotal := Subtotal(lines)
	s := policy.Surcharges(subtotal)

	total := Round(subtotal.Add(s.SGST).Add(s.CGST).Add(s.Handling))

	b := Breakdown{
		Subtotal:       Round(subtotal),
		SGST:           Round(s.SGST),
		CGST:           Round(s.CGST),
		HandlingCharge: Round(s.Handling),
		Total:          total,
		Policy:         policy.Name(),
	}

	remainder := total.Sub(b.Subtotal).Sub(b.SGST).Sub(b.CGST).Sub(b.HandlingCharge)
	switch {
	case remainder.IsZero():
	case !s.CGST.IsZero():
		b.CGST = b.CGST.Add(remainder)
	default:
		b.HandlingCharge = b.HandlingCharge.Add(remainder)
	}
	return b
}
