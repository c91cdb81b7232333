// Package money computes order totals in integer minor units.
//
// All amounts are Cents. Tax rates are decimal percentages ("10" means 10%)
// and are only ever applied here, so every mutation path shares one formula.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an amount in the smallest currency unit.
type Cents int64

var (
	ErrNegativeQuantity = errors.New("quantity must not be negative")
	ErrNegativePrice    = errors.New("price must not be negative")
	ErrNegativeTip      = errors.New("tip must not be negative")
	ErrNegativeRate     = errors.New("rate must not be negative")
	ErrInvalidAmount    = errors.New("invalid amount")
)

var hundred = decimal.NewFromInt(100)

// Line is the pricing input for one order row.
type Line struct {
	UnitPrice   Cents
	Quantity    int
	AddonPrices []Cents
}

// Totals is the derived money state of an order.
type Totals struct {
	Subtotal Cents
	Tax      Cents
	Tip      Cents
	Total    Cents
}

// LineSubtotal returns quantity * (unit price + sum of addon prices).
func LineSubtotal(l Line) (Cents, error) {
	if l.Quantity < 0 {
		return 0, ErrNegativeQuantity
	}
	if l.UnitPrice < 0 {
		return 0, ErrNegativePrice
	}
	each := l.UnitPrice
	for _, p := range l.AddonPrices {
		if p < 0 {
			return 0, ErrNegativePrice
		}
		each += p
	}
	return each * Cents(l.Quantity), nil
}

// Subtotal sums LineSubtotal over lines.
func Subtotal(lines []Line) (Cents, error) {
	var sum Cents
	for i, l := range lines {
		s, err := LineSubtotal(l)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", i, err)
		}
		sum += s
	}
	return sum, nil
}

// Tax applies ratePercent to subtotal, rounding half-up to whole cents.
func Tax(subtotal Cents, ratePercent decimal.Decimal) (Cents, error) {
	if subtotal < 0 {
		return 0, ErrNegativePrice
	}
	if ratePercent.IsNegative() {
		return 0, ErrNegativeRate
	}
	return percentOf(subtotal, ratePercent), nil
}

// Total returns subtotal + tax + tip.
func Total(subtotal, tax, tip Cents) (Cents, error) {
	if tip < 0 {
		return 0, ErrNegativeTip
	}
	if subtotal < 0 || tax < 0 {
		return 0, ErrNegativePrice
	}
	return subtotal + tax + tip, nil
}

// Compute runs the full calculation for a set of lines.
func Compute(lines []Line, ratePercent decimal.Decimal, tip Cents) (Totals, error) {
	sub, err := Subtotal(lines)
	if err != nil {
		return Totals{}, err
	}
	tax, err := Tax(sub, ratePercent)
	if err != nil {
		return Totals{}, err
	}
	total, err := Total(sub, tax, tip)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Subtotal: sub, Tax: tax, Tip: tip, Total: total}, nil
}

// TipFromPercent returns pct percent of base, rounded half-up.
func TipFromPercent(base Cents, pct decimal.Decimal) (Cents, error) {
	if pct.IsNegative() {
		return 0, ErrNegativeTip
	}
	if base < 0 {
		return 0, ErrNegativePrice
	}
	return percentOf(base, pct), nil
}

// percentOf is only called with non-negative inputs, where decimal's
// half-away-from-zero rounding is half-up.
func percentOf(base Cents, pct decimal.Decimal) Cents {
	v := decimal.NewFromInt(int64(base)).Mul(pct).Div(hundred).Round(0)
	return Cents(v.IntPart())
}

// Format renders c as a fixed two-decimal string, e.g. 1250 -> "12.50".
func Format(c Cents) string {
	return decimal.New(int64(c), -2).StringFixed(2)
}

// Parse reads a decimal string such as "12.5" into cents. More than two
// fractional digits is rejected rather than rounded.
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	shifted := d.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has sub-cent precision", ErrInvalidAmount, s)
	}
	return Cents(shifted.IntPart()), nil
}

// String implements fmt.Stringer.
func (c Cents) String() string {
	return Format(c)
}
