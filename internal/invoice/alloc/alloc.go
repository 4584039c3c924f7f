// Package alloc spreads invoice-level charges (shipping, card fees,
// tax, other fees, minus discounts) across every unit on the invoice.
// All math is in integer cents. The per-unit extra is rounded half-up
// once and applied uniformly; the final unit absorbs the rounding
// remainder so the allocated total always reconciles exactly with
// subtotal plus extras.
package alloc

import (
	"errors"

	"github.com/spokeworks/chainline/pkg/money"
)

var (
	ErrNoUnits         = errors.New("invoice has no units to allocate")
	ErrInvalidQuantity = errors.New("line quantity must be positive")
)

// Line is one invoice line as the allocator sees it.
type Line struct {
	Quantity int
	UnitCost money.Cents
}

// Extras are the invoice-level charges to spread across units.
type Extras struct {
	Shipping money.Cents
	Discount money.Cents
	CardFees money.Cents
	Tax      money.Cents
	Other    money.Cents
}

// Total is shipping plus fees plus tax, less discount. It may be
// negative when a discount exceeds the charges.
func (e Extras) Total() money.Cents {
	return e.Shipping + e.CardFees + e.Tax + e.Other - e.Discount
}

// LineAllocation is the allocation result for a single line.
type LineAllocation struct {
	// AllocatedUnitCost is the uniform per-unit landed cost for the
	// line before remainder adjustment.
	AllocatedUnitCost money.Cents
	// UnitCosts has Quantity entries. They all equal
	// AllocatedUnitCost except possibly the very last unit of the
	// invoice, which absorbs the rounding remainder.
	UnitCosts []money.Cents
}

// Allocate computes landed per-unit costs. It is pure: callers may run
// it repeatedly as a live preview without touching stored state.
func Allocate(lines []Line, extras Extras) ([]LineAllocation, error) {
	totalUnits := 0
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		totalUnits += line.Quantity
	}
	if totalUnits == 0 {
		return nil, ErrNoUnits
	}

	totalExtras := extras.Total()
	perUnitExtra := totalExtras.DivRound(int64(totalUnits))
	remainder := totalExtras - perUnitExtra.Mul(int64(totalUnits))

	out := make([]LineAllocation, len(lines))
	for i, line := range lines {
		base := line.UnitCost + perUnitExtra
		costs := make([]money.Cents, line.Quantity)
		for j := range costs {
			costs[j] = base
		}
		if i == len(lines)-1 {
			costs[line.Quantity-1] += remainder
		}
		out[i] = LineAllocation{
			AllocatedUnitCost: base,
			UnitCosts:         costs,
		}
	}

	return out, nil
}
