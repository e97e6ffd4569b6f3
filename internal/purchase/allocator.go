package purchase

import (
	"fmt"
	"math"
)

// AllocationInput carries everything the landed cost formula needs for one
// line. TotalOrderedQuantity is the sum of ordered quantities across ALL
// items of the order, not just this line.
type AllocationInput struct {
	ChinaPrice           float64
	ExchangeRate         float64
	Quantity             float64
	LostQuantity         float64
	ShippingCost         float64
	ExtraCostGlobal      float64
	TotalOrderedQuantity float64
}

// Allocation is the result of one landed cost run.
type Allocation struct {
	BaseCost          float64
	AllocatedExtra    float64
	TotalLineCost     float64
	EffectiveQuantity float64
	FinalUnitCost     float64
}

// Allocate computes the per-effective-unit landed cost for a line.
//
// Shipping is treated as a flat per-line amount. The legacy system also had
// a code path multiplying shipping_cost by quantity on completion; the flat
// reading matches the documented costing sheet and is the one implemented
// here. Loss cost is always absorbed by surviving units: the divisor is the
// effective quantity, never the ordered quantity.
func Allocate(in AllocationInput) (Allocation, error) {
	if in.ExchangeRate <= 0 {
		return Allocation{}, fmt.Errorf("%w: exchange rate must be > 0", ErrInvalidAllocationInput)
	}
	if in.ChinaPrice < 0 || in.ShippingCost < 0 || in.ExtraCostGlobal < 0 {
		return Allocation{}, fmt.Errorf("%w: negative cost component", ErrInvalidAllocationInput)
	}
	if in.Quantity <= 0 {
		return Allocation{}, fmt.Errorf("%w: quantity must be > 0", ErrInvalidAllocationInput)
	}
	if in.LostQuantity < 0 || in.LostQuantity > in.Quantity {
		return Allocation{}, fmt.Errorf("%w: lost quantity exceeds ordered quantity", ErrInvalidAllocationInput)
	}
	if in.TotalOrderedQuantity <= 0 {
		return Allocation{}, fmt.Errorf("%w: order has no ordered quantity to distribute extra cost over", ErrInvalidAllocationInput)
	}

	baseCost := in.ChinaPrice * in.ExchangeRate * in.Quantity
	extraPerUnit := in.ExtraCostGlobal / in.TotalOrderedQuantity
	allocatedExtra := extraPerUnit * in.Quantity
	totalLineCost := baseCost + in.ShippingCost + allocatedExtra
	effectiveQty := in.Quantity - in.LostQuantity

	result := Allocation{
		BaseCost:          baseCost,
		AllocatedExtra:    allocatedExtra,
		TotalLineCost:     totalLineCost,
		EffectiveQuantity: effectiveQty,
	}
	if effectiveQty > 0 {
		result.FinalUnitCost = roundCurrency(totalLineCost / effectiveQty)
	}
	return result, nil
}

// roundCurrency rounds to two decimal places at the currency boundary.
func roundCurrency(v float64) float64 {
	return math.Round(v*100) / 100
}
