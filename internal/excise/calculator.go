package excise

import (
	"github.com/shopspring/decimal"
)

// Input carries the attributes excise depends on. Price and discount never
// influence excise.
type Input struct {
	Category     Category
	ABV          decimal.Decimal
	VolumeLiters decimal.Decimal
	Quantity     int64
}

// Amount is a computed excise value. Total is exact; TotalRounded and PerUnit
// are the rounded figures exposed to callers.
type Amount struct {
	Total        decimal.Decimal
	TotalRounded decimal.Decimal
	PerUnit      decimal.Decimal
	Unresolved   bool
}

// Calculator computes excise amounts against a rate table.
type Calculator struct {
	Table *RateTable
}

// Compute returns the excise for the input. Unresolved categories (or a
// category missing from the table) yield zero with Unresolved set.
func (c Calculator) Compute(in Input) Amount {
	spec, ok := c.Table.RateFor(in.Category)
	if !ok {
		return Amount{Total: decimal.Zero, TotalRounded: decimal.Zero, PerUnit: decimal.Zero, Unresolved: true}
	}
	if in.Quantity <= 0 || !in.VolumeLiters.IsPositive() {
		return Amount{Total: decimal.Zero, TotalRounded: decimal.Zero, PerUnit: decimal.Zero}
	}
	liters := in.VolumeLiters.Mul(decimal.NewFromInt(in.Quantity))
	abv := in.ABV
	if abv.IsNegative() {
		abv = decimal.Zero
	}

	// Shift(-2) converts liters to hectoliters and percent to a fraction exactly.
	var total decimal.Decimal
	switch spec.Basis {
	case BasisPureAlcoholHL:
		total = spec.Rate.Mul(abv.Shift(-2)).Mul(liters).Shift(-2)
	case BasisABVPercentHL:
		total = spec.Rate.Mul(abv).Mul(liters).Shift(-2)
	default:
		total = spec.Rate.Mul(liters).Shift(-2)
	}
	return Amount{
		Total:        total,
		TotalRounded: total.Round(2),
		PerUnit:      total.DivRound(decimal.NewFromInt(in.Quantity), 4),
	}
}
