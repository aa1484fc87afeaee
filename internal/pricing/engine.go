package pricing

import "github.com/shopspring/decimal"

// CurrencyPlaces is the precision of every currency total.
const CurrencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Item describes the priced part of a line item.
type Item struct {
	Qty             int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// Amounts holds the pre- and post-discount value of an item.
type Amounts struct {
	Amount             decimal.Decimal
	AmountWithDiscount decimal.Decimal
}

// LineAmounts computes amount and amount_with_discount, each rounded once
// from the exact product.
func LineAmounts(it Item) Amounts {
	if it.Qty <= 0 {
		return Amounts{Amount: decimal.Zero, AmountWithDiscount: decimal.Zero}
	}
	exact := it.UnitPrice.Mul(decimal.NewFromInt(it.Qty))
	factor := hundred.Sub(ClampPercent(it.DiscountPercent)).Shift(-2)
	return Amounts{
		Amount:             exact.Round(CurrencyPlaces),
		AmountWithDiscount: exact.Mul(factor).Round(CurrencyPlaces),
	}
}

// ClampPercent limits a percentage to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// Cost is the landed cost of a line item.
type Cost struct {
	WithoutVATTotal   decimal.Decimal
	WithVATTotal      decimal.Decimal
	WithoutVATPerUnit decimal.Decimal
	WithVATPerUnit    decimal.Decimal
}

// Compute adds excise and transport to the discounted amount and applies VAT.
// Inputs are expected to already be currency-rounded.
func Compute(amountWithDiscount, excise, transport decimal.Decimal, qty int64, vatRate decimal.Decimal) Cost {
	withoutVAT := amountWithDiscount.Add(excise).Add(transport)
	withVAT := withoutVAT.Mul(decimal.NewFromInt(1).Add(vatRate)).Round(CurrencyPlaces)
	cost := Cost{
		WithoutVATTotal:   withoutVAT,
		WithVATTotal:      withVAT,
		WithoutVATPerUnit: decimal.Zero,
		WithVATPerUnit:    decimal.Zero,
	}
	if qty > 0 {
		n := decimal.NewFromInt(qty)
		cost.WithoutVATPerUnit = withoutVAT.DivRound(n, CurrencyPlaces)
		cost.WithVATPerUnit = withVAT.DivRound(n, CurrencyPlaces)
	}
	return cost
}

// DiscountPercent converts an invoice-level discount into the percentage of
// subtotal it represents.
func DiscountPercent(discount, subtotal decimal.Decimal) decimal.Decimal {
	if !discount.IsPositive() || !subtotal.IsPositive() {
		return decimal.Zero
	}
	return ClampPercent(discount.Mul(hundred).DivRound(subtotal, 6))
}

// Summary aggregates computed pricing components across a table.
type Summary struct {
	Amount             decimal.Decimal `json:"amount"`
	AmountWithDiscount decimal.Decimal `json:"amount_with_discount"`
	Excise             decimal.Decimal `json:"excise_total"`
	Transport          decimal.Decimal `json:"transport_total"`
	CostWithoutVAT     decimal.Decimal `json:"cost_wo_vat_total"`
	CostWithVAT        decimal.Decimal `json:"cost_w_vat_total"`
}

// NewSummary returns a zeroed summary.
func NewSummary() Summary {
	return Summary{
		Amount:             decimal.Zero,
		AmountWithDiscount: decimal.Zero,
		Excise:             decimal.Zero,
		Transport:          decimal.Zero,
		CostWithoutVAT:     decimal.Zero,
		CostWithVAT:        decimal.Zero,
	}
}

// Add accumulates one line into the summary.
func (s Summary) Add(a Amounts, excise, transport decimal.Decimal, c Cost) Summary {
	s.Amount = s.Amount.Add(a.Amount)
	s.AmountWithDiscount = s.AmountWithDiscount.Add(a.AmountWithDiscount)
	s.Excise = s.Excise.Add(excise)
	s.Transport = s.Transport.Add(transport)
	s.CostWithoutVAT = s.CostWithoutVAT.Add(c.WithoutVATTotal)
	s.CostWithVAT = s.CostWithVAT.Add(c.WithVATTotal)
	return s
}
