package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineAmountsRoundOnce(t *testing.T) {
	got := LineAmounts(Item{Qty: 3, UnitPrice: dec("1.115"), DiscountPercent: dec("10")})
	if got.Amount.StringFixed(2) != "3.35" {
		t.Fatalf("expected amount 3.35, got %s", got.Amount)
	}
	// 3.345 * 0.9 = 3.0105 rounds to 3.01, not 3.35*0.9 = 3.015 -> 3.02
	if got.AmountWithDiscount.StringFixed(2) != "3.01" {
		t.Fatalf("expected discounted amount 3.01, got %s", got.AmountWithDiscount)
	}
}

func TestLineAmountsClampDiscount(t *testing.T) {
	got := LineAmounts(Item{Qty: 2, UnitPrice: dec("5"), DiscountPercent: dec("150")})
	if !got.AmountWithDiscount.IsZero() {
		t.Fatalf("expected full discount, got %s", got.AmountWithDiscount)
	}
	got = LineAmounts(Item{Qty: 0, UnitPrice: dec("5")})
	if !got.Amount.IsZero() {
		t.Fatalf("expected zero amount for zero quantity, got %s", got.Amount)
	}
}

func TestComputeCost(t *testing.T) {
	c := Compute(dec("100.00"), dec("26.64"), dec("3.36"), 12, dec("0.21"))
	if c.WithoutVATTotal.StringFixed(2) != "130.00" {
		t.Fatalf("unexpected cost without vat %s", c.WithoutVATTotal)
	}
	if c.WithVATTotal.StringFixed(2) != "157.30" {
		t.Fatalf("unexpected cost with vat %s", c.WithVATTotal)
	}
	if c.WithoutVATPerUnit.StringFixed(2) != "10.83" {
		t.Fatalf("unexpected per unit cost %s", c.WithoutVATPerUnit)
	}

	zero := Compute(dec("0"), dec("0"), dec("1.00"), 0, dec("0.21"))
	if !zero.WithoutVATPerUnit.IsZero() || !zero.WithVATPerUnit.IsZero() {
		t.Fatalf("expected zero per-unit cost for zero quantity")
	}
}

func TestDiscountPercent(t *testing.T) {
	if got := DiscountPercent(dec("25"), dec("200")); got.String() != "12.5" {
		t.Fatalf("expected 12.5, got %s", got)
	}
	if got := DiscountPercent(dec("25"), dec("0")); !got.IsZero() {
		t.Fatalf("expected zero for empty subtotal, got %s", got)
	}
}
