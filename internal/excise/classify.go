package excise

import (
	"github.com/shopspring/decimal"
)

// Classification is the outcome of Classify. Indeterminate is set when the
// attributes were insufficient to pick a category.
type Classification struct {
	Category      Category
	Indeterminate bool
	Reason        string
}

// Classifier maps a product type hint and ABV onto an excise category using
// the thresholds of one rate table.
type Classifier struct {
	Thresholds Thresholds
}

// NewClassifier builds a classifier from the thresholds of a rate table.
func NewClassifier(t *RateTable) Classifier {
	return Classifier{Thresholds: t.Thresholds}
}

// Classify applies the rules in fixed order: spirits, beer, wine and
// intermediate products. It never fails; missing inputs yield UNCLASSIFIED.
func (c Classifier) Classify(hint Hint, abv decimal.NullDecimal) Classification {
	switch hint {
	case HintSpirits:
		return Classification{Category: CategorySpirits}
	case HintBeer:
		return Classification{Category: CategoryBeer}
	case HintWine:
		if !hasABV(abv) {
			return indeterminate("wine requires abv")
		}
		if abv.Decimal.GreaterThan(c.Thresholds.WineHighABV) {
			return Classification{Category: CategoryWineHigh}
		}
		return Classification{Category: CategoryWineLow}
	case HintIntermediate:
		if !hasABV(abv) {
			return indeterminate("intermediate product requires abv")
		}
		if abv.Decimal.GreaterThan(c.Thresholds.IntermediateHighABV) {
			return Classification{Category: CategoryIntermediateHigh}
		}
		return Classification{Category: CategoryIntermediateLow}
	case HintNonAlcoholic:
		return indeterminate("product is not an excisable beverage")
	}
	return indeterminate("product type not recognised")
}

func indeterminate(reason string) Classification {
	return Classification{Category: CategoryUnclassified, Indeterminate: true, Reason: reason}
}

func hasABV(abv decimal.NullDecimal) bool {
	return abv.Valid && abv.Decimal.IsPositive()
}
