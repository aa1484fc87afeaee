package excise

import "strings"

// Category is the regulatory excise classification of a product.
type Category string

const (
	CategorySpirits          Category = "spirits"
	CategoryBeer             Category = "beer"
	CategoryWineHigh         Category = "wine_high"
	CategoryWineLow          Category = "wine_low"
	CategoryIntermediateHigh Category = "intermediate_high"
	CategoryIntermediateLow  Category = "intermediate_low"
	CategoryUnclassified     Category = "unclassified"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategorySpirits,
	CategoryBeer,
	CategoryWineHigh,
	CategoryWineLow,
	CategoryIntermediateHigh,
	CategoryIntermediateLow,
	CategoryUnclassified,
}

var categoryLabels = map[Category]string{
	CategorySpirits:          "Etilo alkoholis (spiritiniai gėrimai, likeriai)",
	CategoryBeer:             "Alus",
	CategoryWineHigh:         "Vynas/fermentuotas gėrimas >8,5%",
	CategoryWineLow:          "Vynas/fermentuotas gėrimas ≤8,5%",
	CategoryIntermediateHigh: "Tarpinis produktas >15%",
	CategoryIntermediateLow:  "Tarpinis produktas ≤15%",
	CategoryUnclassified:     "Nepriskirta kategorija",
}

// legacyKeys maps keys emitted by older invoice tooling onto the current categories.
var legacyKeys = map[string]Category{
	"ethyl_alcohol":            CategorySpirits,
	"wine_8.5_15":              CategoryWineHigh,
	"wine_up_to_8.5":           CategoryWineLow,
	"sparkling_wine_over_8_5":  CategoryWineHigh,
	"sparkling_wine_up_to_8_5": CategoryWineLow,
	"intermediate_15_22":       CategoryIntermediateHigh,
	"intermediate_up_to_15":    CategoryIntermediateLow,
}

// ParseCategory resolves a category key. It accepts the canonical keys in any
// case as well as legacy keys. The second return value reports whether the key
// was recognised.
func ParseCategory(key string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return "", false
	}
	if c, ok := legacyKeys[normalized]; ok {
		return c, true
	}
	c := Category(normalized)
	if _, ok := categoryLabels[c]; ok {
		return c, true
	}
	return "", false
}

// Label returns the human readable category name used on filings.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return "N/A"
}

// Resolved reports whether the category carries an excise rate.
func (c Category) Resolved() bool {
	return c != "" && c != CategoryUnclassified
}

func (c Category) String() string { return string(c) }
