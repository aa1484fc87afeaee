package excise

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Basis describes what quantity an excise rate is applied to.
type Basis string

const (
	// BasisProductHL charges per hectoliter of finished product.
	BasisProductHL Basis = "product_hl"
	// BasisPureAlcoholHL charges per hectoliter of pure ethyl alcohol.
	BasisPureAlcoholHL Basis = "pure_alcohol_hl"
	// BasisABVPercentHL charges per percentage point of ABV per hectoliter.
	BasisABVPercentHL Basis = "abv_percent_hl"
)

func (b Basis) valid() bool {
	switch b {
	case BasisProductHL, BasisPureAlcoholHL, BasisABVPercentHL:
		return true
	}
	return false
}

// RateSpec is the excise rate applicable to one category.
type RateSpec struct {
	Basis Basis           `json:"basis"`
	Rate  decimal.Decimal `json:"rate"`
}

// Thresholds holds the ABV boundaries separating high and low categories.
// Values equal to a threshold belong to the lower category.
type Thresholds struct {
	WineHighABV         decimal.Decimal `json:"wine_high_abv"`
	IntermediateHighABV decimal.Decimal `json:"intermediate_high_abv"`
}

// RateTable is the versioned excise configuration for one tax year.
type RateTable struct {
	Year       int                   `json:"year"`
	Currency   string                `json:"currency"`
	Thresholds Thresholds            `json:"thresholds"`
	Rates      map[Category]RateSpec `json:"rates"`
}

// RateFor returns the rate for the category. UNCLASSIFIED never has a rate.
func (t *RateTable) RateFor(c Category) (RateSpec, bool) {
	if t == nil || !c.Resolved() {
		return RateSpec{}, false
	}
	spec, ok := t.Rates[c]
	return spec, ok
}

var (
	// ErrUnknownTaxYear is returned when no rate table exists for a year.
	ErrUnknownTaxYear = errors.New("excise: no rate table for tax year")
	// ErrInvalidRateTable is returned when a rate table document is inconsistent.
	ErrInvalidRateTable = errors.New("excise: invalid rate table")
)

//go:embed rates/*.yaml
var builtinRates embed.FS

type yamlDecimal struct{ decimal.Decimal }

func (d *yamlDecimal) UnmarshalYAML(node *yaml.Node) error {
	v, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Decimal = v
	return nil
}

type rateTableDoc struct {
	Year       int    `yaml:"year"`
	Currency   string `yaml:"currency"`
	Thresholds struct {
		WineHighABV         yamlDecimal `yaml:"wine_high_abv"`
		IntermediateHighABV yamlDecimal `yaml:"intermediate_high_abv"`
	} `yaml:"thresholds"`
	Rates map[string]struct {
		Basis string      `yaml:"basis"`
		Rate  yamlDecimal `yaml:"rate"`
	} `yaml:"rates"`
}

// LoadRateTable parses a YAML rate table document.
func LoadRateTable(r io.Reader) (*RateTable, error) {
	var doc rateTableDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rate table: %w", err)
	}
	if doc.Year <= 0 {
		return nil, fmt.Errorf("%w: year is required", ErrInvalidRateTable)
	}
	table := &RateTable{
		Year:     doc.Year,
		Currency: strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Thresholds: Thresholds{
			WineHighABV:         doc.Thresholds.WineHighABV.Decimal,
			IntermediateHighABV: doc.Thresholds.IntermediateHighABV.Decimal,
		},
		Rates: make(map[Category]RateSpec, len(doc.Rates)),
	}
	if table.Currency == "" {
		table.Currency = "EUR"
	}
	for key, raw := range doc.Rates {
		c, ok := ParseCategory(key)
		if !ok || !c.Resolved() {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidRateTable, key)
		}
		basis := Basis(strings.ToLower(strings.TrimSpace(raw.Basis)))
		if !basis.valid() {
			return nil, fmt.Errorf("%w: category %s has unknown basis %q", ErrInvalidRateTable, key, raw.Basis)
		}
		if raw.Rate.IsNegative() {
			return nil, fmt.Errorf("%w: category %s has negative rate", ErrInvalidRateTable, key)
		}
		table.Rates[c] = RateSpec{Basis: basis, Rate: raw.Rate.Decimal}
	}
	for _, c := range Categories {
		if !c.Resolved() {
			continue
		}
		if _, ok := table.Rates[c]; !ok {
			return nil, fmt.Errorf("%w: missing rate for %s", ErrInvalidRateTable, c)
		}
	}
	if !table.Thresholds.WineHighABV.IsPositive() || !table.Thresholds.IntermediateHighABV.IsPositive() {
		return nil, fmt.Errorf("%w: thresholds must be positive", ErrInvalidRateTable)
	}
	return table, nil
}

// LoadRateTableFile reads a rate table from disk.
func LoadRateTableFile(path string) (*RateTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rate table: %w", err)
	}
	defer f.Close()
	return LoadRateTable(f)
}

// Registry holds rate tables keyed by tax year.
type Registry struct {
	tables map[int]*RateTable
}

// BuiltinRegistry returns the rate tables shipped with the binary.
func BuiltinRegistry() (*Registry, error) {
	reg := &Registry{tables: map[int]*RateTable{}}
	entries, err := fs.Glob(builtinRates, "rates/*.yaml")
	if err != nil {
		return nil, err
	}
	for _, name := range entries {
		f, err := builtinRates.Open(name)
		if err != nil {
			return nil, err
		}
		table, err := LoadRateTable(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		reg.Add(table)
	}
	return reg, nil
}

// Add registers or replaces the table for its year.
func (r *Registry) Add(t *RateTable) {
	if r.tables == nil {
		r.tables = map[int]*RateTable{}
	}
	r.tables[t.Year] = t
}

// ForYear returns the table for the given tax year.
func (r *Registry) ForYear(year int) (*RateTable, error) {
	if r != nil {
		if t, ok := r.tables[year]; ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w %d", ErrUnknownTaxYear, year)
}

// Years lists the registered tax years in ascending order.
func (r *Registry) Years() []int {
	years := make([]int, 0, len(r.tables))
	for y := range r.tables {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Latest returns the table with the highest tax year.
func (r *Registry) Latest() (*RateTable, error) {
	years := r.Years()
	if len(years) == 0 {
		return nil, fmt.Errorf("%w: registry is empty", ErrUnknownTaxYear)
	}
	return r.tables[years[len(years)-1]], nil
}
