package excise_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/akcizas/internal/excise"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func abv(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func builtinTable(t *testing.T) *excise.RateTable {
	t.Helper()
	reg, err := excise.BuiltinRegistry()
	require.NoError(t, err)
	table, err := reg.ForYear(2026)
	require.NoError(t, err)
	return table
}

func TestBuiltinRateTable2026(t *testing.T) {
	table := builtinTable(t)
	require.Equal(t, "EUR", table.Currency)

	wine, ok := table.RateFor(excise.CategoryWineHigh)
	require.True(t, ok)
	require.Equal(t, excise.BasisProductHL, wine.Basis)
	require.True(t, wine.Rate.Equal(d("296")))

	beer, ok := table.RateFor(excise.CategoryBeer)
	require.True(t, ok)
	require.Equal(t, excise.BasisABVPercentHL, beer.Basis)
	require.True(t, beer.Rate.Equal(d("12.74")))

	spirits, ok := table.RateFor(excise.CategorySpirits)
	require.True(t, ok)
	require.Equal(t, excise.BasisPureAlcoholHL, spirits.Basis)

	_, ok = table.RateFor(excise.CategoryUnclassified)
	require.False(t, ok)
}

func TestLoadRateTableRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"missing year": "rates: {}\n",
		"unknown category": `year: 2027
thresholds: {wine_high_abv: 8.5, intermediate_high_abv: 15}
rates:
  cider: {basis: product_hl, rate: 10}
`,
		"bad basis": `year: 2027
thresholds: {wine_high_abv: 8.5, intermediate_high_abv: 15}
rates:
  beer: {basis: per_bottle, rate: 10}
`,
		"missing rates": `year: 2027
thresholds: {wine_high_abv: 8.5, intermediate_high_abv: 15}
rates:
  beer: {basis: abv_percent_hl, rate: 10}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := excise.LoadRateTable(strings.NewReader(doc))
			require.ErrorIs(t, err, excise.ErrInvalidRateTable)
		})
	}
}

func TestRegistryUnknownYear(t *testing.T) {
	reg, err := excise.BuiltinRegistry()
	require.NoError(t, err)
	_, err = reg.ForYear(1999)
	require.ErrorIs(t, err, excise.ErrUnknownTaxYear)

	latest, err := reg.Latest()
	require.NoError(t, err)
	require.Equal(t, 2026, latest.Year)
}

func TestClassifyBoundaries(t *testing.T) {
	c := excise.NewClassifier(builtinTable(t))
	cases := []struct {
		name string
		hint excise.Hint
		abv  decimal.NullDecimal
		want excise.Category
	}{
		{"wine at threshold", excise.HintWine, abv("8.5"), excise.CategoryWineLow},
		{"wine just above", excise.HintWine, abv("8.50001"), excise.CategoryWineHigh},
		{"intermediate at threshold", excise.HintIntermediate, abv("15"), excise.CategoryIntermediateLow},
		{"intermediate above", excise.HintIntermediate, abv("15.01"), excise.CategoryIntermediateHigh},
		{"spirits ignore abv", excise.HintSpirits, decimal.NullDecimal{}, excise.CategorySpirits},
		{"beer", excise.HintBeer, abv("5"), excise.CategoryBeer},
		{"wine without abv", excise.HintWine, decimal.NullDecimal{}, excise.CategoryUnclassified},
		{"intermediate zero abv", excise.HintIntermediate, abv("0"), excise.CategoryUnclassified},
		{"unknown hint", excise.HintUnknown, abv("40"), excise.CategoryUnclassified},
		{"non alcoholic", excise.HintNonAlcoholic, abv("0.5"), excise.CategoryUnclassified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.hint, tc.abv)
			require.Equal(t, tc.want, got.Category)
			require.Equal(t, tc.want == excise.CategoryUnclassified, got.Indeterminate)
		})
	}
}

func TestDetectHint(t *testing.T) {
	cases := map[string]excise.Hint{
		"Absolut Vodka 0.7L 40%":            excise.HintSpirits,
		"Martini Rosso 1L":                  excise.HintSpirits,
		"Švyturys Ekstra alus 0,5 l":        excise.HintBeer,
		"Founders Porter":                   excise.HintBeer,
		"Moët & Chandon Brut Impérial":      excise.HintWine,
		"Château Bergerac Rouge Sec":        excise.HintWine,
		"Taylor's Porto Tawny":              excise.HintIntermediate,
		"Amarone della Valpolicella 2018":   excise.HintWine,
		"Riedel wine glass":                 excise.HintNonAlcoholic,
		"Riedel Veritas wine glasses 2 pcs": excise.HintNonAlcoholic,
		"Vyno taurės 6 vnt.":                excise.HintNonAlcoholic,
		"Heineken 0.0 alcohol free beer":    excise.HintBeer,
		"Sparkling water alcohol free":      excise.HintNonAlcoholic,
		"Mystery item":                      excise.HintUnknown,
		"":                                  excise.HintUnknown,
	}
	for name, want := range cases {
		require.Equal(t, want, excise.DetectHint(name), name)
	}
}

func TestIsGlassware(t *testing.T) {
	require.True(t, excise.IsGlassware("Spiegelau Burgundy glass x6"))
	require.True(t, excise.IsGlassware("Taurė vynui"))
	require.True(t, excise.IsGlassware("Riedel Veritas wine glasses 2 pcs"))
	require.True(t, excise.IsGlassware("Schott Zwiesel Gläser"))
	require.True(t, excise.IsGlassware("Nordic Sea tumbler"))
	require.False(t, excise.IsGlassware("Douglas Laing whisky"))
	require.False(t, excise.IsGlassware("Glenfiddich whisky in glass decanter"))
	require.False(t, excise.IsGlassware("Chianti Classico"))
}

func TestParseCategory(t *testing.T) {
	for key, want := range map[string]excise.Category{
		"WINE_HIGH":                excise.CategoryWineHigh,
		"spirits":                  excise.CategorySpirits,
		"ethyl_alcohol":            excise.CategorySpirits,
		"sparkling_wine_up_to_8_5": excise.CategoryWineLow,
		"intermediate_15_22":       excise.CategoryIntermediateHigh,
		" unclassified ":           excise.CategoryUnclassified,
	} {
		got, ok := excise.ParseCategory(key)
		require.True(t, ok, key)
		require.Equal(t, want, got, key)
	}
	_, ok := excise.ParseCategory("cider")
	require.False(t, ok)
	_, ok = excise.ParseCategory("")
	require.False(t, ok)
}

func TestComputeSpotChecks(t *testing.T) {
	calc := excise.Calculator{Table: builtinTable(t)}

	wine := calc.Compute(excise.Input{Category: excise.CategoryWineHigh, ABV: d("13"), VolumeLiters: d("0.75"), Quantity: 12})
	require.Equal(t, "26.64", wine.TotalRounded.StringFixed(2))
	require.Equal(t, "2.2200", wine.PerUnit.StringFixed(4))

	beer := calc.Compute(excise.Input{Category: excise.CategoryBeer, ABV: d("5"), VolumeLiters: d("0.5"), Quantity: 24})
	require.Equal(t, "7.64", beer.TotalRounded.StringFixed(2))
	require.Equal(t, "0.3185", beer.PerUnit.StringFixed(4))

	spirits := calc.Compute(excise.Input{Category: excise.CategorySpirits, ABV: d("40"), VolumeLiters: d("0.7"), Quantity: 1})
	require.True(t, spirits.Total.Equal(d("8.764")))
	require.Equal(t, "8.76", spirits.TotalRounded.StringFixed(2))
	require.Equal(t, "8.7640", spirits.PerUnit.StringFixed(4))
}

func TestComputeZeroAndUnresolved(t *testing.T) {
	calc := excise.Calculator{Table: builtinTable(t)}

	zero := calc.Compute(excise.Input{Category: excise.CategoryWineLow, ABV: d("7"), VolumeLiters: d("0.75"), Quantity: 0})
	require.True(t, zero.Total.IsZero())
	require.True(t, zero.PerUnit.IsZero())
	require.False(t, zero.Unresolved)

	unresolved := calc.Compute(excise.Input{Category: excise.CategoryUnclassified, ABV: d("40"), VolumeLiters: d("1"), Quantity: 3})
	require.True(t, unresolved.Total.IsZero())
	require.True(t, unresolved.Unresolved)
}
