package recalc

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/akcizas/internal/common"
	"github.com/noah-isme/akcizas/internal/excise"
)

// Flat-map keys exchanged with the table UI.
const (
	KeyName               = "name"
	KeyCategory           = "category"
	KeyCategoryLabel      = "excise_category"
	KeyCategoryBasis      = "category_basis"
	KeyCategoryLocked     = "category_locked"
	KeyProductType        = "product_type"
	KeyProductTypeFound   = "product_type_detected"
	KeyABV                = "abv"
	KeyVolume             = "volume"
	KeyQuantity           = "quantity"
	KeyUnitPrice          = "unit_price"
	KeyDiscountPercent    = "discount_percent"
	KeyGlassware          = "glassware"
	KeyAmount             = "amount"
	KeyAmountWithDiscount = "amount_with_discount"
	KeyExcisePerUnit      = "excise_per_unit"
	KeyExciseTotal        = "excise_total"
	KeyExciseUnresolved   = "excise_unresolved"
	KeyTransportPerUnit   = "transport_per_unit"
	KeyTransportTotal     = "transport_total"
	KeyCostWOVATTotal     = "cost_wo_vat_total"
	KeyCostWVATTotal      = "cost_w_vat_total"
	KeyCostWOVAT          = "cost_wo_vat"
	KeyCostWVAT           = "cost_w_vat"
	KeyWarnings           = "warnings"
)

// millilitreThreshold separates litre volumes from millilitre volumes.
var millilitreThreshold = decimal.NewFromInt(20)

var aliases = map[string][]string{
	KeyCategory:        {KeyCategory, "excise_category_key", "category_key"},
	KeyProductType:     {KeyProductType, "product_type_hint"},
	KeyABV:             {KeyABV, "abv_percent"},
	KeyVolume:          {KeyVolume, "volume_liters"},
	KeyDiscountPercent: {KeyDiscountPercent, "discount_percentage", "discount"},
}

// consumed lists every key that is decoded or recomputed rather than passed
// through in LineItem.Extra.
var consumed = func() map[string]bool {
	keys := map[string]bool{}
	for _, k := range []string{
		KeyName, KeyCategoryLabel, KeyCategoryBasis, KeyCategoryLocked, KeyProductTypeFound,
		KeyQuantity, KeyUnitPrice, KeyGlassware, KeyAmount, KeyAmountWithDiscount,
		KeyExcisePerUnit, KeyExciseTotal, KeyExciseUnresolved, KeyTransportPerUnit,
		KeyTransportTotal, KeyCostWOVATTotal, KeyCostWVATTotal, KeyCostWOVAT, KeyCostWVAT,
		KeyWarnings,
	} {
		keys[k] = true
	}
	for _, names := range aliases {
		for _, n := range names {
			keys[n] = true
		}
	}
	return keys
}()

// DecodeItem reads a flat map into a LineItem. It never fails: malformed or
// missing values become zero (or absent) and are reported in InputIssues.
// Negative quantities are kept so the engine can reject the request.
func DecodeItem(m map[string]any) LineItem {
	it := LineItem{
		VolumeLiters:    decimal.Zero,
		UnitPrice:       decimal.Zero,
		DiscountPercent: decimal.Zero,
	}
	d := decoder{m: m}

	if raw, ok := d.lookup(KeyName); ok && raw != nil {
		it.Name = strings.TrimSpace(fmt.Sprint(raw))
	}
	if it.Name == "" {
		d.issue(KeyName, IssueMissingField, "", "name is missing")
	}

	if key, ok := d.text(KeyCategory); ok && key != "" {
		if c, known := excise.ParseCategory(key); known {
			it.Category = c
		} else {
			d.issue(KeyCategory, IssueUnknownCategory, key, "unknown category key, classifying from attributes")
		}
	}
	if basis, ok := d.text(KeyCategoryBasis); ok {
		it.CategoryBasis = basis
	}
	it.CategoryLocked = d.boolean(KeyCategoryLocked)
	it.Glassware = d.boolean(KeyGlassware)
	if hint, ok := d.text(KeyProductType); ok && hint != "" {
		if h, known := excise.ParseHint(hint); known {
			it.ProductType = h
		}
	}

	if abv, present := d.decimal(KeyABV); present {
		it.ABV = abv
	}
	// OCR volume cells sometimes carry the strength too ("0.7 40%").
	if vol, present := d.decimalFrom(KeyVolume, common.StripPercentages); !present {
		d.issue(KeyVolume, IssueMissingField, "", "volume is missing, using 0")
	} else if vol.Valid {
		it.VolumeLiters = vol.Decimal
		if vol.Decimal.GreaterThan(millilitreThreshold) {
			it.VolumeLiters = vol.Decimal.Shift(-3)
			d.issue(KeyVolume, IssueConverted, vol.Decimal.String(), fmt.Sprintf("volume read as millilitres, using %s l", it.VolumeLiters.String()))
		}
	}
	if qty, present := d.decimal(KeyQuantity); !present {
		d.issue(KeyQuantity, IssueMissingField, "", "quantity is missing, using 0")
	} else if qty.Valid {
		rounded := qty.Decimal.Round(0)
		if !rounded.Equal(qty.Decimal) {
			d.issue(KeyQuantity, IssueRounded, qty.Decimal.String(), fmt.Sprintf("quantity must be whole, using %s", rounded.String()))
		}
		it.Quantity = clampInt64(rounded)
	}
	if price, present := d.decimal(KeyUnitPrice); !present {
		d.issue(KeyUnitPrice, IssueMissingField, "", "unit price is missing, using 0")
	} else if price.Valid {
		it.UnitPrice = price.Decimal
	}
	if disc, _ := d.decimal(KeyDiscountPercent); disc.Valid {
		it.DiscountPercent = disc.Decimal
	}

	for k, v := range m {
		if consumed[k] {
			continue
		}
		if it.Extra == nil {
			it.Extra = make(map[string]any)
		}
		it.Extra[k] = v
	}
	it.InputIssues = d.issues
	return it
}

// DecodeItems decodes a table of flat maps.
func DecodeItems(ms []map[string]any) []LineItem {
	items := make([]LineItem, len(ms))
	for i, m := range ms {
		items[i] = DecodeItem(m)
	}
	return items
}

// ParseTransportTotal reads the invoice transport total. Missing values mean
// zero; malformed values become zero with an issue; negative values are an
// error.
func ParseTransportTotal(raw any) (decimal.Decimal, *Issue, error) {
	text, ok := numericText(raw)
	if !ok {
		return decimal.Zero, nil, nil
	}
	value, parsed := common.ParseLocaleDecimal(text)
	if !parsed {
		return decimal.Zero, &Issue{
			Row:     RequestRow,
			Field:   KeyTransportTotal,
			Kind:    IssueMalformedNumeric,
			Raw:     text,
			Message: "transport total is not a number, using 0",
		}, nil
	}
	if value.IsNegative() {
		return decimal.Zero, nil, fmt.Errorf("%w: %s", ErrNegativeTransport, value.String())
	}
	return value, nil, nil
}

// ParseInvoiceDiscount reads the optional invoice-level discount amount.
// Malformed values are ignored with an issue.
func ParseInvoiceDiscount(raw any) (decimal.NullDecimal, *Issue) {
	text, present := numericText(raw)
	if !present {
		return decimal.NullDecimal{}, nil
	}
	discount, ok := common.ParseLocaleDecimal(text)
	if !ok {
		return decimal.NullDecimal{}, &Issue{
			Row:     RequestRow,
			Field:   "invoice_discount",
			Kind:    IssueMalformedNumeric,
			Raw:     text,
			Message: "invoice discount is not a number, ignoring it",
		}
	}
	return decimal.NewNullDecimal(discount), nil
}

// EncodeRow renders a derived row as a flat map. Currency fields carry two
// decimals, per-unit excise and transport four, volume exactly three. Unit
// price and discount keep any extra precision they arrived with.
func EncodeRow(row Row) map[string]any {
	out := make(map[string]any, len(row.Item.Extra)+24)
	for k, v := range row.Item.Extra {
		out[k] = v
	}
	it := row.Item
	out[KeyName] = it.Name
	out[KeyCategory] = string(row.Category)
	out[KeyCategoryLabel] = row.Category.Label()
	out[KeyCategoryBasis] = row.CategoryBasis
	out[KeyCategoryLocked] = row.CategoryLocked
	if it.ProductType != excise.HintUnknown {
		out[KeyProductType] = string(it.ProductType)
	}
	out[KeyProductTypeFound] = string(row.Hint)
	if it.ABV.Valid {
		out[KeyABV] = normalize(it.ABV.Decimal).String()
	} else {
		out[KeyABV] = nil
	}
	if it.Glassware {
		out[KeyGlassware] = true
	}
	out[KeyVolume] = common.FormatFixed(it.VolumeLiters, 3)
	out[KeyQuantity] = it.Quantity
	out[KeyUnitPrice] = common.FormatMinPlaces(normalize(it.UnitPrice), 2)
	out[KeyDiscountPercent] = common.FormatMinPlaces(normalize(it.DiscountPercent), 2)
	out[KeyAmount] = common.FormatFixed(row.Amount, 2)
	out[KeyAmountWithDiscount] = common.FormatFixed(row.AmountWithDiscount, 2)
	out[KeyExcisePerUnit] = common.FormatFixed(row.ExcisePerUnit, 4)
	out[KeyExciseTotal] = common.FormatFixed(row.ExciseTotal, 2)
	out[KeyExciseUnresolved] = row.Unresolved
	out[KeyTransportPerUnit] = common.FormatFixed(row.TransportPerUnit, 4)
	out[KeyTransportTotal] = common.FormatFixed(row.TransportTotal, 2)
	out[KeyCostWOVATTotal] = common.FormatFixed(row.CostWOVATTotal, 2)
	out[KeyCostWVATTotal] = common.FormatFixed(row.CostWVATTotal, 2)
	out[KeyCostWOVAT] = common.FormatFixed(row.CostWOVAT, 2)
	out[KeyCostWVAT] = common.FormatFixed(row.CostWVAT, 2)
	warnings := make([]string, 0, len(row.Warnings))
	for _, w := range row.Warnings {
		warnings = append(warnings, w.String())
	}
	out[KeyWarnings] = warnings
	return out
}

// EncodeRows renders every row of a result.
func EncodeRows(rows []Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = EncodeRow(row)
	}
	return out
}

// TotalsView is the wire form of Totals.
type TotalsView struct {
	TaxYear            int                 `json:"tax_year"`
	Currency           string              `json:"currency"`
	VATRate            string              `json:"vat_rate"`
	Items              int                 `json:"items"`
	Unresolved         int                 `json:"unresolved"`
	Amount             string              `json:"amount"`
	AmountWithDiscount string              `json:"amount_with_discount"`
	ExciseTotal        string              `json:"excise_total"`
	TransportTotal     string              `json:"transport_total"`
	TransportMode      string              `json:"transport_mode"`
	CostWOVATTotal     string              `json:"cost_wo_vat_total"`
	CostWVATTotal      string              `json:"cost_w_vat_total"`
	InvoiceDiscount    *string             `json:"invoice_discount,omitempty"`
	DiscountPercent    *string             `json:"discount_percent,omitempty"`
	ByCategory         []CategoryTotalView `json:"by_category"`
}

// CategoryTotalView is the wire form of CategoryTotal.
type CategoryTotalView struct {
	Category          string `json:"category"`
	Label             string `json:"label"`
	Items             int    `json:"items"`
	Quantity          int64  `json:"quantity"`
	VolumeLiters      string `json:"volume_liters"`
	PureAlcoholLiters string `json:"pure_alcohol_liters"`
	ExciseTotal       string `json:"excise_total"`
}

// EncodeTotals renders aggregate totals for the given rate table.
func EncodeTotals(t Totals, table *excise.RateTable, vatRate decimal.Decimal) TotalsView {
	view := TotalsView{
		TaxYear:            table.Year,
		Currency:           table.Currency,
		VATRate:            normalize(vatRate).String(),
		Items:              t.Items,
		Unresolved:         t.Unresolved,
		Amount:             common.FormatFixed(t.Amount, 2),
		AmountWithDiscount: common.FormatFixed(t.AmountWithDiscount, 2),
		ExciseTotal:        common.FormatFixed(t.Excise, 2),
		TransportTotal:     common.FormatFixed(t.Transport, 2),
		TransportMode:      string(t.TransportMode),
		CostWOVATTotal:     common.FormatFixed(t.CostWithoutVAT, 2),
		CostWVATTotal:      common.FormatFixed(t.CostWithVAT, 2),
		ByCategory:         make([]CategoryTotalView, 0, len(t.ByCategory)),
	}
	if t.InvoiceDiscount.Valid {
		discount := common.FormatFixed(t.InvoiceDiscount.Decimal, 2)
		percent := common.FormatMinPlaces(normalize(t.DiscountPercent), 2)
		view.InvoiceDiscount = &discount
		view.DiscountPercent = &percent
	}
	for _, ct := range t.ByCategory {
		view.ByCategory = append(view.ByCategory, CategoryTotalView{
			Category:          string(ct.Category),
			Label:             ct.Category.Label(),
			Items:             ct.Items,
			Quantity:          ct.Quantity,
			VolumeLiters:      common.FormatFixed(ct.VolumeLiters, 3),
			PureAlcoholLiters: common.FormatFixed(ct.PureAlcoholLiters, 3),
			ExciseTotal:       common.FormatFixed(ct.Excise, 2),
		})
	}
	return view
}

type decoder struct {
	m      map[string]any
	issues []Issue
}

func (d *decoder) issue(field string, kind IssueKind, raw, message string) {
	d.issues = append(d.issues, Issue{Row: RequestRow, Field: field, Kind: kind, Raw: raw, Message: message})
}

func (d *decoder) lookup(key string) (any, bool) {
	names, ok := aliases[key]
	if !ok {
		names = []string{key}
	}
	for _, n := range names {
		if v, ok := d.m[n]; ok {
			return v, true
		}
	}
	return nil, false
}

func (d *decoder) text(key string) (string, bool) {
	v, ok := d.lookup(key)
	if !ok || v == nil {
		return "", false
	}
	return strings.TrimSpace(fmt.Sprint(v)), true
}

func (d *decoder) boolean(key string) bool {
	v, ok := d.lookup(key)
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	}
	return false
}

// decimal reports whether the key carried a value at all; the returned
// NullDecimal is invalid when the value was blank or malformed.
func (d *decoder) decimal(key string) (decimal.NullDecimal, bool) {
	return d.decimalFrom(key, nil)
}

// decimalFrom is decimal with clean applied to free-text values first.
func (d *decoder) decimalFrom(key string, clean func(string) string) (decimal.NullDecimal, bool) {
	v, ok := d.lookup(key)
	if !ok {
		return decimal.NullDecimal{}, false
	}
	text, ok := numericText(v)
	if !ok {
		return decimal.NullDecimal{}, false
	}
	raw := text
	if _, free := v.(string); free && clean != nil {
		text = clean(text)
	}
	value, parsed := common.ParseLocaleDecimal(text)
	if !parsed {
		d.issue(key, IssueMalformedNumeric, raw, key+" is not a number, using 0")
		return decimal.NullDecimal{}, true
	}
	return decimal.NewNullDecimal(value), true
}

// numericText normalises JSON scalars to text. Blank strings and nulls count
// as absent.
func numericText(v any) (string, bool) {
	switch n := v.(type) {
	case nil:
		return "", false
	case json.Number:
		return n.String(), true
	case string:
		if strings.TrimSpace(n) == "" {
			return "", false
		}
		return n, true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case decimal.Decimal:
		return n.String(), true
	case bool:
		return strconv.FormatBool(n), true
	default:
		return fmt.Sprint(n), true
	}
}

func clampInt64(d decimal.Decimal) int64 {
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return math.MaxInt64
	}
	if d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return math.MinInt64
	}
	return d.IntPart()
}

// normalize drops trailing fractional zeros.
func normalize(d decimal.Decimal) decimal.Decimal {
	return decimal.RequireFromString(d.String())
}
