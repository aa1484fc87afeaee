package recalc

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/akcizas/internal/excise"
	"github.com/noah-isme/akcizas/internal/pricing"
	"github.com/noah-isme/akcizas/internal/transport"
)

var (
	// ErrNegativeQuantity rejects tables containing a negative quantity.
	ErrNegativeQuantity = errors.New("recalc: quantity must not be negative")
	// ErrIndexOutOfRange rejects single-row requests for a missing row.
	ErrIndexOutOfRange = errors.New("recalc: product index out of range")
	// ErrNegativeTransport rejects a negative invoice transport total.
	ErrNegativeTransport = errors.New("recalc: transport total must not be negative")
)

// TransportContext carries invoice-level values shared by every row of a pass.
type TransportContext struct {
	Total decimal.Decimal
	// InvoiceDiscount, when valid, replaces every row's discount percentage
	// with the share of the subtotal it represents.
	InvoiceDiscount decimal.NullDecimal
}

// LineItem holds the authoritative fields of one invoice row. The engine never
// mutates the items it is given.
type LineItem struct {
	Name string
	// Category is empty when the classifier should derive it.
	Category excise.Category
	// CategoryBasis fingerprints the attributes Category was derived from.
	// A category without a basis is a user override.
	CategoryBasis   string
	CategoryLocked  bool
	ProductType     excise.Hint
	ABV             decimal.NullDecimal
	VolumeLiters    decimal.Decimal
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	Glassware       bool
	// Extra holds caller fields the engine does not interpret.
	Extra map[string]any
	// InputIssues are problems found while decoding the row.
	InputIssues []Issue
}

// Row is a fully derived line item.
type Row struct {
	Item           LineItem
	Hint           excise.Hint
	Category       excise.Category
	CategoryBasis  string
	CategoryLocked bool
	Unresolved     bool

	Amount             decimal.Decimal
	AmountWithDiscount decimal.Decimal
	ExcisePerUnit      decimal.Decimal
	ExciseTotal        decimal.Decimal
	TransportPerUnit   decimal.Decimal
	TransportTotal     decimal.Decimal
	CostWOVATTotal     decimal.Decimal
	CostWVATTotal      decimal.Decimal
	CostWOVAT          decimal.Decimal
	CostWVAT           decimal.Decimal

	Warnings []Issue
}

// CategoryTotal aggregates the rows of one excise category.
type CategoryTotal struct {
	Category          excise.Category
	Items             int
	Quantity          int64
	VolumeLiters      decimal.Decimal
	PureAlcoholLiters decimal.Decimal
	Excise            decimal.Decimal
}

// Totals aggregates a recalculated table. Currency sums add the rounded
// per-row values so they match what the caller displays.
type Totals struct {
	pricing.Summary
	Items            int
	Unresolved       int
	TransportOverall decimal.Decimal
	TransportMode    transport.Mode
	InvoiceDiscount  decimal.NullDecimal
	DiscountPercent  decimal.Decimal
	ByCategory       []CategoryTotal
}

// Result is the output of one recalculation pass.
type Result struct {
	Rows   []Row
	Totals Totals
	Issues []Issue
}

// Options configures an Engine.
type Options struct {
	VATRate         decimal.Decimal
	GlasswareVolume decimal.Decimal
	Logger          zerolog.Logger
}

// Engine derives every dependent field of an invoice table.
type Engine struct {
	table           *excise.RateTable
	classifier      excise.Classifier
	calculator      excise.Calculator
	vatRate         decimal.Decimal
	glasswareVolume decimal.Decimal
	logger          zerolog.Logger
	tracer          trace.Tracer
}

// NewEngine constructs an Engine for one rate table.
func NewEngine(table *excise.RateTable, opts Options) *Engine {
	return &Engine{
		table:           table,
		classifier:      excise.NewClassifier(table),
		calculator:      excise.Calculator{Table: table},
		vatRate:         opts.VATRate,
		glasswareVolume: opts.GlasswareVolume,
		logger:          opts.Logger.With().Str("component", "recalc").Int("tax_year", table.Year).Logger(),
		tracer:          otel.Tracer("akcizas/recalc"),
	}
}

// Table returns the rate table the engine computes with.
func (e *Engine) Table() *excise.RateTable { return e.table }

// VATRate returns the configured VAT rate.
func (e *Engine) VATRate() decimal.Decimal { return e.vatRate }

// Fingerprint identifies the configuration results depend on, for use in
// cache keys.
func (e *Engine) Fingerprint() string {
	return fmt.Sprintf("%d:%s:%s", e.table.Year, e.vatRate.String(), e.glasswareVolume.String())
}

// RecalculateAll re-derives every row and re-runs transport allocation over
// the whole table.
func (e *Engine) RecalculateAll(ctx context.Context, items []LineItem, tc TransportContext) (Result, error) {
	_, span := e.tracer.Start(ctx, "recalc.all", trace.WithAttributes(attribute.Int("recalc.rows", len(items))))
	defer span.End()
	res, err := e.recalculate(items, tc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("recalc.unresolved", res.Totals.Unresolved))
	return res, nil
}

// RecalculateOne recomputes the table in the context of an edit to row index
// and returns that row. Transport allocation is table-wide, so the full result
// is returned as well for callers that merge peers.
func (e *Engine) RecalculateOne(ctx context.Context, index int, items []LineItem, tc TransportContext) (Row, Result, error) {
	_, span := e.tracer.Start(ctx, "recalc.one", trace.WithAttributes(
		attribute.Int("recalc.rows", len(items)),
		attribute.Int("recalc.index", index),
	))
	defer span.End()
	if index < 0 || index >= len(items) {
		err := fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(items))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Row{}, Result{}, err
	}
	res, err := e.recalculate(items, tc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Row{}, Result{}, err
	}
	return res.Rows[index], res, nil
}

// DistributeDiscount converts an invoice-level discount into the same
// discount percentage on every row, relative to the pre-discount subtotal.
// It returns copies of the items and the applied percentage.
func (e *Engine) DistributeDiscount(items []LineItem, discount decimal.Decimal) ([]LineItem, decimal.Decimal) {
	out := make([]LineItem, len(items))
	copy(out, items)
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			continue
		}
		subtotal = subtotal.Add(pricing.LineAmounts(pricing.Item{Qty: it.Quantity, UnitPrice: it.UnitPrice}).Amount)
	}
	percent := pricing.DiscountPercent(discount, subtotal)
	for i := range out {
		out[i].DiscountPercent = percent
	}
	return out, percent
}

func (e *Engine) recalculate(items []LineItem, tc TransportContext) (Result, error) {
	if tc.Total.IsNegative() {
		return Result{}, fmt.Errorf("%w: %s", ErrNegativeTransport, tc.Total.String())
	}
	for i, it := range items {
		if it.Quantity < 0 {
			return Result{}, fmt.Errorf("%w: row %d has %d", ErrNegativeQuantity, i, it.Quantity)
		}
	}

	var issues []Issue
	discountPercent := decimal.Zero
	if tc.InvoiceDiscount.Valid {
		discount := tc.InvoiceDiscount.Decimal
		if discount.IsNegative() {
			issues = append(issues, Issue{
				Row:     RequestRow,
				Field:   "invoice_discount",
				Kind:    IssueClamped,
				Raw:     discount.String(),
				Message: "invoice discount must not be negative, using 0",
			})
			e.logIssue(issues[len(issues)-1])
			discount = decimal.Zero
		}
		tc.InvoiceDiscount = decimal.NewNullDecimal(discount)
		items, discountPercent = e.DistributeDiscount(items, discount)
	}

	rows := make([]Row, len(items))
	lines := make([]transport.Line, len(items))
	for i, it := range items {
		rows[i] = e.deriveRow(i, it)
		lines[i] = transport.Line{
			VolumeLiters: rows[i].Item.VolumeLiters,
			Quantity:     it.Quantity,
			Glassware:    it.Glassware || excise.IsGlassware(it.Name),
		}
	}

	alloc, err := transport.Allocate(lines, tc.Total, transport.Options{
		Places:          pricing.CurrencyPlaces,
		GlasswareVolume: e.glasswareVolume,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNegativeTransport, err)
	}

	res := Result{Rows: rows, Issues: issues}
	if alloc.Mode == transport.ModeEqualSplit {
		issue := Issue{
			Row:     RequestRow,
			Field:   "transport_total",
			Kind:    IssueAllocationDegenerate,
			Message: "no row has a positive volume or quantity; transport split equally",
		}
		res.Issues = append(res.Issues, issue)
		e.logIssue(issue)
	}

	totals := Totals{
		Summary:          pricing.NewSummary(),
		Items:            len(rows),
		TransportOverall: alloc.Total,
		TransportMode:    alloc.Mode,
		InvoiceDiscount:  tc.InvoiceDiscount,
		DiscountPercent:  discountPercent,
	}
	byCategory := make(map[excise.Category]*CategoryTotal, len(excise.Categories))
	for i := range rows {
		row := &rows[i]
		share := alloc.Shares[i]
		row.TransportTotal = share.Total
		row.TransportPerUnit = share.PerUnit

		amounts := pricing.Amounts{Amount: row.Amount, AmountWithDiscount: row.AmountWithDiscount}
		cost := pricing.Compute(row.AmountWithDiscount, row.ExciseTotal, row.TransportTotal, row.Item.Quantity, e.vatRate)
		row.CostWOVATTotal = cost.WithoutVATTotal
		row.CostWVATTotal = cost.WithVATTotal
		row.CostWOVAT = cost.WithoutVATPerUnit
		row.CostWVAT = cost.WithVATPerUnit

		totals.Summary = totals.Summary.Add(amounts, row.ExciseTotal, row.TransportTotal, cost)
		if row.Unresolved {
			totals.Unresolved++
		}
		ct, ok := byCategory[row.Category]
		if !ok {
			ct = &CategoryTotal{
				Category:          row.Category,
				VolumeLiters:      decimal.Zero,
				PureAlcoholLiters: decimal.Zero,
				Excise:            decimal.Zero,
			}
			byCategory[row.Category] = ct
		}
		liters := row.Item.VolumeLiters.Mul(decimal.NewFromInt(row.Item.Quantity))
		ct.Items++
		ct.Quantity += row.Item.Quantity
		ct.VolumeLiters = ct.VolumeLiters.Add(liters)
		if row.Item.ABV.Valid {
			ct.PureAlcoholLiters = ct.PureAlcoholLiters.Add(liters.Mul(row.Item.ABV.Decimal.Shift(-2)))
		}
		ct.Excise = ct.Excise.Add(row.ExciseTotal)

		res.Issues = append(res.Issues, row.Warnings...)
	}
	for _, c := range excise.Categories {
		if ct, ok := byCategory[c]; ok {
			totals.ByCategory = append(totals.ByCategory, *ct)
		}
	}
	res.Totals = totals
	return res, nil
}

// deriveRow computes everything except transport and cost, which need the
// table-wide allocation.
func (e *Engine) deriveRow(index int, it LineItem) Row {
	row := Row{Item: it}
	for _, issue := range it.InputIssues {
		issue.Row = index
		row.addWarning(issue)
	}
	e.sanitize(index, &row)

	row.Hint = it.ProductType
	if row.Hint == excise.HintUnknown {
		row.Hint = excise.DetectHint(it.Name)
	}
	basis := classificationBasis(row.Hint, row.Item.ABV)
	row.CategoryBasis = basis

	reason := ""
	switch {
	case it.Category != "" && it.CategoryLocked:
		row.Category = it.Category
		row.CategoryLocked = true
	case it.Category != "" && it.Category != excise.CategoryUnclassified && it.CategoryBasis == "":
		row.Category = it.Category
		row.CategoryLocked = true
	case it.Category != "" && it.Category != excise.CategoryUnclassified && it.CategoryBasis == basis:
		row.Category = it.Category
	default:
		cls := e.classifier.Classify(row.Hint, row.Item.ABV)
		row.Category = cls.Category
		reason = cls.Reason
	}
	if row.Category == excise.CategoryUnclassified {
		if reason == "" {
			reason = "category is unclassified"
		}
		row.addWarning(Issue{Row: index, Field: "category", Kind: IssueIndeterminate, Message: reason})
	}
	if requiresABV(e.table, row.Category) && !(row.Item.ABV.Valid && row.Item.ABV.Decimal.IsPositive()) {
		row.addWarning(Issue{Row: index, Field: "abv", Kind: IssueMissingABV, Message: fmt.Sprintf("abv is required to compute %s excise", row.Category)})
	}

	abv := decimal.Zero
	if row.Item.ABV.Valid {
		abv = row.Item.ABV.Decimal
	}
	amt := e.calculator.Compute(excise.Input{
		Category:     row.Category,
		ABV:          abv,
		VolumeLiters: row.Item.VolumeLiters,
		Quantity:     it.Quantity,
	})
	row.Unresolved = amt.Unresolved
	row.ExciseTotal = amt.TotalRounded
	row.ExcisePerUnit = amt.PerUnit

	amounts := pricing.LineAmounts(pricing.Item{
		Qty:             it.Quantity,
		UnitPrice:       row.Item.UnitPrice,
		DiscountPercent: row.Item.DiscountPercent,
	})
	row.Amount = amounts.Amount
	row.AmountWithDiscount = amounts.AmountWithDiscount

	for _, w := range row.Warnings {
		e.logIssue(w)
	}
	return row
}

// sanitize clamps out-of-domain authoritative values and records a warning
// for each.
func (e *Engine) sanitize(index int, row *Row) {
	clamp := func(field string, raw decimal.Decimal, to decimal.Decimal) {
		row.addWarning(Issue{
			Row:     index,
			Field:   field,
			Kind:    IssueClamped,
			Raw:     raw.String(),
			Message: fmt.Sprintf("%s %s out of range, using %s", field, raw.String(), to.String()),
		})
	}
	if row.Item.UnitPrice.IsNegative() {
		clamp("unit_price", row.Item.UnitPrice, decimal.Zero)
		row.Item.UnitPrice = decimal.Zero
	}
	if row.Item.VolumeLiters.IsNegative() {
		clamp("volume", row.Item.VolumeLiters, decimal.Zero)
		row.Item.VolumeLiters = decimal.Zero
	}
	if row.Item.ABV.Valid && row.Item.ABV.Decimal.IsNegative() {
		clamp("abv", row.Item.ABV.Decimal, decimal.Zero)
		row.Item.ABV = decimal.NewNullDecimal(decimal.Zero)
	}
	if clamped := pricing.ClampPercent(row.Item.DiscountPercent); !clamped.Equal(row.Item.DiscountPercent) {
		clamp("discount_percent", row.Item.DiscountPercent, clamped)
		row.Item.DiscountPercent = clamped
	}
}

func (e *Engine) logIssue(issue Issue) {
	evt := e.logger.Debug()
	if issue.Kind == IssueMalformedNumeric || issue.Kind == IssueAllocationDegenerate {
		evt = e.logger.Warn()
	}
	evt.Int("row", issue.Row).
		Str("field", issue.Field).
		Str("kind", string(issue.Kind)).
		Str("raw", issue.Raw).
		Msg(issue.Message)
}

func (r *Row) addWarning(issue Issue) {
	r.Warnings = append(r.Warnings, issue)
}

// classificationBasis fingerprints the attributes the classifier looks at, so
// a stored classification is only revisited when they change.
func classificationBasis(hint excise.Hint, abv decimal.NullDecimal) string {
	h := string(hint)
	if h == "" {
		h = "unknown"
	}
	a := "-"
	if abv.Valid {
		a = abv.Decimal.String()
	}
	return h + "@" + a
}

func requiresABV(table *excise.RateTable, c excise.Category) bool {
	spec, ok := table.RateFor(c)
	if !ok {
		return false
	}
	return spec.Basis == excise.BasisPureAlcoholHL || spec.Basis == excise.BasisABVPercentHL
}
