package recalc

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/akcizas/internal/common"
	"github.com/noah-isme/akcizas/internal/excise"
	"github.com/noah-isme/akcizas/internal/obs"
)

// Handler exposes the recalculation and excise lookup endpoints.
type Handler struct {
	engine   *Engine
	registry *excise.Registry
	cache    *Cache
	validate *validator.Validate
	logger   zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Engine    *Engine
	Registry  *excise.Registry
	Cache     *Cache
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = NewValidator()
	}
	return &Handler{
		engine:   cfg.Engine,
		registry: cfg.Registry,
		cache:    cfg.Cache,
		validate: v,
		logger:   cfg.Logger,
	}
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("product_type", func(fl validator.FieldLevel) bool {
		_, ok := excise.ParseHint(fl.Field().String())
		return ok
	})
	return v
}

type itemRequest struct {
	ProductIndex   *int             `json:"product_index" validate:"required"`
	TransportTotal any              `json:"transport_total"`
	AllProducts    []map[string]any `json:"all_products" validate:"required,max=5000"`
}

type itemResponse struct {
	Data map[string]any `json:"data"`
}

type allRequest struct {
	Products        []map[string]any `json:"products" validate:"required,max=5000"`
	TransportTotal  any              `json:"transport_total"`
	InvoiceDiscount any              `json:"invoice_discount,omitempty"`
}

type allResponse struct {
	Data   []map[string]any `json:"data"`
	Totals TotalsView       `json:"totals"`
	Issues []Issue          `json:"issues"`
}

type classifyRequest struct {
	Name        string `json:"name" validate:"required_without=ProductType,max=500"`
	ProductType string `json:"product_type" validate:"omitempty,product_type"`
	ABV         any    `json:"abv"`
}

type classifyResponse struct {
	Category      string  `json:"category"`
	Label         string  `json:"label"`
	Hint          string  `json:"product_type"`
	Indeterminate bool    `json:"indeterminate"`
	Reason        string  `json:"reason,omitempty"`
	Glassware     bool    `json:"glassware"`
	ABV           *string `json:"abv"`
}

// RecalculateItem handles POST /api/v1/recalculate/item.
func (h *Handler) RecalculateItem(w http.ResponseWriter, r *http.Request) {
	const op = "item"
	start := time.Now()
	var req itemRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, op, 0, start, err)
		return
	}

	cacheKey := h.cacheKey(op, req)
	var cached itemResponse
	if h.fromCache(r, cacheKey, &cached) {
		h.ok(w, op, len(req.AllProducts), start, cached)
		return
	}

	total, transportIssue, err := ParseTransportTotal(req.TransportTotal)
	if err != nil {
		h.fail(w, r, op, len(req.AllProducts), start, err)
		return
	}
	if transportIssue != nil {
		h.log(r).Warn().Str("field", transportIssue.Field).Str("raw", transportIssue.Raw).Msg(transportIssue.Message)
		obs.CountIssue(string(transportIssue.Kind))
	}
	items := DecodeItems(req.AllProducts)
	row, _, err := h.engine.RecalculateOne(r.Context(), *req.ProductIndex, items, TransportContext{Total: total})
	if err != nil {
		h.fail(w, r, op, len(items), start, err)
		return
	}
	h.countRow(row)
	resp := itemResponse{Data: EncodeRow(row)}
	h.toCache(r, cacheKey, resp)
	h.ok(w, op, len(items), start, resp)
}

// RecalculateAll handles POST /api/v1/recalculate/all.
func (h *Handler) RecalculateAll(w http.ResponseWriter, r *http.Request) {
	const op = "all"
	start := time.Now()
	var req allRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, op, 0, start, err)
		return
	}

	cacheKey := h.cacheKey(op, req)
	var cached allResponse
	if h.fromCache(r, cacheKey, &cached) {
		h.ok(w, op, len(req.Products), start, cached)
		return
	}

	issues := make([]Issue, 0)
	total, transportIssue, err := ParseTransportTotal(req.TransportTotal)
	if err != nil {
		h.fail(w, r, op, len(req.Products), start, err)
		return
	}
	if transportIssue != nil {
		issues = append(issues, *transportIssue)
	}
	discount, discountIssue := ParseInvoiceDiscount(req.InvoiceDiscount)
	if discountIssue != nil {
		issues = append(issues, *discountIssue)
	}
	tc := TransportContext{Total: total, InvoiceDiscount: discount}
	for _, issue := range issues {
		h.log(r).Warn().Str("field", issue.Field).Str("raw", issue.Raw).Msg(issue.Message)
	}

	res, err := h.engine.RecalculateAll(r.Context(), DecodeItems(req.Products), tc)
	if err != nil {
		h.fail(w, r, op, len(req.Products), start, err)
		return
	}
	for _, row := range res.Rows {
		h.countRow(row)
	}
	issues = append(issues, res.Issues...)
	for _, issue := range issues {
		if issue.Row == RequestRow {
			obs.CountIssue(string(issue.Kind))
		}
	}
	resp := allResponse{
		Data:   EncodeRows(res.Rows),
		Totals: EncodeTotals(res.Totals, h.engine.Table(), h.engine.VATRate()),
		Issues: issues,
	}
	h.toCache(r, cacheKey, resp)
	h.ok(w, op, len(res.Rows), start, resp)
}

// Classify handles POST /api/v1/excise/classify.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := h.bind(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	hint := excise.DetectHint(req.Name)
	if req.ProductType != "" {
		if parsed, ok := excise.ParseHint(req.ProductType); ok {
			hint = parsed
		}
	}
	var abv decimal.NullDecimal
	if text, present := numericText(req.ABV); present {
		value, ok := common.ParseLocaleDecimal(text)
		if !ok {
			common.WriteError(w, common.BadRequest(common.CodeInvalidRequest, "abv is not a number", nil).
				WithDetails(map[string]any{"field": "abv", "raw": text}))
			return
		}
		abv = decimal.NewNullDecimal(value)
	}
	cls := excise.NewClassifier(h.engine.Table()).Classify(hint, abv)
	resp := classifyResponse{
		Category:      string(cls.Category),
		Label:         cls.Category.Label(),
		Hint:          string(hint),
		Indeterminate: cls.Indeterminate,
		Reason:        cls.Reason,
		Glassware:     excise.IsGlassware(req.Name),
	}
	if abv.Valid {
		s := abv.Decimal.String()
		resp.ABV = &s
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

// Rates handles GET /api/v1/excise/rates. The optional year query parameter
// selects a tax year other than the active one.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	table := h.engine.Table()
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			common.WriteError(w, common.BadRequest(common.CodeInvalidRequest, "year must be an integer", err))
			return
		}
		if h.registry == nil {
			common.WriteError(w, common.NewAppError("NOT_FOUND", "tax year not available", http.StatusNotFound, nil))
			return
		}
		table, err = h.registry.ForYear(year)
		if err != nil {
			common.WriteError(w, common.NewAppError("NOT_FOUND", "tax year not available", http.StatusNotFound, err))
			return
		}
	}
	years := []int{table.Year}
	if h.registry != nil {
		years = h.registry.Years()
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": RateTableView(table),
		"meta": map[string]any{"active_year": h.engine.Table().Year, "years": years},
	})
}

// Categories handles GET /api/v1/excise/categories.
func (h *Handler) Categories(w http.ResponseWriter, _ *http.Request) {
	rows := make([]map[string]string, 0, len(excise.Categories))
	for _, c := range excise.Categories {
		rows = append(rows, map[string]string{"key": string(c), "label": c.Label()})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// RateView is the wire form of one rate table entry.
type RateView struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Basis    string `json:"basis"`
	Rate     string `json:"rate"`
}

// RateTableView renders a rate table for clients.
func RateTableView(t *excise.RateTable) map[string]any {
	rates := make([]RateView, 0, len(t.Rates))
	for _, c := range excise.Categories {
		spec, ok := t.RateFor(c)
		if !ok {
			continue
		}
		rates = append(rates, RateView{
			Category: string(c),
			Label:    c.Label(),
			Basis:    string(spec.Basis),
			Rate:     spec.Rate.String(),
		})
	}
	return map[string]any{
		"year":     t.Year,
		"currency": t.Currency,
		"thresholds": map[string]string{
			"wine_high_abv":         t.Thresholds.WineHighABV.String(),
			"intermediate_high_abv": t.Thresholds.IntermediateHighABV.String(),
		},
		"rates": rates,
	}
}

func (h *Handler) bind(r *http.Request, dst any) error {
	if err := common.DecodeJSON(r, dst); err != nil {
		return err
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return common.BadRequest(common.CodeInvalidRequest, "request validation failed", err).
				WithDetails(map[string]any{"fields": fields})
		}
		return common.BadRequest(common.CodeInvalidRequest, "request validation failed", err)
	}
	return nil
}

// toAppError maps engine sentinel errors onto request errors.
func toAppError(err error) error {
	switch {
	case errors.Is(err, ErrNegativeQuantity):
		return common.BadRequest(common.CodeInvalidQuantity, "quantity must not be negative", err).
			WithDetails(map[string]any{"reason": err.Error()})
	case errors.Is(err, ErrNegativeTransport):
		return common.BadRequest(common.CodeInvalidTransport, "transport total must not be negative", err)
	case errors.Is(err, ErrIndexOutOfRange):
		return common.BadRequest(common.CodeIndexOutOfRange, "product_index is out of range", err).
			WithDetails(map[string]any{"reason": err.Error()})
	}
	return err
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, rows int, start time.Time, err error) {
	err = toAppError(err)
	result := "invalid"
	if !common.IsAppError(err) {
		result = "error"
		h.log(r).Error().Err(err).Str("op", op).Msg("recalculation failed")
	}
	obs.ObserveRecalc(op, result, rows, obs.DurationMillis(time.Since(start)))
	common.WriteError(w, err)
}

// log prefers the request-scoped logger installed by obs.RequestLogger.
func (h *Handler) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.logger
}

func (h *Handler) ok(w http.ResponseWriter, op string, rows int, start time.Time, body any) {
	obs.ObserveRecalc(op, "ok", rows, obs.DurationMillis(time.Since(start)))
	common.JSON(w, http.StatusOK, body)
}

func (h *Handler) countRow(row Row) {
	obs.CountClassified(string(row.Category))
	for _, w := range row.Warnings {
		obs.CountIssue(string(w.Kind))
	}
}

func (h *Handler) cacheKey(op string, req any) string {
	if !h.cache.enabled() {
		return ""
	}
	digest, err := common.HashJSON(req)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", op, h.engine.Fingerprint(), digest)
}

func (h *Handler) fromCache(r *http.Request, key string, dst any) bool {
	if key == "" {
		return false
	}
	hit, err := h.cache.GetJSON(r.Context(), key, dst)
	if err != nil {
		h.log(r).Warn().Err(err).Msg("read result cache")
		return false
	}
	obs.CountCache(hit)
	return hit
}

func (h *Handler) toCache(r *http.Request, key string, v any) {
	if key == "" {
		return
	}
	if err := h.cache.SetJSON(r.Context(), key, v); err != nil {
		h.log(r).Warn().Err(err).Msg("write result cache")
	}
}
