package transport

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrNegativeTotal is returned when the invoice transport cost is negative.
var ErrNegativeTotal = errors.New("transport: total must not be negative")

// Mode records which allocation strategy produced the shares.
type Mode string

const (
	// ModeWeighted allocates proportionally to volume*quantity (or quantity).
	ModeWeighted Mode = "weighted"
	// ModeEqualSplit is used when every weight is zero but transport is due.
	ModeEqualSplit Mode = "equal_split"
	// ModeZero is used when there is nothing to allocate.
	ModeZero Mode = "zero"
	// ModeEmpty is used for an empty item list.
	ModeEmpty Mode = "empty"
)

// Line is the part of a line item the allocator looks at.
type Line struct {
	VolumeLiters decimal.Decimal
	Quantity     int64
	Glassware    bool
}

// Share is the transport cost allocated to one line.
type Share struct {
	Total   decimal.Decimal
	PerUnit decimal.Decimal
}

// Result holds one share per input line, in input order.
type Result struct {
	Shares []Share
	Mode   Mode
	Total  decimal.Decimal
}

// Options tunes the allocator. The zero value uses cent precision and no
// glassware override.
type Options struct {
	// Places is the currency precision of each share.
	Places int32
	// GlasswareVolume replaces the volume of glassware lines when weighing.
	GlasswareVolume decimal.Decimal
}

const (
	defaultPlaces = 2
	perUnitPlaces = 4
	workPlaces    = 16
)

// Allocate distributes total across lines proportionally to their weight and
// reconciles rounding with the largest-remainder method, so the shares always
// sum to total rounded to Options.Places.
func Allocate(lines []Line, total decimal.Decimal, opts Options) (Result, error) {
	if total.IsNegative() {
		return Result{}, ErrNegativeTotal
	}
	places := opts.Places
	if places <= 0 {
		places = defaultPlaces
	}
	total = total.Round(places)
	res := Result{Shares: make([]Share, len(lines)), Total: total}
	for i := range res.Shares {
		res.Shares[i] = Share{Total: decimal.Zero, PerUnit: decimal.Zero}
	}
	if len(lines) == 0 {
		res.Mode = ModeEmpty
		return res, nil
	}
	if total.IsZero() {
		res.Mode = ModeZero
		return res, nil
	}

	weights := make([]decimal.Decimal, len(lines))
	totalWeight := decimal.Zero
	for i, line := range lines {
		weights[i] = weightOf(line, opts.GlasswareVolume)
		totalWeight = totalWeight.Add(weights[i])
	}
	res.Mode = ModeWeighted
	if totalWeight.IsZero() {
		res.Mode = ModeEqualSplit
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
		totalWeight = decimal.NewFromInt(int64(len(weights)))
	}

	unit := decimal.New(1, -places)
	type remainder struct {
		index int
		frac  decimal.Decimal
	}
	rems := make([]remainder, len(lines))
	allocated := decimal.Zero
	for i, w := range weights {
		exact := total.Mul(w).DivRound(totalWeight, workPlaces)
		floor := exact.Shift(places).Floor().Shift(-places)
		res.Shares[i].Total = floor
		allocated = allocated.Add(floor)
		rems[i] = remainder{index: i, frac: exact.Sub(floor)}
	}
	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].frac.GreaterThan(rems[b].frac)
	})
	left := total.Sub(allocated).Div(unit).IntPart()
	for k := 0; left > 0; k = (k + 1) % len(rems) {
		idx := rems[k].index
		res.Shares[idx].Total = res.Shares[idx].Total.Add(unit)
		left--
	}

	for i, line := range lines {
		if line.Quantity > 0 {
			res.Shares[i].PerUnit = res.Shares[i].Total.DivRound(decimal.NewFromInt(line.Quantity), perUnitPlaces)
		}
	}
	return res, nil
}

// weightOf returns volume*quantity, falling back to quantity alone when the
// volume is unknown.
func weightOf(line Line, glassware decimal.Decimal) decimal.Decimal {
	if line.Quantity <= 0 {
		return decimal.Zero
	}
	qty := decimal.NewFromInt(line.Quantity)
	volume := line.VolumeLiters
	if line.Glassware && glassware.IsPositive() {
		volume = glassware
	}
	if volume.IsPositive() {
		return volume.Mul(qty)
	}
	return qty
}
