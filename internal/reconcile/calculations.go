package reconcile

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// DefaultTolerance is the relative average price tolerance used when comparing
// a simulated position against the venue.
var DefaultTolerance = decimal.New(1, -4)

// FillSnapshot is the part of a fill report the position simulation needs.
type FillSnapshot struct {
	TsEvent      model.UnixNanos
	Side         enum.OrderSide
	Qty          decimal.Decimal
	Px           decimal.Decimal
	VenueOrderID model.VenueOrderID
}

func (f FillSnapshot) signedQty() decimal.Decimal {
	if f.Side == enum.OrderSideSell {
		return f.Qty.Neg()
	}
	return f.Qty
}

// VenuePosition is the venue's signed position.
type VenuePosition struct {
	Qty    decimal.Decimal
	AvgPx  decimal.Decimal
	TsLast model.UnixNanos
}

// SortFills orders fills by event time, breaking ties by venue order id.
func SortFills(fills []FillSnapshot) {
	slices.SortStableFunc(fills, compareFills)
}

func compareFills(a, b FillSnapshot) int {
	if c := cmp.Compare(a.TsEvent, b.TsEvent); c != 0 {
		return c
	}
	return cmp.Compare(a.VenueOrderID.String(), b.VenueOrderID.String())
}

// SimulatePosition replays fills from flat and returns the signed quantity and
// the cost value of the open position. Reductions keep the average price, a
// flip resets the value to the remainder at the flipping fill's price.
func SimulatePosition(fills []FillSnapshot) (qty, value decimal.Decimal) {
	qty, value = decimal.Zero, decimal.Zero
	for _, f := range fills {
		buy := f.Side == enum.OrderSideBuy
		if (buy && qty.Sign() >= 0) || (!buy && qty.Sign() <= 0) {
			qty = qty.Add(f.signedQty())
			value = value.Add(f.Qty.Mul(f.Px))
			continue
		}

		abs := qty.Abs()
		if abs.GreaterThanOrEqual(f.Qty) {
			value = value.Mul(decimal.NewFromInt(1).Sub(f.Qty.Div(abs)))
			qty = qty.Add(f.signedQty())
			continue
		}

		remaining := f.Qty.Sub(abs)
		if buy {
			qty = remaining
		} else {
			qty = remaining.Neg()
		}
		value = remaining.Mul(f.Px)
	}
	return qty, value
}

// DetectZeroCrossings returns the event times of fills that bring the running
// position to flat or flip its sign.
func DetectZeroCrossings(fills []FillSnapshot) []model.UnixNanos {
	var (
		crossings []model.UnixNanos
		running   = decimal.Zero
	)
	for _, f := range fills {
		prev := running
		running = running.Add(f.signedQty())
		if prev.IsZero() {
			continue
		}
		if running.IsZero() || prev.Sign() != running.Sign() {
			crossings = append(crossings, f.TsEvent)
		}
	}
	return crossings
}

// CheckPositionMatch compares a simulated position against the venue. Quantities
// must be equal; average prices may differ by tolerance relative to the venue.
func CheckPositionMatch(simQty, simValue decimal.Decimal, venue VenuePosition, tolerance decimal.Decimal) bool {
	if !simQty.Equal(venue.Qty) {
		return false
	}
	if simQty.IsZero() {
		return true
	}
	if venue.AvgPx.IsZero() {
		return false
	}
	simAvg := simValue.Div(simQty.Abs())
	return simAvg.Sub(venue.AvgPx).Abs().Div(venue.AvgPx.Abs()).LessThanOrEqual(tolerance)
}

// CalculateReconciliationPrice returns the price of the single fill that takes
// a position from (currentQty, currentPx) to (targetQty, targetPx).
func CalculateReconciliationPrice(currentQty decimal.Decimal, currentPx decimal.NullDecimal, targetQty decimal.Decimal, targetPx decimal.NullDecimal) decimal.NullDecimal {
	diff := targetQty.Sub(currentQty)
	if diff.IsZero() {
		return decimal.NullDecimal{}
	}
	if targetQty.IsZero() {
		return currentPx
	}
	if !targetPx.Valid || targetPx.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	if currentQty.IsZero() || !currentPx.Valid {
		return targetPx
	}
	if currentQty.Sign() != targetQty.Sign() {
		return targetPx
	}

	px := targetQty.Mul(targetPx.Decimal).Sub(currentQty.Mul(currentPx.Decimal)).Div(diff)
	if !px.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(px)
}

func averagePx(qty, value decimal.Decimal) decimal.NullDecimal {
	if qty.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(value.Div(qty.Abs()))
}

// Action is the rewrite chosen for one instrument.
type Action uint8

const (
	NoAdjustment Action = iota
	AddSyntheticOpening
	ReplaceCurrentLifecycle
	FilterToCurrentLifecycle
	AddSyntheticClose
)

func (a Action) String() string {
	switch a {
	case NoAdjustment:
		return "NoAdjustment"
	case AddSyntheticOpening:
		return "AddSyntheticOpening"
	case ReplaceCurrentLifecycle:
		return "ReplaceCurrentLifecycle"
	case FilterToCurrentLifecycle:
		return "FilterToCurrentLifecycle"
	case AddSyntheticClose:
		return "AddSyntheticClose"
	default:
		return "Unknown"
	}
}

// Adjustment describes how to rewrite a sorted fill sequence.
//
// Kept holds the indices of the input fills that survive. Synthetic, when set,
// is inserted in event time order; an empty VenueOrderID asks the caller to
// mint a synthetic order for it.
type Adjustment struct {
	Action    Action
	Boundary  model.UnixNanos
	Kept      []int
	Synthetic *FillSnapshot
}

// AdjustFills classifies fills, which must already be sorted, against the venue
// position and returns the rewrite that reproduces it.
func AdjustFills(fills []FillSnapshot, venue VenuePosition, tolerance decimal.Decimal) (Adjustment, error) {
	all := indexRange(0, len(fills))
	simQty, simValue := SimulatePosition(fills)
	if CheckPositionMatch(simQty, simValue, venue, tolerance) {
		return Adjustment{Action: NoAdjustment, Kept: all}, nil
	}

	if venue.Qty.IsZero() {
		px := CalculateReconciliationPrice(simQty, averagePx(simQty, simValue), decimal.Zero, decimal.NullDecimal{})
		if !px.Valid {
			return Adjustment{}, errors.Wrap(exception.ErrReconcileUnresolved, "close residual").With("qty", simQty.String())
		}
		return Adjustment{
			Action:    AddSyntheticClose,
			Kept:      all,
			Synthetic: synthetic(simQty.Neg(), px.Decimal, fills[len(fills)-1].TsEvent+1, model.VenueOrderID{}),
		}, nil
	}

	crossings := DetectZeroCrossings(fills)
	if len(crossings) == 0 {
		ts := venue.TsLast
		if len(fills) != 0 {
			ts = saturatingPrev(fills[0].TsEvent)
		}
		return bridge(AddSyntheticOpening, simQty, simValue, venue, all, ts, model.VenueOrderID{}, 0)
	}

	boundary := crossings[len(crossings)-1]
	if flat, ok := lastFlatCrossing(fills); ok {
		boundary = flat
	}

	split := len(fills)
	for i, f := range fills {
		if f.TsEvent > boundary {
			split = i
			break
		}
	}
	pre, current := fills[:split], fills[split:]

	if len(current) == 0 {
		return bridge(AddSyntheticOpening, simQty, simValue, venue, all, fills[len(fills)-1].TsEvent+1, model.VenueOrderID{}, boundary)
	}

	curQty, curValue := SimulatePosition(current)
	if CheckPositionMatch(curQty, curValue, venue, tolerance) {
		return Adjustment{
			Action:   FilterToCurrentLifecycle,
			Boundary: boundary,
			Kept:     indexRange(split, len(fills)),
		}, nil
	}

	preQty, preValue := SimulatePosition(pre)
	first := current[0]
	return bridge(ReplaceCurrentLifecycle, preQty, preValue, venue, indexRange(0, split), first.TsEvent, first.VenueOrderID, boundary)
}

// bridge builds the single synthetic fill that takes the (qty, value) position
// to the venue position.
func bridge(action Action, qty, value decimal.Decimal, venue VenuePosition, kept []int, ts model.UnixNanos, venueOrderID model.VenueOrderID, boundary model.UnixNanos) (Adjustment, error) {
	px := CalculateReconciliationPrice(qty, averagePx(qty, value), venue.Qty, decimal.NewNullDecimal(venue.AvgPx))
	delta := venue.Qty.Sub(qty)
	if !px.Valid || delta.IsZero() {
		return Adjustment{}, errors.Wrap(exception.ErrReconcileUnresolved, action.String()).
			With("sim_qty", qty.String()).With("venue_qty", venue.Qty.String())
	}
	return Adjustment{
		Action:    action,
		Boundary:  boundary,
		Kept:      kept,
		Synthetic: synthetic(delta, px.Decimal, ts, venueOrderID),
	}, nil
}

func synthetic(signed, px decimal.Decimal, ts model.UnixNanos, venueOrderID model.VenueOrderID) *FillSnapshot {
	side := enum.OrderSideBuy
	if signed.IsNegative() {
		side = enum.OrderSideSell
	}
	return &FillSnapshot{
		TsEvent:      ts,
		Side:         side,
		Qty:          signed.Abs(),
		Px:           px,
		VenueOrderID: venueOrderID,
	}
}

func lastFlatCrossing(fills []FillSnapshot) (model.UnixNanos, bool) {
	var (
		ts      model.UnixNanos
		found   bool
		running = decimal.Zero
	)
	for _, f := range fills {
		prev := running
		running = running.Add(f.signedQty())
		if !prev.IsZero() && running.IsZero() {
			ts, found = f.TsEvent, true
		}
	}
	return ts, found
}

func saturatingPrev(ts model.UnixNanos) model.UnixNanos {
	if ts == 0 {
		return 0
	}
	return ts - 1
}

func indexRange(from, to int) []int {
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return idx
}
