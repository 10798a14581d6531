// Package bitmex maps BitMEX order fields to their canonical forms.
package bitmex

import (
	"github.com/yanun0323/errors"

	"tradecore/internal/adapter"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// TimeInForce is the BitMEX wire value of an order's time in force.
type TimeInForce string

const (
	Day                 TimeInForce = "Day"
	GoodTillCancel      TimeInForce = "GoodTillCancel"
	GoodTillDate        TimeInForce = "GoodTillDate"
	ImmediateOrCancel   TimeInForce = "ImmediateOrCancel"
	FillOrKill          TimeInForce = "FillOrKill"
	AtTheOpening        TimeInForce = "AtTheOpening"
	AtTheClose          TimeInForce = "AtTheClose"
	GoodTillCrossing    TimeInForce = "GoodTillCrossing"
	GoodThroughCrossing TimeInForce = "GoodThroughCrossing"
	AtCrossing          TimeInForce = "AtCrossing"
)

const tifField = "timeInForce"

var toCanonical = map[TimeInForce]enum.TimeInForce{
	Day:               enum.TimeInForceDay,
	GoodTillCancel:    enum.TimeInForceGTC,
	GoodTillDate:      enum.TimeInForceGTD,
	ImmediateOrCancel: enum.TimeInForceIOC,
	FillOrKill:        enum.TimeInForceFOK,
	AtTheOpening:      enum.TimeInForceAtTheOpen,
	AtTheClose:        enum.TimeInForceAtTheClose,
}

var fromCanonical = func() map[enum.TimeInForce]TimeInForce {
	m := make(map[enum.TimeInForce]TimeInForce, len(toCanonical))
	for k, v := range toCanonical {
		m[v] = k
	}
	return m
}()

// ParseTimeInForce converts a BitMEX value to the canonical enum. Crossing
// values have no canonical counterpart and are rejected as unsupported.
func ParseTimeInForce(s string) (enum.TimeInForce, error) {
	tif := TimeInForce(s)
	if v, ok := toCanonical[tif]; ok {
		return v, nil
	}
	e := &adapter.Error{Kind: adapter.KindValidation, Field: tifField}
	switch tif {
	case GoodTillCrossing, GoodThroughCrossing, AtCrossing:
		e.Message, e.Err = "unsupported time in force "+s, errors.Wrap(exception.ErrUnsupportedTimeInForce, s)
	default:
		e.Message, e.Err = "unknown time in force "+s, errors.Wrap(exception.ErrUnknownTimeInForce, s)
	}
	return 0, e
}

// FormatTimeInForce converts a canonical time in force to its BitMEX value.
func FormatTimeInForce(tif enum.TimeInForce) (TimeInForce, error) {
	if v, ok := fromCanonical[tif]; ok {
		return v, nil
	}
	return "", adapter.NewError(adapter.KindValidation, "unknown time in force "+tif.String(),
		errors.Wrap(exception.ErrUnknownTimeInForce, tif.String()))
}
