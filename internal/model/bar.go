package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/clock"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// BarSpec is the step, aggregation and price type of a bar series.
type BarSpec struct {
	Step        uint64              `json:"step" codec:"step"`
	Aggregation enum.BarAggregation `json:"aggregation" codec:"aggregation"`
	PriceType   enum.PriceType      `json:"priceType" codec:"priceType"`
}

func (s BarSpec) String() string {
	return strconv.FormatUint(s.Step, 10) + "-" + s.Aggregation.String() + "-" + s.PriceType.String()
}

// Interval returns the bar length for fixed time aggregations.
func (s BarSpec) Interval() (time.Duration, bool) {
	var unit time.Duration
	switch s.Aggregation {
	case enum.BarAggregationMillisecond:
		unit = time.Millisecond
	case enum.BarAggregationSecond:
		unit = time.Second
	case enum.BarAggregationMinute:
		unit = time.Minute
	case enum.BarAggregationHour:
		unit = time.Hour
	case enum.BarAggregationDay:
		unit = 24 * time.Hour
	case enum.BarAggregationWeek:
		unit = 7 * 24 * time.Hour
	default:
		return 0, false
	}
	return time.Duration(s.Step) * unit, true
}

// BarType identifies a bar series, e.g. AUDUSD.SIM-1-MINUTE-BID-EXTERNAL.
type BarType struct {
	InstrumentID InstrumentID           `json:"instrumentId" codec:"instrumentId"`
	Spec         BarSpec                `json:"spec" codec:"spec"`
	Source       enum.AggregationSource `json:"source" codec:"source"`
}

func (b BarType) String() string {
	return b.InstrumentID.String() + "-" + b.Spec.String() + "-" + b.Source.String()
}

// ParseBarType parses the form produced by BarType.String. The symbol may itself contain '-'.
func ParseBarType(s string) (BarType, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 5 {
		return BarType{}, errors.Wrap(exception.ErrInvalidArgument, "parse bar type").With("value", s)
	}
	n := len(parts)
	id, err := ParseInstrumentID(strings.Join(parts[:n-4], "-"))
	if err != nil {
		return BarType{}, errors.Wrap(err, "parse bar type").With("value", s)
	}
	step, err := strconv.ParseUint(parts[n-4], 10, 64)
	if err != nil || step == 0 {
		return BarType{}, errors.Wrap(exception.ErrInvalidArgument, "parse bar step").With("value", s)
	}
	agg, ok := enum.ParseBarAggregation(parts[n-3])
	if !ok {
		return BarType{}, errors.Wrap(exception.ErrInvalidArgument, "parse bar aggregation").With("value", s)
	}
	pt, ok := enum.ParsePriceType(parts[n-2])
	if !ok {
		return BarType{}, errors.Wrap(exception.ErrInvalidArgument, "parse price type").With("value", s)
	}
	src, ok := enum.ParseAggregationSource(parts[n-1])
	if !ok {
		return BarType{}, errors.Wrap(exception.ErrInvalidArgument, "parse aggregation source").With("value", s)
	}
	return BarType{
		InstrumentID: id,
		Spec:         BarSpec{Step: step, Aggregation: agg, PriceType: pt},
		Source:       src,
	}, nil
}

// Bar is an OHLCV bar.
type Bar struct {
	BarType BarType   `json:"barType" codec:"barType"`
	Open    Price     `json:"open" codec:"open"`
	High    Price     `json:"high" codec:"high"`
	Low     Price     `json:"low" codec:"low"`
	Close   Price     `json:"close" codec:"close"`
	Volume  Quantity  `json:"volume" codec:"volume"`
	TsEvent UnixNanos `json:"tsEvent" codec:"tsEvent"`
	TsInit  UnixNanos `json:"tsInit" codec:"tsInit"`
}

// NewBar validates the OHLC relationship.
func NewBar(bt BarType, open, high, low, close Price, volume Quantity, tsEvent, tsInit UnixNanos) (Bar, error) {
	if high.Less(open) || high.Less(low) || high.Less(close) || low.Greater(open) || low.Greater(close) {
		return Bar{}, errors.Wrap(exception.ErrInvalidArgument, "bar ohlc").With("bar_type", bt.String())
	}
	return Bar{
		BarType: bt,
		Open:    open,
		High:    high,
		Low:     low,
		Close:   close,
		Volume:  volume,
		TsEvent: tsEvent,
		TsInit:  tsInit,
	}, nil
}

func (b Bar) Kind() enum.DataKind { return enum.DataKindBar }
func (b Bar) Instrument() InstrumentID { return b.BarType.InstrumentID }
func (b Bar) EventTime() UnixNanos { return b.TsEvent }
func (b Bar) InitTime() UnixNanos { return b.TsInit }

// BarCloseOffset is the delay between a bar's open timestamp and its close for
// aggregations where vendors stamp bars at the open.
func BarCloseOffset(agg enum.BarAggregation) (UnixNanos, bool) {
	switch agg {
	case enum.BarAggregationSecond:
		return UnixNanos(clock.NanosPerSecond), true
	case enum.BarAggregationMinute:
		return UnixNanos(clock.NanosPerMinute), true
	case enum.BarAggregationHour:
		return UnixNanos(clock.NanosPerHour), true
	case enum.BarAggregationDay:
		return UnixNanos(clock.NanosPerDay), true
	default:
		return 0, false
	}
}

// AdjustBarTsInit returns max(now, tsEvent) plus the close offset of agg.
func AdjustBarTsInit(now, tsEvent UnixNanos, agg enum.BarAggregation) (UnixNanos, error) {
	offset, ok := BarCloseOffset(agg)
	if !ok {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "bar close offset").With("aggregation", agg.String())
	}
	return max(now, tsEvent) + offset, nil
}
