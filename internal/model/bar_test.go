package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/clock"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

func TestParseBarType(t *testing.T) {
	testCases := []struct {
		desc  string
		input string
		step  uint64
		agg   enum.BarAggregation
		price enum.PriceType
		src   enum.AggregationSource
	}{
		{desc: "minute bid", input: "AUDUSD.SIM-1-MINUTE-BID-EXTERNAL", step: 1, agg: enum.BarAggregationMinute, price: enum.PriceTypeBid, src: enum.AggregationSourceExternal},
		{desc: "dashed symbol", input: "BTC-PERP.DERIBIT-15-SECOND-LAST-INTERNAL", step: 15, agg: enum.BarAggregationSecond, price: enum.PriceTypeLast, src: enum.AggregationSourceInternal},
		{desc: "tick", input: "ES.GLBX-100-TICK-MID-INTERNAL", step: 100, agg: enum.BarAggregationTick, price: enum.PriceTypeMid, src: enum.AggregationSourceInternal},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			bt, err := ParseBarType(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.step, bt.Spec.Step)
			assert.Equal(t, tc.agg, bt.Spec.Aggregation)
			assert.Equal(t, tc.price, bt.Spec.PriceType)
			assert.Equal(t, tc.src, bt.Source)
			assert.Equal(t, tc.input, bt.String())
		})
	}
}

func TestParseBarTypeInvalid(t *testing.T) {
	for _, s := range []string{
		"AUDUSD.SIM-1-MINUTE-BID",
		"AUDUSD.SIM-0-MINUTE-BID-EXTERNAL",
		"AUDUSD.SIM-1-FORTNIGHT-BID-EXTERNAL",
		"AUDUSD.SIM-1-MINUTE-CLOSE-EXTERNAL",
		"AUDUSD.SIM-1-MINUTE-BID-VENDOR",
		"AUDUSD-1-MINUTE-BID-EXTERNAL",
	} {
		_, err := ParseBarType(s)
		require.Error(t, err, s)
	}
}

func TestAdjustBarTsInit(t *testing.T) {
	testCases := []struct {
		desc    string
		now     UnixNanos
		tsEvent UnixNanos
		agg     enum.BarAggregation
		want    UnixNanos
	}{
		{desc: "event ahead of clock", now: 100, tsEvent: 1_000, agg: enum.BarAggregationSecond, want: 1_000 + UnixNanos(clock.NanosPerSecond)},
		{desc: "clock ahead of event", now: 5_000, tsEvent: 1_000, agg: enum.BarAggregationMinute, want: 5_000 + UnixNanos(clock.NanosPerMinute)},
		{desc: "hour", now: 0, tsEvent: 7, agg: enum.BarAggregationHour, want: 7 + UnixNanos(clock.NanosPerHour)},
		{desc: "day", now: 0, tsEvent: 0, agg: enum.BarAggregationDay, want: UnixNanos(clock.NanosPerDay)},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := AdjustBarTsInit(tc.now, tc.tsEvent, tc.agg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := AdjustBarTsInit(0, 0, enum.BarAggregationTick)
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestBarSpecInterval(t *testing.T) {
	d, ok := BarSpec{Step: 5, Aggregation: enum.BarAggregationMinute}.Interval()
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, d)

	_, ok = BarSpec{Step: 5, Aggregation: enum.BarAggregationVolume}.Interval()
	assert.False(t, ok)
}

func TestNewBarValidatesOHLC(t *testing.T) {
	bt, err := ParseBarType("AUDUSD.SIM-1-MINUTE-BID-EXTERNAL")
	require.NoError(t, err)

	_, err = NewBar(bt, MustParsePrice("1.00"), MustParsePrice("1.10"), MustParsePrice("0.90"), MustParsePrice("1.05"), MustParseQuantity("10"), 1, 2)
	require.NoError(t, err)

	_, err = NewBar(bt, MustParsePrice("1.00"), MustParsePrice("0.95"), MustParsePrice("0.90"), MustParsePrice("1.05"), MustParseQuantity("10"), 1, 2)
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}
