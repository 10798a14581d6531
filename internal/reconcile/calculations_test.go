package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func snap(ts model.UnixNanos, side enum.OrderSide, qty, px string) FillSnapshot {
	return FillSnapshot{TsEvent: ts, Side: side, Qty: dec(qty), Px: dec(px), VenueOrderID: model.NewVenueOrderID("V-" + ts.Hex())}
}

func nullDec(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(dec(s))
}

func TestSimulatePosition(t *testing.T) {
	buy, sell := enum.OrderSideBuy, enum.OrderSideSell
	testCases := []struct {
		desc  string
		fills []FillSnapshot
		qty   string
		value string
	}{
		{desc: "empty", qty: "0", value: "0"},
		{
			desc:  "accumulate long",
			fills: []FillSnapshot{snap(1, buy, "5", "100"), snap(2, buy, "5", "102")},
			qty:   "10", value: "1010",
		},
		{
			desc:  "partial reduce keeps average",
			fills: []FillSnapshot{snap(1, buy, "10", "100"), snap(2, sell, "4", "130")},
			qty:   "6", value: "600",
		},
		{
			desc:  "close to flat",
			fills: []FillSnapshot{snap(1, buy, "10", "100"), snap(2, sell, "10", "110")},
			qty:   "0", value: "0",
		},
		{
			desc:  "flip resets value at flip price",
			fills: []FillSnapshot{snap(1, buy, "10", "100"), snap(2, sell, "15", "110")},
			qty:   "-5", value: "550",
		},
		{
			desc:  "accumulate short",
			fills: []FillSnapshot{snap(1, sell, "2", "50"), snap(2, sell, "2", "60")},
			qty:   "-4", value: "220",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			qty, value := SimulatePosition(tc.fills)
			assert.True(t, qty.Equal(dec(tc.qty)), "qty %s", qty)
			assert.True(t, value.Equal(dec(tc.value)), "value %s", value)
		})
	}
}

func TestDetectZeroCrossings(t *testing.T) {
	buy, sell := enum.OrderSideBuy, enum.OrderSideSell
	fills := []FillSnapshot{
		snap(1, buy, "10", "100"),
		snap(2, sell, "10", "110"),
		snap(3, buy, "3", "120"),
		snap(4, sell, "5", "121"),
		snap(5, sell, "1", "122"),
	}
	assert.Equal(t, []model.UnixNanos{2, 4}, DetectZeroCrossings(fills))
	assert.Empty(t, DetectZeroCrossings(fills[:1]))
	assert.Empty(t, DetectZeroCrossings(nil))
}

func TestCheckPositionMatch(t *testing.T) {
	tol := DefaultTolerance
	testCases := []struct {
		desc     string
		qty      string
		value    string
		venueQty string
		venueAvg string
		want     bool
	}{
		{desc: "exact", qty: "10", value: "1010", venueQty: "10", venueAvg: "101", want: true},
		{desc: "within tolerance", qty: "10", value: "1010.05", venueQty: "10", venueAvg: "101", want: true},
		{desc: "outside tolerance", qty: "10", value: "1012", venueQty: "10", venueAvg: "101", want: false},
		{desc: "quantity differs", qty: "9", value: "909", venueQty: "10", venueAvg: "101", want: false},
		{desc: "both flat", qty: "0", value: "0", venueQty: "0", venueAvg: "0", want: true},
		{desc: "venue average missing", qty: "10", value: "1010", venueQty: "10", venueAvg: "0", want: false},
		{desc: "short", qty: "-4", value: "220", venueQty: "-4", venueAvg: "55", want: true},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			venue := VenuePosition{Qty: dec(tc.venueQty), AvgPx: dec(tc.venueAvg)}
			assert.Equal(t, tc.want, CheckPositionMatch(dec(tc.qty), dec(tc.value), venue, tol))
		})
	}
}

func TestCalculateReconciliationPrice(t *testing.T) {
	testCases := []struct {
		desc      string
		currentQ  string
		currentPx string
		targetQ   string
		targetPx  string
		want      string
	}{
		{desc: "from flat", currentQ: "0", targetQ: "10", targetPx: "100", want: "100"},
		{desc: "accumulate", currentQ: "5", currentPx: "100", targetQ: "10", targetPx: "101", want: "102"},
		{desc: "flip", currentQ: "-3", currentPx: "90", targetQ: "7", targetPx: "100", want: "100"},
		{desc: "equal quantities", currentQ: "10", currentPx: "100", targetQ: "10", targetPx: "101"},
		{desc: "close to flat uses current price", currentQ: "5", currentPx: "100", targetQ: "0", want: "100"},
		{desc: "target price absent", currentQ: "5", currentPx: "100", targetQ: "10"},
		{desc: "target price zero", currentQ: "5", currentPx: "100", targetQ: "10", targetPx: "0"},
		{desc: "current price absent", currentQ: "5", targetQ: "10", targetPx: "101", want: "101"},
		{desc: "non positive solution", currentQ: "5", currentPx: "300", targetQ: "10", targetPx: "100"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := CalculateReconciliationPrice(dec(tc.currentQ), nullDec(tc.currentPx), dec(tc.targetQ), nullDec(tc.targetPx))
			if tc.want == "" {
				assert.False(t, got.Valid, "got %s", got.Decimal)
				return
			}
			require.True(t, got.Valid)
			assert.True(t, got.Decimal.Equal(dec(tc.want)), "got %s", got.Decimal)
		})
	}
}

func TestAdjustFills(t *testing.T) {
	buy, sell := enum.OrderSideBuy, enum.OrderSideSell

	t.Run("no adjustment", func(t *testing.T) {
		fills := []FillSnapshot{snap(10, buy, "5", "100"), snap(20, buy, "5", "102")}
		adj, err := AdjustFills(fills, VenuePosition{Qty: dec("10"), AvgPx: dec("101")}, DefaultTolerance)
		require.NoError(t, err)
		assert.Equal(t, NoAdjustment, adj.Action)
		assert.Equal(t, []int{0, 1}, adj.Kept)
		assert.Nil(t, adj.Synthetic)
	})

	t.Run("opening from empty", func(t *testing.T) {
		adj, err := AdjustFills(nil, VenuePosition{Qty: dec("10"), AvgPx: dec("100"), TsLast: 77}, DefaultTolerance)
		require.NoError(t, err)
		assert.Equal(t, AddSyntheticOpening, adj.Action)
		require.NotNil(t, adj.Synthetic)
		assert.Equal(t, buy, adj.Synthetic.Side)
		assert.True(t, adj.Synthetic.Qty.Equal(dec("10")))
		assert.True(t, adj.Synthetic.Px.Equal(dec("100")))
		assert.Equal(t, model.UnixNanos(77), adj.Synthetic.TsEvent)
		assert.True(t, adj.Synthetic.VenueOrderID.IsEmpty())
	})

	t.Run("opening before partial window", func(t *testing.T) {
		fills := []FillSnapshot{snap(10, buy, "5", "100")}
		adj, err := AdjustFills(fills, VenuePosition{Qty: dec("10"), AvgPx: dec("101")}, DefaultTolerance)
		require.NoError(t, err)
		assert.Equal(t, AddSyntheticOpening, adj.Action)
		require.NotNil(t, adj.Synthetic)
		assert.True(t, adj.Synthetic.Qty.Equal(dec("5")))
		assert.True(t, adj.Synthetic.Px.Equal(dec("102")))
		assert.Equal(t, model.UnixNanos(9), adj.Synthetic.TsEvent)
	})

	t.Run("replace current lifecycle", func(t *testing.T) {
		fills := []FillSnapshot{snap(10, buy, "10", "100"), snap(20, sell, "10", "110"), snap(30, buy, "3", "120")}
		adj, err := AdjustFills(fills, VenuePosition{Qty: dec("5"), AvgPx: dec("118")}, DefaultTolerance)
		require.NoError(t, err)
		assert.Equal(t, ReplaceCurrentLifecycle, adj.Action)
		assert.Equal(t, model.UnixNanos(20), adj.Boundary)
		assert.Equal(t, []int{0, 1}, adj.Kept)
		require.NotNil(t, adj.Synthetic)
		assert.True(t, adj.Synthetic.Qty.Equal(dec("5")))
		assert.True(t, adj.Synthetic.Px.Equal(dec("118")))
		assert.Equal(t, fills[2].VenueOrderID, adj.Synthetic.VenueOrderID)
	})

	t.Run("filter to current lifecycle", func(t *testing.T) {
		fills := []FillSnapshot{snap(10, buy, "10", "100"), snap(20, sell, "15", "110"), snap(30, sell, "5", "120")}
		adj, err := AdjustFills(fills, VenuePosition{Qty: dec("-5"), AvgPx: dec("120")}, DefaultTolerance)
		require.NoError(t, err)
		assert.Equal(t, FilterToCurrentLifecycle, adj.Action)
		assert.Equal(t, model.UnixNanos(20), adj.Boundary)
		assert.Equal(t, []int{2}, adj.Kept)
		assert.Nil(t, adj.Synthetic)
	})

	t.Run("close to flat venue", func(t *testing.T) {
		fills := []FillSnapshot{snap(10, buy, "5", "100")}
		adj, err := AdjustFills(fills, VenuePosition{Qty: decimal.Zero}, DefaultTolerance)
		require.NoError(t, err)
		assert.Equal(t, AddSyntheticClose, adj.Action)
		require.NotNil(t, adj.Synthetic)
		assert.Equal(t, sell, adj.Synthetic.Side)
		assert.True(t, adj.Synthetic.Px.Equal(dec("100")))
		assert.Equal(t, model.UnixNanos(11), adj.Synthetic.TsEvent)
	})

	t.Run("unresolvable", func(t *testing.T) {
		fills := []FillSnapshot{snap(10, buy, "5", "300")}
		_, err := AdjustFills(fills, VenuePosition{Qty: dec("10"), AvgPx: dec("100")}, DefaultTolerance)
		require.ErrorIs(t, err, exception.ErrReconcileUnresolved)
	})
}

func TestSortFillsTieBreak(t *testing.T) {
	a := FillSnapshot{TsEvent: 5, VenueOrderID: model.NewVenueOrderID("B")}
	b := FillSnapshot{TsEvent: 5, VenueOrderID: model.NewVenueOrderID("A")}
	c := FillSnapshot{TsEvent: 1, VenueOrderID: model.NewVenueOrderID("Z")}
	fills := []FillSnapshot{a, b, c}
	SortFills(fills)
	assert.Equal(t, []FillSnapshot{c, b, a}, fills)
}

func BenchmarkAdjustFills(b *testing.B) {
	fills := make([]FillSnapshot, 0, 256)
	for i := range 256 {
		side := enum.OrderSideBuy
		if i%3 == 2 {
			side = enum.OrderSideSell
		}
		fills = append(fills, snap(model.UnixNanos(i+1), side, "1", "100"))
	}
	venue := VenuePosition{Qty: dec("100"), AvgPx: dec("100")}
	for b.Loop() {
		_, _ = AdjustFills(fills, venue, DefaultTolerance)
	}
}
