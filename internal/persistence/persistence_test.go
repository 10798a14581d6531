package persistence

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

var ethID = model.MustParseInstrumentID("ETHUSDT.BINANCE")

func px(s string) model.Price     { return model.MustParsePrice(s) }
func qty(s string) model.Quantity { return model.MustParseQuantity(s) }

func order(side enum.OrderSide, p, q string, id uint64) model.BookOrder {
	return model.BookOrder{Side: side, Price: px(p), Size: qty(q), OrderID: id}
}

func sampleDepth() model.OrderBookDepth10 {
	d := model.OrderBookDepth10{InstrumentID: ethID, Flags: model.FlagSnapshot, Sequence: 9, TsEvent: 1, TsInit: 2}
	d.Bids[0] = order(enum.OrderSideBuy, "2000.10", "1.500", 0)
	d.Bids[1] = order(enum.OrderSideBuy, "2000.00", "3.000", 0)
	d.Asks[0] = order(enum.OrderSideSell, "2000.20", "0.250", 0)
	d.BidCounts[0], d.BidCounts[1], d.AskCounts[0] = 2, 5, 1
	return d
}

func sampleBatches() map[string][]model.Data {
	bt, err := model.ParseBarType("ETHUSDT.BINANCE-1-MINUTE-LAST-EXTERNAL")
	if err != nil {
		panic(err)
	}
	return map[string][]model.Data{
		"quotes": {
			model.QuoteTick{InstrumentID: ethID, BidPrice: px("2000.10"), AskPrice: px("2000.20"), BidSize: qty("1.000"), AskSize: qty("2.500"), TsEvent: 1, TsInit: 2},
			model.QuoteTick{InstrumentID: ethID, BidPrice: px("-0.50"), AskPrice: px("2001.00"), BidSize: qty("0.001"), AskSize: qty("9.999"), TsEvent: 3, TsInit: 4},
		},
		"trades": {
			model.TradeTick{InstrumentID: ethID, Price: px("2000.15"), Size: qty("0.300"), AggressorSide: enum.AggressorSideBuyer, TradeID: model.NewTradeID("T-1"), TsEvent: 1, TsInit: 2},
			model.TradeTick{InstrumentID: ethID, Price: px("2000.05"), Size: qty("1.000"), AggressorSide: enum.AggressorSideNoAggressor, TradeID: model.NewTradeID("T-2"), TsEvent: 3, TsInit: 4},
		},
		"bars": {
			model.Bar{BarType: bt, Open: px("10.00"), High: px("12.50"), Low: px("9.75"), Close: px("11.00"), Volume: qty("120.000"), TsEvent: 60, TsInit: 61},
		},
		"mark": {model.MarkPriceUpdate{InstrumentID: ethID, Value: px("2000.12"), TsEvent: 1, TsInit: 2}},
		"index": {model.IndexPriceUpdate{InstrumentID: ethID, Value: px("1999.98"), TsEvent: 1, TsInit: 2}},
		"funding": {
			model.FundingRateUpdate{InstrumentID: ethID, Rate: px("0.000100"), NextFunding: 28_800_000_000_000, TsEvent: 1, TsInit: 2},
		},
		"deltas": {
			model.NewClearDelta(ethID, 1, 1, 2),
			model.OrderBookDelta{InstrumentID: ethID, Action: enum.BookActionAdd, Order: order(enum.OrderSideBuy, "2000.10", "1.500", 11), Sequence: 2, TsEvent: 1, TsInit: 2},
			model.OrderBookDelta{InstrumentID: ethID, Action: enum.BookActionDelete, Order: order(enum.OrderSideSell, "2000.20", "0.000", 12), Flags: model.FlagLast, Sequence: 3, TsEvent: 1, TsInit: 2},
		},
		"depth": {sampleDepth()},
		"status": {
			model.InstrumentStatus{InstrumentID: ethID, Action: enum.MarketStatusActionHalt, Reason: "circuit breaker", IsTrading: false, IsQuoting: true, TsEvent: 1, TsInit: 2},
		},
		"close": {
			model.InstrumentClose{InstrumentID: ethID, ClosePrice: px("2001.00"), CloseType: enum.InstrumentCloseTypeEndOfSession, TsEvent: 1, TsInit: 2},
		},
	}
}

func TestBatchRoundTrip(t *testing.T) {
	for _, mode := range []Mode{Mode64, ModeHighPrecision} {
		for desc, data := range sampleBatches() {
			t.Run(desc, func(t *testing.T) {
				mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
				defer mem.AssertSize(t, 0)

				rec, err := EncodeBatch(mem, mode, data)
				require.NoError(t, err)
				defer rec.Release()
				assert.Equal(t, int64(len(data)), rec.NumRows())

				meta, err := ParseMetadata(rec.Schema())
				require.NoError(t, err)
				assert.Equal(t, ethID, meta.InstrumentID)

				got, err := DecodeBatch(rec)
				require.NoError(t, err)
				assert.Equal(t, data, got)
			})
		}
	}
}

func TestSchemaMetadata(t *testing.T) {
	rec, err := EncodeBatch(memory.DefaultAllocator, ModeHighPrecision, sampleBatches()["quotes"])
	require.NoError(t, err)
	defer rec.Release()

	md := rec.Schema().Metadata()
	for key, want := range map[string]string{
		KeyInstrumentID:   "ETHUSDT.BINANCE",
		KeyPricePrecision: "2",
		KeySizePrecision:  "3",
		KeyDataKind:       "quotes",
	} {
		idx := md.FindKey(key)
		require.GreaterOrEqual(t, idx, 0, key)
		assert.Equal(t, want, md.Values()[idx], key)
	}
	idx := rec.Schema().FieldIndices("bid_price")
	require.Len(t, idx, 1)
	assert.Equal(t, "fixed_size_binary[16]", rec.Schema().Field(idx[0]).Type.String())
}

func TestRaw128(t *testing.T) {
	for _, v := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 2_000_100_000_000} {
		var buf [rawWidth]byte
		putRaw128(buf[:], v)
		got, err := readRaw128(buf[:])
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	var buf [rawWidth]byte
	putRaw128(buf[:], 1)
	buf[12] = 1
	_, err := readRaw128(buf[:])
	require.ErrorIs(t, err, exception.ErrOverflow)
}

func TestEncodeBatchRejects(t *testing.T) {
	btc := model.MustParseInstrumentID("BTCUSDT.BINANCE")
	testCases := []struct {
		desc string
		data []model.Data
		err  error
	}{
		{desc: "empty", err: exception.ErrInvalidArgument},
		{
			desc: "mixed instruments",
			data: []model.Data{
				model.MarkPriceUpdate{InstrumentID: ethID, Value: px("1.00")},
				model.MarkPriceUpdate{InstrumentID: btc, Value: px("1.00")},
			},
			err: exception.ErrInvalidArgument,
		},
		{
			desc: "mixed kinds",
			data: []model.Data{
				model.MarkPriceUpdate{InstrumentID: ethID, Value: px("1.00")},
				model.IndexPriceUpdate{InstrumentID: ethID, Value: px("1.00")},
			},
			err: exception.ErrInvalidArgument,
		},
		{
			desc: "mixed precision",
			data: []model.Data{
				model.MarkPriceUpdate{InstrumentID: ethID, Value: px("1.00")},
				model.MarkPriceUpdate{InstrumentID: ethID, Value: px("1.000")},
			},
			err: exception.ErrPrecisionMismatch,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := EncodeBatch(memory.DefaultAllocator, Mode64, tc.data)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestGroupDeltas(t *testing.T) {
	batch, err := model.NewOrderBookDeltas(ethID, []model.OrderBookDelta{
		model.NewClearDelta(ethID, 1, 1, 2),
		{InstrumentID: ethID, Action: enum.BookActionAdd, Order: order(enum.OrderSideBuy, "1.00", "1.000", 1), Flags: model.FlagLast, Sequence: 2, TsEvent: 1, TsInit: 2},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteStream(&buf, memory.DefaultAllocator, Mode64, []model.Data{batch}))
	flat, err := ReadStream(&buf, memory.DefaultAllocator)
	require.NoError(t, err)
	require.Len(t, flat, 2)

	groups, err := GroupDeltas(flat)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, batch, groups[0])
}

func TestCatalog(t *testing.T) {
	root := t.TempDir()
	cat := NewCatalog(root, ModeHighPrecision, nil)
	batches := sampleBatches()

	quotes := batches["quotes"]
	paths, err := cat.Write([]model.Data{quotes[1], batches["trades"][0], quotes[0]})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(root, "quotes", "ETHUSDT.BINANCE"), filepath.Dir(paths[0]))

	later := model.QuoteTick{InstrumentID: ethID, BidPrice: px("1.00"), AskPrice: px("1.10"), BidSize: qty("1.000"), AskSize: qty("1.000"), TsEvent: 9, TsInit: 10}
	_, err = cat.Write([]model.Data{later})
	require.NoError(t, err)

	got, err := cat.Read(enum.DataKindQuote, "ETHUSDT.BINANCE")
	require.NoError(t, err)
	assert.Equal(t, []model.Data{quotes[0], quotes[1], later}, got)

	bars := batches["bars"]
	_, err = cat.Write(bars)
	require.NoError(t, err)
	got, err = cat.Read(enum.DataKindBar, SeriesKey(bars[0]))
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	_, err = cat.Read(enum.DataKindTrade, "BTCUSDT.BINANCE")
	require.ErrorIs(t, err, exception.ErrNotFound)
}
