package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

var btcID = model.MustParseInstrumentID("BTCUSDT.BINANCE")

func newCodec(t *testing.T) *Codec {
	t.Helper()
	reg := schema.NewRegistry()
	_, err := reg.AddVenue(btcID.Venue)
	require.NoError(t, err)
	_, err = reg.AddInstrument(&model.Instrument{
		ID:             btcID,
		Kind:           model.InstrumentKindPerpetual,
		QuoteCurrency:  model.USDT,
		PricePrecision: 2,
		SizePrecision:  3,
	})
	require.NoError(t, err)
	return New(reg)
}

func TestDataRoundTrip(t *testing.T) {
	c := newCodec(t)
	barType := model.BarType{
		InstrumentID: btcID,
		Spec:         model.BarSpec{Step: 1, Aggregation: enum.BarAggregationMinute, PriceType: enum.PriceTypeLast},
		Source:       enum.AggregationSourceExternal,
	}

	testCases := []struct {
		desc string
		data model.Data
		want schema.RecordType
	}{
		{
			desc: "quote",
			data: model.QuoteTick{
				InstrumentID: btcID,
				BidPrice:     model.MustParsePrice("50000.10"), AskPrice: model.MustParsePrice("50000.20"),
				BidSize: model.MustParseQuantity("1.500"), AskSize: model.MustParseQuantity("0.250"),
				TsEvent: 10, TsInit: 11,
			},
			want: schema.RecordQuote,
		},
		{
			desc: "trade",
			data: model.TradeTick{
				InstrumentID: btcID, Price: model.MustParsePrice("50000.15"), Size: model.MustParseQuantity("0.010"),
				AggressorSide: enum.AggressorSideSeller, TradeID: model.NewTradeID("T-123456"),
				TsEvent: 12, TsInit: 13,
			},
			want: schema.RecordTrade,
		},
		{
			desc: "bar",
			data: model.Bar{
				BarType: barType,
				Open:    model.MustParsePrice("1.00"), High: model.MustParsePrice("3.00"),
				Low: model.MustParsePrice("0.50"), Close: model.MustParsePrice("2.00"),
				Volume: model.MustParseQuantity("100.000"), TsEvent: 60, TsInit: 61,
			},
			want: schema.RecordBar,
		},
		{
			desc: "mark price",
			data: model.MarkPriceUpdate{InstrumentID: btcID, Value: model.MustParsePrice("50001.00"), TsEvent: 1, TsInit: 2},
			want: schema.RecordMarkPrice,
		},
		{
			desc: "index price",
			data: model.IndexPriceUpdate{InstrumentID: btcID, Value: model.MustParsePrice("50002.00"), TsEvent: 3, TsInit: 4},
			want: schema.RecordIndexPrice,
		},
		{
			desc: "funding rate",
			data: model.FundingRateUpdate{InstrumentID: btcID, Rate: model.MustParsePrice("0.0001"), NextFunding: 99, TsEvent: 5, TsInit: 6},
			want: schema.RecordFundingRate,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			header, payload, err := c.EncodeData(nil, 7, tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, header.Type)
			assert.Equal(t, uint64(7), header.Seq)
			assert.Equal(t, schema.VenueID(1), header.Source)
			assert.Equal(t, tc.data.InitTime(), header.TsInit)

			got, err := c.DecodeData(header, payload)
			require.NoError(t, err)
			assert.Equal(t, tc.data, got)
		})
	}
}

func TestDecodeDataErrors(t *testing.T) {
	c := newCodec(t)
	q := model.QuoteTick{InstrumentID: btcID, BidPrice: model.MustParsePrice("1.00"), AskPrice: model.MustParsePrice("1.01")}
	header, payload, err := c.EncodeData(nil, 1, q)
	require.NoError(t, err)

	_, err = c.DecodeData(header, payload[:QuotePayloadSize-1])
	require.ErrorIs(t, err, exception.ErrShortPayload)

	unknown := EncodeQuote(nil, 42, q)
	_, err = c.DecodeData(header, unknown)
	require.ErrorIs(t, err, exception.ErrUnknownSymbol)

	_, err = c.DecodeData(schema.Header{Type: schema.RecordFill}, payload)
	require.ErrorIs(t, err, exception.ErrUnknownRecord)

	_, _, err = c.EncodeData(nil, 1, model.QuoteTick{InstrumentID: model.MustParseInstrumentID("ETHUSDT.BINANCE")})
	require.ErrorIs(t, err, exception.ErrUnknownSymbol)

	_, _, err = c.EncodeData(nil, 1, model.OrderBookDeltas{InstrumentID: btcID})
	require.ErrorIs(t, err, exception.ErrUnknownRecord)
}

func TestFillRoundTrip(t *testing.T) {
	c := newCodec(t)
	fill := model.OrderFilled{
		EventHeader: model.EventHeader{
			TraderID:      model.NewTraderID("TRADER-001"),
			StrategyID:    model.NewStrategyID("S-001"),
			InstrumentID:  btcID,
			ClientOrderID: model.NewClientOrderID("O-1"),
			EventID:       model.NewUUID4(),
			TsEvent:       100,
			TsInit:        101,
		},
		VenueOrderID:  model.NewVenueOrderID("V-1"),
		AccountID:     model.NewAccountID("BINANCE-001"),
		TradeID:       model.NewTradeID("E-1"),
		PositionID:    model.NewPositionID("P-1"),
		Side:          enum.OrderSideSell,
		OrderType:     enum.OrderTypeLimit,
		LastQty:       model.MustParseQuantity("0.500"),
		LastPx:        model.MustParsePrice("50000.50"),
		Currency:      model.USDT,
		Commission:    model.Money{Raw: 12_500_000, Currency: model.USDT},
		LiquiditySide: enum.LiquiditySideMaker,
	}

	header, payload, err := c.EncodeFill(nil, 3, fill)
	require.NoError(t, err)
	require.Len(t, payload, FillPayloadSize)
	assert.Equal(t, schema.RecordFill, header.Type)

	got, err := c.DecodeFill(header, payload)
	require.NoError(t, err)
	assert.Equal(t, fill, got)

	fill.TradeID = model.NewTradeID(strings.Repeat("x", 65))
	_, _, err = c.EncodeFill(nil, 4, fill)
	require.ErrorIs(t, err, exception.ErrSlotOverflow)
}

func TestStr64(t *testing.T) {
	s, err := NewStr64("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", s.String())
	assert.Equal(t, 3, s.Len())

	full, err := NewStr64(strings.Repeat("z", 64))
	require.NoError(t, err)
	assert.Equal(t, 64, full.Len())

	_, err = NewStr64(strings.Repeat("z", 65))
	require.ErrorIs(t, err, exception.ErrSlotOverflow)
}

func BenchmarkEncodeQuote(b *testing.B) {
	q := model.QuoteTick{
		InstrumentID: btcID,
		BidPrice:     model.MustParsePrice("50000.10"), AskPrice: model.MustParsePrice("50000.20"),
		BidSize: model.MustParseQuantity("1.500"), AskSize: model.MustParseQuantity("0.250"),
	}
	buf := make([]byte, QuotePayloadSize)
	for b.Loop() {
		buf = EncodeQuote(buf, 1, q)
	}
}
