package persistence

import (
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Flatten expands OrderBookDeltas into their deltas. Other values pass through.
func Flatten(data []model.Data) []model.Data {
	out := make([]model.Data, 0, len(data))
	for _, d := range data {
		if batch, ok := d.(model.OrderBookDeltas); ok {
			for _, delta := range batch.Deltas {
				out = append(out, delta)
			}
			continue
		}
		out = append(out, d)
	}
	return out
}

func batchKind(d model.Data) enum.DataKind {
	if d.Kind() == enum.DataKindOrderBookDeltas {
		return enum.DataKindOrderBookDelta
	}
	return d.Kind()
}

func emptyOrder(o model.BookOrder) bool {
	return o == model.BookOrder{}
}

func fixedOf(d model.Data) (prices []model.Price, sizes []model.Quantity) {
	switch v := d.(type) {
	case model.QuoteTick:
		return []model.Price{v.BidPrice, v.AskPrice}, []model.Quantity{v.BidSize, v.AskSize}
	case model.TradeTick:
		return []model.Price{v.Price}, []model.Quantity{v.Size}
	case model.Bar:
		return []model.Price{v.Open, v.High, v.Low, v.Close}, []model.Quantity{v.Volume}
	case model.MarkPriceUpdate:
		return []model.Price{v.Value}, nil
	case model.IndexPriceUpdate:
		return []model.Price{v.Value}, nil
	case model.FundingRateUpdate:
		return []model.Price{v.Rate}, nil
	case model.InstrumentClose:
		return []model.Price{v.ClosePrice}, nil
	case model.OrderBookDelta:
		if emptyOrder(v.Order) {
			return nil, nil
		}
		return []model.Price{v.Order.Price}, []model.Quantity{v.Order.Size}
	case model.OrderBookDepth10:
		for _, levels := range [][model.DepthLevels]model.BookOrder{v.Bids, v.Asks} {
			for _, o := range levels {
				if !emptyOrder(o) {
					prices = append(prices, o.Price)
					sizes = append(sizes, o.Size)
				}
			}
		}
	}
	return prices, sizes
}

// metadataOf derives batch metadata from the rows and checks that every row
// shares the kind, instrument and precisions.
func metadataOf(data []model.Data) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{}, errors.Wrap(exception.ErrInvalidArgument, "empty batch")
	}
	meta := Metadata{Kind: batchKind(data[0]), InstrumentID: data[0].Instrument()}
	if bar, ok := data[0].(model.Bar); ok {
		meta.BarType = bar.BarType
	}

	var havePrice, haveSize bool
	for i, d := range data {
		if batchKind(d) != meta.Kind {
			return Metadata{}, errors.Wrap(exception.ErrInvalidArgument, "mixed data kinds").
				With("row", i).With("expected", meta.Kind.String()).With("actual", d.Kind().String())
		}
		if d.Instrument() != meta.InstrumentID {
			return Metadata{}, errors.Wrap(exception.ErrInvalidArgument, "mixed instruments").
				With("row", i).With("expected", meta.InstrumentID.String()).With("actual", d.Instrument().String())
		}
		if bar, ok := d.(model.Bar); ok && bar.BarType != meta.BarType {
			return Metadata{}, errors.Wrap(exception.ErrInvalidArgument, "mixed bar types").With("row", i)
		}

		prices, sizes := fixedOf(d)
		for _, p := range prices {
			if !havePrice {
				meta.PricePrecision, havePrice = p.Precision, true
			}
			if p.Precision != meta.PricePrecision {
				return Metadata{}, errors.Wrap(exception.ErrPrecisionMismatch, "price precision").
					With("row", i).With("expected", meta.PricePrecision).With("actual", p.Precision)
			}
		}
		for _, q := range sizes {
			if !haveSize {
				meta.SizePrecision, haveSize = q.Precision, true
			}
			if q.Precision != meta.SizePrecision {
				return Metadata{}, errors.Wrap(exception.ErrPrecisionMismatch, "size precision").
					With("row", i).With("expected", meta.SizePrecision).With("actual", q.Precision)
			}
		}
	}
	return meta, nil
}

// EncodeBatch converts data into one record batch. Every row must share the
// data kind and instrument; OrderBookDeltas are flattened into delta rows.
// The caller releases the returned record.
func EncodeBatch(mem memory.Allocator, mode Mode, data []model.Data) (arrow.Record, error) {
	data = Flatten(data)
	meta, err := metadataOf(data)
	if err != nil {
		return nil, err
	}
	schema, err := Schema(meta, mode)
	if err != nil {
		return nil, err
	}

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	r := newRowBuilder(b)
	for _, d := range data {
		appendRow(r, d)
	}
	return b.NewRecord(), nil
}

func appendOrder(r rowBuilder, prefix, suffix string, o model.BookOrder) {
	r.raw(prefix+"price"+suffix, o.Price.Raw)
	r.raw(prefix+"size"+suffix, o.Size.Raw)
	r.u8(prefix+"side"+suffix, uint8(o.Side))
	r.u64(prefix+"order_id"+suffix, o.OrderID)
}

func appendRow(r rowBuilder, d model.Data) {
	switch v := d.(type) {
	case model.QuoteTick:
		r.raw("bid_price", v.BidPrice.Raw)
		r.raw("ask_price", v.AskPrice.Raw)
		r.raw("bid_size", v.BidSize.Raw)
		r.raw("ask_size", v.AskSize.Raw)
		r.ts(v.TsEvent, v.TsInit)
	case model.TradeTick:
		r.raw("price", v.Price.Raw)
		r.raw("size", v.Size.Raw)
		r.u8("aggressor_side", uint8(v.AggressorSide))
		r.str("trade_id", v.TradeID.String())
		r.ts(v.TsEvent, v.TsInit)
	case model.Bar:
		r.raw("open", v.Open.Raw)
		r.raw("high", v.High.Raw)
		r.raw("low", v.Low.Raw)
		r.raw("close", v.Close.Raw)
		r.raw("volume", v.Volume.Raw)
		r.ts(v.TsEvent, v.TsInit)
	case model.MarkPriceUpdate:
		r.raw("value", v.Value.Raw)
		r.ts(v.TsEvent, v.TsInit)
	case model.IndexPriceUpdate:
		r.raw("value", v.Value.Raw)
		r.ts(v.TsEvent, v.TsInit)
	case model.FundingRateUpdate:
		r.raw("rate", v.Rate.Raw)
		r.u64("next_funding_ns", uint64(v.NextFunding))
		r.ts(v.TsEvent, v.TsInit)
	case model.OrderBookDelta:
		r.u8("action", uint8(v.Action))
		appendOrder(r, "", "", v.Order)
		r.u8("flags", v.Flags)
		r.u64("sequence", v.Sequence)
		r.ts(v.TsEvent, v.TsInit)
	case model.OrderBookDepth10:
		for i := range model.DepthLevels {
			n := "_" + strconv.Itoa(i)
			appendOrder(r, "bid_", n, v.Bids[i])
			appendOrder(r, "ask_", n, v.Asks[i])
			r.u32("bid_count"+n, v.BidCounts[i])
			r.u32("ask_count"+n, v.AskCounts[i])
		}
		r.u8("flags", v.Flags)
		r.u64("sequence", v.Sequence)
		r.ts(v.TsEvent, v.TsInit)
	case model.InstrumentStatus:
		r.u8("action", uint8(v.Action))
		r.str("reason", v.Reason)
		r.boolean("is_trading", v.IsTrading)
		r.boolean("is_quoting", v.IsQuoting)
		r.ts(v.TsEvent, v.TsInit)
	case model.InstrumentClose:
		r.raw("close_price", v.ClosePrice.Raw)
		r.u8("close_type", uint8(v.CloseType))
		r.ts(v.TsEvent, v.TsInit)
	}
}
