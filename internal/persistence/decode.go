package persistence

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// DecodeBatch converts a record batch written by EncodeBatch back into data.
// Delta batches decode to individual OrderBookDelta values; GroupDeltas
// rebuilds the OrderBookDeltas batches.
func DecodeBatch(rec arrow.Record) ([]model.Data, error) {
	meta, err := ParseMetadata(rec.Schema())
	if err != nil {
		return nil, err
	}
	r := &rowReader{rec: rec, meta: meta}
	rows := int(rec.NumRows())
	out := make([]model.Data, 0, rows)
	for row := range rows {
		d := decodeRow(r, row)
		if d == nil {
			return nil, errors.Wrap(exception.ErrUnknownDataKind, "decode batch").With("kind", meta.Kind.String())
		}
		if r.err != nil {
			return nil, errors.Wrap(r.err, "decode batch").With("kind", meta.Kind.String())
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeOrder(r *rowReader, prefix, suffix string, row int) model.BookOrder {
	o := model.BookOrder{
		Side:    enum.OrderSide(r.u8(prefix+"side"+suffix, row)),
		Price:   r.price(prefix+"price"+suffix, row),
		Size:    r.qty(prefix+"size"+suffix, row),
		OrderID: r.u64(prefix+"order_id"+suffix, row),
	}
	if o.Side == 0 && o.Price.Raw == 0 && o.Size.Raw == 0 && o.OrderID == 0 {
		return model.BookOrder{}
	}
	return o
}

func decodeRow(r *rowReader, row int) model.Data {
	id := r.meta.InstrumentID
	tsEvent, tsInit := r.ts(row)

	switch r.meta.Kind {
	case enum.DataKindQuote:
		return model.QuoteTick{
			InstrumentID: id,
			BidPrice:     r.price("bid_price", row),
			AskPrice:     r.price("ask_price", row),
			BidSize:      r.qty("bid_size", row),
			AskSize:      r.qty("ask_size", row),
			TsEvent:      tsEvent,
			TsInit:       tsInit,
		}
	case enum.DataKindTrade:
		return model.TradeTick{
			InstrumentID:  id,
			Price:         r.price("price", row),
			Size:          r.qty("size", row),
			AggressorSide: enum.AggressorSide(r.u8("aggressor_side", row)),
			TradeID:       model.NewTradeID(r.str("trade_id", row)),
			TsEvent:       tsEvent,
			TsInit:        tsInit,
		}
	case enum.DataKindBar:
		return model.Bar{
			BarType: r.meta.BarType,
			Open:    r.price("open", row),
			High:    r.price("high", row),
			Low:     r.price("low", row),
			Close:   r.price("close", row),
			Volume:  r.qty("volume", row),
			TsEvent: tsEvent,
			TsInit:  tsInit,
		}
	case enum.DataKindMarkPrice:
		return model.MarkPriceUpdate{InstrumentID: id, Value: r.price("value", row), TsEvent: tsEvent, TsInit: tsInit}
	case enum.DataKindIndexPrice:
		return model.IndexPriceUpdate{InstrumentID: id, Value: r.price("value", row), TsEvent: tsEvent, TsInit: tsInit}
	case enum.DataKindFundingRate:
		return model.FundingRateUpdate{
			InstrumentID: id,
			Rate:         r.price("rate", row),
			NextFunding:  model.UnixNanos(r.u64("next_funding_ns", row)),
			TsEvent:      tsEvent,
			TsInit:       tsInit,
		}
	case enum.DataKindOrderBookDelta:
		return model.OrderBookDelta{
			InstrumentID: id,
			Action:       enum.BookAction(r.u8("action", row)),
			Order:        decodeOrder(r, "", "", row),
			Flags:        r.u8("flags", row),
			Sequence:     r.u64("sequence", row),
			TsEvent:      tsEvent,
			TsInit:       tsInit,
		}
	case enum.DataKindOrderBookDepth10:
		depth := model.OrderBookDepth10{
			InstrumentID: id,
			Flags:        r.u8("flags", row),
			Sequence:     r.u64("sequence", row),
			TsEvent:      tsEvent,
			TsInit:       tsInit,
		}
		for i := range model.DepthLevels {
			n := "_" + strconv.Itoa(i)
			depth.Bids[i] = decodeOrder(r, "bid_", n, row)
			depth.Asks[i] = decodeOrder(r, "ask_", n, row)
			depth.BidCounts[i] = r.u32("bid_count"+n, row)
			depth.AskCounts[i] = r.u32("ask_count"+n, row)
		}
		return depth
	case enum.DataKindInstrumentStatus:
		return model.InstrumentStatus{
			InstrumentID: id,
			Action:       enum.MarketStatusAction(r.u8("action", row)),
			Reason:       strings.Clone(r.str("reason", row)),
			IsTrading:    r.boolean("is_trading", row),
			IsQuoting:    r.boolean("is_quoting", row),
			TsEvent:      tsEvent,
			TsInit:       tsInit,
		}
	case enum.DataKindInstrumentClose:
		return model.InstrumentClose{
			InstrumentID: id,
			ClosePrice:   r.price("close_price", row),
			CloseType:    enum.InstrumentCloseType(r.u8("close_type", row)),
			TsEvent:      tsEvent,
			TsInit:       tsInit,
		}
	}
	return nil
}

// GroupDeltas regroups decoded deltas into batches closed by FlagLast. A
// trailing run without FlagLast forms the final batch.
func GroupDeltas(data []model.Data) ([]model.OrderBookDeltas, error) {
	var (
		out     []model.OrderBookDeltas
		pending []model.OrderBookDelta
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch, err := model.NewOrderBookDeltas(pending[0].InstrumentID, pending)
		if err != nil {
			return err
		}
		out = append(out, batch)
		pending = nil
		return nil
	}
	for _, d := range data {
		delta, ok := d.(model.OrderBookDelta)
		if !ok {
			continue
		}
		pending = append(pending, delta)
		if delta.Flags&model.FlagLast != 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
