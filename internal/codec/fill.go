package codec

import (
	"encoding/binary"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Fill payload layout:
//
//	[0:4]    symbol id
//	[4:8]    side, liquidity side, price precision, size precision
//	[8:32]   last px, last qty, commission (raw)
//	[32]     order type
//	[40:56]  commission currency code
//	[56:72]  event id
//	[72:520] trade, client order, venue order, position, account, strategy, trader ids
const FillPayloadSize = 520

const (
	fillCurrencyOff = 40
	fillEventIDOff  = 56
	fillSlotsOff    = 72
	slotSize        = len(Str64{})
)

type fillSlot struct {
	field string
	get   func(*model.OrderFilled) string
	set   func(*model.OrderFilled, string)
}

var fillSlots = []fillSlot{
	{"trade_id", func(f *model.OrderFilled) string { return f.TradeID.String() }, func(f *model.OrderFilled, s string) { f.TradeID = model.NewTradeID(s) }},
	{"client_order_id", func(f *model.OrderFilled) string { return f.ClientOrderID.String() }, func(f *model.OrderFilled, s string) { f.ClientOrderID = model.NewClientOrderID(s) }},
	{"venue_order_id", func(f *model.OrderFilled) string { return f.VenueOrderID.String() }, func(f *model.OrderFilled, s string) { f.VenueOrderID = model.NewVenueOrderID(s) }},
	{"position_id", func(f *model.OrderFilled) string { return f.PositionID.String() }, func(f *model.OrderFilled, s string) { f.PositionID = model.NewPositionID(s) }},
	{"account_id", func(f *model.OrderFilled) string { return f.AccountID.String() }, func(f *model.OrderFilled, s string) { f.AccountID = model.NewAccountID(s) }},
	{"strategy_id", func(f *model.OrderFilled) string { return f.StrategyID.String() }, func(f *model.OrderFilled, s string) { f.StrategyID = model.NewStrategyID(s) }},
	{"trader_id", func(f *model.OrderFilled) string { return f.TraderID.String() }, func(f *model.OrderFilled, s string) { f.TraderID = model.NewTraderID(s) }},
}

// EncodeFill serializes an order fill into a fixed-size payload. The fill
// currency is not stored; it is the instrument quote currency on decode.
func EncodeFill(dst []byte, symbol schema.SymbolID, fill model.OrderFilled) ([]byte, error) {
	dst = sized(dst, FillPayloadSize)
	clear(dst)

	binary.LittleEndian.PutUint32(dst[0:4], uint32(symbol))
	dst[4] = uint8(fill.Side)
	dst[5] = uint8(fill.LiquiditySide)
	dst[6] = fill.LastPx.Precision
	dst[7] = fill.LastQty.Precision
	binary.LittleEndian.PutUint64(dst[8:16], uint64(fill.LastPx.Raw))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(fill.LastQty.Raw))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(fill.Commission.Raw))
	dst[32] = uint8(fill.OrderType)

	code := fill.Commission.Currency.Code
	if len(code) > fillEventIDOff-fillCurrencyOff {
		return nil, errors.Wrap(exception.ErrSlotOverflow, "commission currency").With("code", code)
	}
	copy(dst[fillCurrencyOff:fillEventIDOff], code)
	copy(dst[fillEventIDOff:fillSlotsOff], fill.EventID[:])

	for i, slot := range fillSlots {
		off := fillSlotsOff + i*slotSize
		if err := putStr64(dst[off:off+slotSize], slot.field, slot.get(&fill)); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// DecodeFill parses a fill payload. The instrument id and currency are left
// empty; an unknown commission currency is an error.
func DecodeFill(src []byte, h schema.Header) (schema.SymbolID, model.OrderFilled, error) {
	if len(src) < FillPayloadSize {
		return 0, model.OrderFilled{}, errors.Wrap(exception.ErrShortPayload, "fill").With("len", len(src))
	}

	fill := model.OrderFilled{
		Side:          enum.OrderSide(src[4]),
		LiquiditySide: enum.LiquiditySide(src[5]),
		LastPx:        model.PriceFromRaw(int64(binary.LittleEndian.Uint64(src[8:16])), src[6]),
		LastQty:       model.QuantityFromRaw(int64(binary.LittleEndian.Uint64(src[16:24])), src[7]),
		OrderType:     enum.OrderType(src[32]),
	}
	fill.TsEvent = h.TsEvent
	fill.TsInit = h.TsInit
	copy(fill.EventID[:], src[fillEventIDOff:fillSlotsOff])

	if code := readStr64(src[fillCurrencyOff:fillEventIDOff]); code != "" {
		currency, err := model.CurrencyFromCode(code)
		if err != nil {
			return 0, model.OrderFilled{}, errors.Wrap(err, "commission currency")
		}
		fill.Commission = model.Money{Raw: int64(binary.LittleEndian.Uint64(src[24:32])), Currency: currency}
	}

	for i, slot := range fillSlots {
		off := fillSlotsOff + i*slotSize
		slot.set(&fill, readStr64(src[off:off+slotSize]))
	}
	return schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])), fill, nil
}
