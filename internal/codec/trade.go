package codec

import (
	"encoding/binary"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/schema"
)

const TradePayloadSize = 88

// EncodeTrade serializes a trade into a fixed-size payload.
func EncodeTrade(dst []byte, symbol schema.SymbolID, t model.TradeTick) ([]byte, error) {
	dst = sized(dst, TradePayloadSize)

	binary.LittleEndian.PutUint32(dst[0:4], uint32(symbol))
	dst[4] = t.Price.Precision
	dst[5] = t.Size.Precision
	dst[6] = uint8(t.AggressorSide)
	dst[7] = 0
	binary.LittleEndian.PutUint64(dst[8:16], uint64(t.Price.Raw))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(t.Size.Raw))
	if err := putStr64(dst[24:88], "trade_id", t.TradeID.String()); err != nil {
		return nil, err
	}

	return dst, nil
}

// DecodeTrade parses a trade payload. The instrument id is left empty.
func DecodeTrade(src []byte, h schema.Header) (schema.SymbolID, model.TradeTick, bool) {
	if len(src) < TradePayloadSize {
		return 0, model.TradeTick{}, false
	}
	return schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])), model.TradeTick{
		Price:         model.PriceFromRaw(int64(binary.LittleEndian.Uint64(src[8:16])), src[4]),
		Size:          model.QuantityFromRaw(int64(binary.LittleEndian.Uint64(src[16:24])), src[5]),
		AggressorSide: enum.AggressorSide(src[6]),
		TradeID:       model.NewTradeID(readStr64(src[24:88])),
		TsEvent:       h.TsEvent,
		TsInit:        h.TsInit,
	}, true
}
