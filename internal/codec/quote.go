package codec

import (
	"encoding/binary"

	"tradecore/internal/model"
	"tradecore/internal/schema"
)

const QuotePayloadSize = 40

// EncodeQuote serializes a quote into a fixed-size payload. Timestamps travel
// in the record header.
func EncodeQuote(dst []byte, symbol schema.SymbolID, q model.QuoteTick) []byte {
	dst = sized(dst, QuotePayloadSize)

	binary.LittleEndian.PutUint32(dst[0:4], uint32(symbol))
	dst[4] = q.BidPrice.Precision
	dst[5] = q.BidSize.Precision
	dst[6], dst[7] = 0, 0
	binary.LittleEndian.PutUint64(dst[8:16], uint64(q.BidPrice.Raw))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(q.AskPrice.Raw))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(q.BidSize.Raw))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(q.AskSize.Raw))

	return dst
}

// DecodeQuote parses a quote payload. The instrument id is left empty.
func DecodeQuote(src []byte, h schema.Header) (schema.SymbolID, model.QuoteTick, bool) {
	if len(src) < QuotePayloadSize {
		return 0, model.QuoteTick{}, false
	}
	pp, sp := src[4], src[5]
	return schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])), model.QuoteTick{
		BidPrice: model.PriceFromRaw(int64(binary.LittleEndian.Uint64(src[8:16])), pp),
		AskPrice: model.PriceFromRaw(int64(binary.LittleEndian.Uint64(src[16:24])), pp),
		BidSize:  model.QuantityFromRaw(int64(binary.LittleEndian.Uint64(src[24:32])), sp),
		AskSize:  model.QuantityFromRaw(int64(binary.LittleEndian.Uint64(src[32:40])), sp),
		TsEvent:  h.TsEvent,
		TsInit:   h.TsInit,
	}, true
}

func sized(dst []byte, size int) []byte {
	if cap(dst) < size {
		return make([]byte, size)
	}
	return dst[:size]
}
