package codec

import (
	"encoding/binary"

	"tradecore/internal/model"
	"tradecore/internal/schema"
)

const (
	PriceUpdatePayloadSize = 16
	FundingPayloadSize     = 24
)

// EncodePriceUpdate serializes a mark or index price. The record type tells
// them apart.
func EncodePriceUpdate(dst []byte, symbol schema.SymbolID, value model.Price) []byte {
	dst = sized(dst, PriceUpdatePayloadSize)

	binary.LittleEndian.PutUint32(dst[0:4], uint32(symbol))
	dst[4] = value.Precision
	clear(dst[5:8])
	binary.LittleEndian.PutUint64(dst[8:16], uint64(value.Raw))

	return dst
}

func DecodePriceUpdate(src []byte) (schema.SymbolID, model.Price, bool) {
	if len(src) < PriceUpdatePayloadSize {
		return 0, model.Price{}, false
	}
	return schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		model.PriceFromRaw(int64(binary.LittleEndian.Uint64(src[8:16])), src[4]), true
}

func EncodeFunding(dst []byte, symbol schema.SymbolID, f model.FundingRateUpdate) []byte {
	dst = sized(dst, FundingPayloadSize)

	EncodePriceUpdate(dst[:PriceUpdatePayloadSize], symbol, f.Rate)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(f.NextFunding))

	return dst
}

func DecodeFunding(src []byte, h schema.Header) (schema.SymbolID, model.FundingRateUpdate, bool) {
	if len(src) < FundingPayloadSize {
		return 0, model.FundingRateUpdate{}, false
	}
	symbol, rate, _ := DecodePriceUpdate(src)
	return symbol, model.FundingRateUpdate{
		Rate:        rate,
		NextFunding: model.UnixNanos(binary.LittleEndian.Uint64(src[16:24])),
		TsEvent:     h.TsEvent,
		TsInit:      h.TsInit,
	}, true
}
