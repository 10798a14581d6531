package codec

import (
	"encoding/binary"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/schema"
)

const BarPayloadSize = 64

// EncodeBar serializes a bar and its bar type into a fixed-size payload.
func EncodeBar(dst []byte, symbol schema.SymbolID, b model.Bar) []byte {
	dst = sized(dst, BarPayloadSize)

	binary.LittleEndian.PutUint32(dst[0:4], uint32(symbol))
	dst[4] = b.Open.Precision
	dst[5] = b.Volume.Precision
	dst[6] = uint8(b.BarType.Spec.Aggregation)
	dst[7] = uint8(b.BarType.Spec.PriceType)
	binary.LittleEndian.PutUint64(dst[8:16], b.BarType.Spec.Step)
	dst[16] = uint8(b.BarType.Source)
	clear(dst[17:24])
	binary.LittleEndian.PutUint64(dst[24:32], uint64(b.Open.Raw))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(b.High.Raw))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(b.Low.Raw))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(b.Close.Raw))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(b.Volume.Raw))

	return dst
}

// DecodeBar parses a bar payload. The bar type instrument id is left empty.
func DecodeBar(src []byte, h schema.Header) (schema.SymbolID, model.Bar, bool) {
	if len(src) < BarPayloadSize {
		return 0, model.Bar{}, false
	}
	pp := src[4]
	px := func(off int) model.Price {
		return model.PriceFromRaw(int64(binary.LittleEndian.Uint64(src[off:off+8])), pp)
	}
	return schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])), model.Bar{
		BarType: model.BarType{
			Spec: model.BarSpec{
				Step:        binary.LittleEndian.Uint64(src[8:16]),
				Aggregation: enum.BarAggregation(src[6]),
				PriceType:   enum.PriceType(src[7]),
			},
			Source: enum.AggregationSource(src[16]),
		},
		Open:    px(24),
		High:    px(32),
		Low:     px(40),
		Close:   px(48),
		Volume:  model.QuantityFromRaw(int64(binary.LittleEndian.Uint64(src[56:64])), src[5]),
		TsEvent: h.TsEvent,
		TsInit:  h.TsInit,
	}, true
}
