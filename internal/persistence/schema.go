package persistence

import (
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Schema metadata keys.
const (
	KeyInstrumentID   = "instrument_id"
	KeyPricePrecision = "price_precision"
	KeySizePrecision  = "size_precision"
	KeyDataKind       = "data_kind"
	KeyBarType        = "bar_type"
)

// Mode selects the column type used for raw fixed-point values.
type Mode uint8

const (
	// Mode64 stores raw values as Int64.
	Mode64 Mode = iota
	// ModeHighPrecision stores raw values as 16-byte little-endian two's
	// complement fixed-size binary.
	ModeHighPrecision
)

func (m Mode) rawType() arrow.DataType {
	if m == ModeHighPrecision {
		return &arrow.FixedSizeBinaryType{ByteWidth: rawWidth}
	}
	return arrow.PrimitiveTypes.Int64
}

// Metadata is the per-batch context shared by every row.
type Metadata struct {
	Kind           enum.DataKind
	InstrumentID   model.InstrumentID
	PricePrecision uint8
	SizePrecision  uint8
	BarType        model.BarType
}

func (m Metadata) arrow() arrow.Metadata {
	keys := []string{KeyDataKind, KeyInstrumentID, KeyPricePrecision, KeySizePrecision}
	values := []string{
		m.Kind.String(),
		m.InstrumentID.String(),
		strconv.FormatUint(uint64(m.PricePrecision), 10),
		strconv.FormatUint(uint64(m.SizePrecision), 10),
	}
	if m.Kind == enum.DataKindBar {
		keys = append(keys, KeyBarType)
		values = append(values, m.BarType.String())
	}
	return arrow.NewMetadata(keys, values)
}

// ParseMetadata reads batch metadata from an Arrow schema.
func ParseMetadata(s *arrow.Schema) (Metadata, error) {
	md := s.Metadata()
	get := func(key string) (string, error) {
		idx := md.FindKey(key)
		if idx < 0 {
			return "", errors.Wrap(exception.ErrMissingMetadata, "schema metadata").With("key", key)
		}
		return md.Values()[idx], nil
	}

	var out Metadata
	kind, err := get(KeyDataKind)
	if err != nil {
		return Metadata{}, err
	}
	if out.Kind, err = parseKind(kind); err != nil {
		return Metadata{}, err
	}

	id, err := get(KeyInstrumentID)
	if err != nil {
		return Metadata{}, err
	}
	if out.InstrumentID, err = model.ParseInstrumentID(id); err != nil {
		return Metadata{}, errors.Wrap(err, "metadata instrument id")
	}

	for key, dst := range map[string]*uint8{KeyPricePrecision: &out.PricePrecision, KeySizePrecision: &out.SizePrecision} {
		v, err := get(key)
		if err != nil {
			return Metadata{}, err
		}
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil || n > model.FixedPrecision {
			return Metadata{}, errors.Wrap(exception.ErrSchemaMismatch, "metadata precision").With("key", key).With("value", v)
		}
		*dst = uint8(n)
	}

	if out.Kind == enum.DataKindBar {
		bt, err := get(KeyBarType)
		if err != nil {
			return Metadata{}, err
		}
		if out.BarType, err = model.ParseBarType(bt); err != nil {
			return Metadata{}, errors.Wrap(err, "metadata bar type")
		}
	}
	return out, nil
}

func parseKind(s string) (enum.DataKind, error) {
	for k := enum.DataKindOrderBookDelta; k.IsAvailable(); k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errors.Wrap(exception.ErrUnknownDataKind, "metadata data kind").With("value", s)
}

type column struct {
	name string
	typ  arrow.DataType
}

func raw(mode Mode, names ...string) []column {
	out := make([]column, len(names))
	for i, n := range names {
		out[i] = column{name: n, typ: mode.rawType()}
	}
	return out
}

var timestamps = []column{
	{name: "ts_event", typ: arrow.PrimitiveTypes.Uint64},
	{name: "ts_init", typ: arrow.PrimitiveTypes.Uint64},
}

func columns(kind enum.DataKind, mode Mode) ([]column, error) {
	var cols []column
	switch kind {
	case enum.DataKindQuote:
		cols = raw(mode, "bid_price", "ask_price", "bid_size", "ask_size")
	case enum.DataKindTrade:
		cols = append(raw(mode, "price", "size"),
			column{name: "aggressor_side", typ: arrow.PrimitiveTypes.Uint8},
			column{name: "trade_id", typ: arrow.BinaryTypes.String},
		)
	case enum.DataKindBar:
		cols = raw(mode, "open", "high", "low", "close", "volume")
	case enum.DataKindMarkPrice, enum.DataKindIndexPrice:
		cols = raw(mode, "value")
	case enum.DataKindFundingRate:
		cols = append(raw(mode, "rate"), column{name: "next_funding_ns", typ: arrow.PrimitiveTypes.Uint64})
	case enum.DataKindOrderBookDelta, enum.DataKindOrderBookDeltas:
		cols = append([]column{
			{name: "action", typ: arrow.PrimitiveTypes.Uint8},
			{name: "side", typ: arrow.PrimitiveTypes.Uint8},
		}, raw(mode, "price", "size")...)
		cols = append(cols,
			column{name: "order_id", typ: arrow.PrimitiveTypes.Uint64},
			column{name: "flags", typ: arrow.PrimitiveTypes.Uint8},
			column{name: "sequence", typ: arrow.PrimitiveTypes.Uint64},
		)
	case enum.DataKindOrderBookDepth10:
		for _, side := range []string{"bid", "ask"} {
			for i := range model.DepthLevels {
				n := strconv.Itoa(i)
				cols = append(cols, raw(mode, side+"_price_"+n, side+"_size_"+n)...)
				cols = append(cols,
					column{name: side + "_side_" + n, typ: arrow.PrimitiveTypes.Uint8},
					column{name: side + "_order_id_" + n, typ: arrow.PrimitiveTypes.Uint64},
					column{name: side + "_count_" + n, typ: arrow.PrimitiveTypes.Uint32},
				)
			}
		}
		cols = append(cols,
			column{name: "flags", typ: arrow.PrimitiveTypes.Uint8},
			column{name: "sequence", typ: arrow.PrimitiveTypes.Uint64},
		)
	case enum.DataKindInstrumentStatus:
		cols = []column{
			{name: "action", typ: arrow.PrimitiveTypes.Uint8},
			{name: "reason", typ: arrow.BinaryTypes.String},
			{name: "is_trading", typ: arrow.FixedWidthTypes.Boolean},
			{name: "is_quoting", typ: arrow.FixedWidthTypes.Boolean},
		}
	case enum.DataKindInstrumentClose:
		cols = append(raw(mode, "close_price"), column{name: "close_type", typ: arrow.PrimitiveTypes.Uint8})
	default:
		return nil, errors.Wrap(exception.ErrUnknownDataKind, "columns").With("kind", kind.String())
	}
	return append(cols, timestamps...), nil
}

// Schema returns the Arrow schema of a batch described by meta.
func Schema(meta Metadata, mode Mode) (*arrow.Schema, error) {
	cols, err := columns(meta.Kind, mode)
	if err != nil {
		return nil, err
	}
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.name, Type: c.typ}
	}
	md := meta.arrow()
	return arrow.NewSchema(fields, &md), nil
}
