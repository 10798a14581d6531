package enum

// PositionSide flat, long, short
type PositionSide uint8

const (
	PositionSideFlat PositionSide = iota
	PositionSideLong
	PositionSideShort
)

func (s PositionSide) String() string {
	switch s {
	case PositionSideLong:
		return "LONG"
	case PositionSideShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// OrderSide returns the side that opens a position on this side.
func (s PositionSide) OrderSide() OrderSide {
	switch s {
	case PositionSideLong:
		return OrderSideBuy
	case PositionSideShort:
		return OrderSideSell
	default:
		return _order_side_beg
	}
}

// SerializationEncoding selects the cache payload format.
type SerializationEncoding uint8

const (
	SerializationEncodingMsgPack SerializationEncoding = iota
	SerializationEncodingJSON
)

func (e SerializationEncoding) String() string {
	switch e {
	case SerializationEncodingMsgPack:
		return "msgpack"
	case SerializationEncodingJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseSerializationEncoding accepts "msgpack" or "json".
func ParseSerializationEncoding(s string) (SerializationEncoding, bool) {
	switch s {
	case "msgpack":
		return SerializationEncodingMsgPack, true
	case "json":
		return SerializationEncodingJSON, true
	default:
		return 0, false
	}
}
