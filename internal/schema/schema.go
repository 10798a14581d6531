package schema

import (
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
)

// SchemaVersion is the current record schema version.
const SchemaVersion uint16 = 1

// RecordType defines the category of a record stored in the WAL.
type RecordType uint16

const (
	RecordUnknown RecordType = iota
	RecordQuote
	RecordTrade
	RecordBar
	RecordMarkPrice
	RecordIndexPrice
	RecordFundingRate
	RecordFill
)

func (t RecordType) String() string {
	switch t {
	case RecordQuote:
		return "quote"
	case RecordTrade:
		return "trade"
	case RecordBar:
		return "bar"
	case RecordMarkPrice:
		return "mark_price"
	case RecordIndexPrice:
		return "index_price"
	case RecordFundingRate:
		return "funding_rate"
	case RecordFill:
		return "fill"
	default:
		return "unknown"
	}
}

// RecordTypeOf maps a data kind to its record type. Book data is not recorded.
func RecordTypeOf(kind enum.DataKind) (RecordType, bool) {
	switch kind {
	case enum.DataKindQuote:
		return RecordQuote, true
	case enum.DataKindTrade:
		return RecordTrade, true
	case enum.DataKindBar:
		return RecordBar, true
	case enum.DataKindMarkPrice:
		return RecordMarkPrice, true
	case enum.DataKindIndexPrice:
		return RecordIndexPrice, true
	case enum.DataKindFundingRate:
		return RecordFundingRate, true
	default:
		return RecordUnknown, false
	}
}

// Header is the common metadata attached to every record.
type Header struct {
	Type    RecordType
	Version uint16
	Source  VenueID
	Flags   uint16
	Seq     uint64
	TsEvent model.UnixNanos
	TsInit  model.UnixNanos
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(recordType RecordType, source VenueID, seq uint64, tsEvent, tsInit model.UnixNanos) Header {
	return Header{
		Type:    recordType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsInit:  tsInit,
	}
}
