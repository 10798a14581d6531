package enum

// DataKind tags each market data variant.
type DataKind uint8

const (
	_data_kind_beg DataKind = iota
	DataKindOrderBookDelta
	DataKindOrderBookDeltas
	DataKindOrderBookDepth10
	DataKindQuote
	DataKindTrade
	DataKindBar
	DataKindMarkPrice
	DataKindIndexPrice
	DataKindFundingRate
	DataKindInstrumentStatus
	DataKindInstrumentClose
	_data_kind_end
)

func (k DataKind) IsAvailable() bool {
	return k > _data_kind_beg && k < _data_kind_end
}

func (k DataKind) String() string {
	switch k {
	case DataKindOrderBookDelta:
		return "order_book_delta"
	case DataKindOrderBookDeltas:
		return "order_book_deltas"
	case DataKindOrderBookDepth10:
		return "order_book_depth10"
	case DataKindQuote:
		return "quotes"
	case DataKindTrade:
		return "trades"
	case DataKindBar:
		return "bars"
	case DataKindMarkPrice:
		return "mark_prices"
	case DataKindIndexPrice:
		return "index_prices"
	case DataKindFundingRate:
		return "funding_rates"
	case DataKindInstrumentStatus:
		return "instrument_status"
	case DataKindInstrumentClose:
		return "instrument_close"
	default:
		return "unknown"
	}
}

// BookAction add, update, delete, clear
type BookAction uint8

const (
	_book_action_beg BookAction = iota
	BookActionAdd
	BookActionUpdate
	BookActionDelete
	BookActionClear
	_book_action_end
)

func (a BookAction) IsAvailable() bool {
	return a > _book_action_beg && a < _book_action_end
}

// AggressorSide buyer, seller, no aggressor
type AggressorSide uint8

const (
	AggressorSideNoAggressor AggressorSide = iota
	AggressorSideBuyer
	AggressorSideSeller
)

func (s AggressorSide) IsAvailable() bool {
	return s <= AggressorSideSeller
}

func (s AggressorSide) String() string {
	switch s {
	case AggressorSideBuyer:
		return "BUYER"
	case AggressorSideSeller:
		return "SELLER"
	default:
		return "NO_AGGRESSOR"
	}
}

// BarAggregation is the unit a bar step is measured in.
type BarAggregation uint8

const (
	_bar_aggregation_beg BarAggregation = iota
	BarAggregationTick
	BarAggregationVolume
	BarAggregationValue
	BarAggregationMillisecond
	BarAggregationSecond
	BarAggregationMinute
	BarAggregationHour
	BarAggregationDay
	BarAggregationWeek
	BarAggregationMonth
	_bar_aggregation_end
)

func (a BarAggregation) IsAvailable() bool {
	return a > _bar_aggregation_beg && a < _bar_aggregation_end
}

// IsTimeBased reports whether bars close on a clock boundary.
func (a BarAggregation) IsTimeBased() bool {
	return a >= BarAggregationMillisecond && a <= BarAggregationMonth
}

var barAggregationNames = [...]string{
	BarAggregationTick:        "TICK",
	BarAggregationVolume:      "VOLUME",
	BarAggregationValue:       "VALUE",
	BarAggregationMillisecond: "MILLISECOND",
	BarAggregationSecond:      "SECOND",
	BarAggregationMinute:      "MINUTE",
	BarAggregationHour:        "HOUR",
	BarAggregationDay:         "DAY",
	BarAggregationWeek:        "WEEK",
	BarAggregationMonth:       "MONTH",
}

func (a BarAggregation) String() string {
	if !a.IsAvailable() {
		return "UNKNOWN"
	}
	return barAggregationNames[a]
}

// ParseBarAggregation is the inverse of BarAggregation.String.
func ParseBarAggregation(s string) (BarAggregation, bool) {
	for i := _bar_aggregation_beg + 1; i < _bar_aggregation_end; i++ {
		if barAggregationNames[i] == s {
			return i, true
		}
	}
	return 0, false
}

// PriceType bid, ask, mid, last
type PriceType uint8

const (
	_price_type_beg PriceType = iota
	PriceTypeBid
	PriceTypeAsk
	PriceTypeMid
	PriceTypeLast
	_price_type_end
)

var priceTypeNames = [...]string{
	PriceTypeBid:  "BID",
	PriceTypeAsk:  "ASK",
	PriceTypeMid:  "MID",
	PriceTypeLast: "LAST",
}

func (p PriceType) IsAvailable() bool {
	return p > _price_type_beg && p < _price_type_end
}

func (p PriceType) String() string {
	if !p.IsAvailable() {
		return "UNKNOWN"
	}
	return priceTypeNames[p]
}

func ParsePriceType(s string) (PriceType, bool) {
	for i := _price_type_beg + 1; i < _price_type_end; i++ {
		if priceTypeNames[i] == s {
			return i, true
		}
	}
	return 0, false
}

// AggregationSource internal, external
type AggregationSource uint8

const (
	_aggregation_source_beg AggregationSource = iota
	AggregationSourceExternal
	AggregationSourceInternal
	_aggregation_source_end
)

func (s AggregationSource) IsAvailable() bool {
	return s > _aggregation_source_beg && s < _aggregation_source_end
}

func (s AggregationSource) String() string {
	switch s {
	case AggregationSourceExternal:
		return "EXTERNAL"
	case AggregationSourceInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func ParseAggregationSource(s string) (AggregationSource, bool) {
	switch s {
	case "EXTERNAL":
		return AggregationSourceExternal, true
	case "INTERNAL":
		return AggregationSourceInternal, true
	default:
		return 0, false
	}
}

// MarketStatusAction is the trading state carried by an instrument status update.
type MarketStatusAction uint8

const (
	MarketStatusActionNone MarketStatusAction = iota
	MarketStatusActionPreOpen
	MarketStatusActionTrading
	MarketStatusActionPause
	MarketStatusActionHalt
	MarketStatusActionClose
	MarketStatusActionNotAvailable
)

func (a MarketStatusAction) String() string {
	switch a {
	case MarketStatusActionPreOpen:
		return "PRE_OPEN"
	case MarketStatusActionTrading:
		return "TRADING"
	case MarketStatusActionPause:
		return "PAUSE"
	case MarketStatusActionHalt:
		return "HALT"
	case MarketStatusActionClose:
		return "CLOSE"
	case MarketStatusActionNotAvailable:
		return "NOT_AVAILABLE"
	default:
		return "NONE"
	}
}

// InstrumentCloseType end of session, contract expired
type InstrumentCloseType uint8

const (
	InstrumentCloseTypeEndOfSession InstrumentCloseType = iota + 1
	InstrumentCloseTypeContractExpired
)
