package model

import (
	"github.com/yanun0323/errors"

	"tradecore/internal/clock"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// UnixNanos is the timestamp type shared by every event.
type UnixNanos = clock.UnixNanos

// Data is the closed set of market data variants.
type Data interface {
	Kind() enum.DataKind
	Instrument() InstrumentID
	EventTime() UnixNanos
	InitTime() UnixNanos
}

// QuoteTick is a top-of-book update.
type QuoteTick struct {
	InstrumentID InstrumentID `json:"instrumentId" codec:"instrumentId"`
	BidPrice     Price        `json:"bidPrice" codec:"bidPrice"`
	AskPrice     Price        `json:"askPrice" codec:"askPrice"`
	BidSize      Quantity     `json:"bidSize" codec:"bidSize"`
	AskSize      Quantity     `json:"askSize" codec:"askSize"`
	TsEvent      UnixNanos    `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos    `json:"tsInit" codec:"tsInit"`
}

// NewQuoteTick checks that both sides share price and size precision.
func NewQuoteTick(id InstrumentID, bid, ask Price, bidSize, askSize Quantity, tsEvent, tsInit UnixNanos) (QuoteTick, error) {
	if bid.Precision != ask.Precision {
		return QuoteTick{}, errors.Wrap(exception.ErrPrecisionMismatch, "quote prices").With("instrument", id.String())
	}
	if bidSize.Precision != askSize.Precision {
		return QuoteTick{}, errors.Wrap(exception.ErrPrecisionMismatch, "quote sizes").With("instrument", id.String())
	}
	return QuoteTick{
		InstrumentID: id,
		BidPrice:     bid,
		AskPrice:     ask,
		BidSize:      bidSize,
		AskSize:      askSize,
		TsEvent:      tsEvent,
		TsInit:       tsInit,
	}, nil
}

func (q QuoteTick) Kind() enum.DataKind { return enum.DataKindQuote }
func (q QuoteTick) Instrument() InstrumentID { return q.InstrumentID }
func (q QuoteTick) EventTime() UnixNanos { return q.TsEvent }
func (q QuoteTick) InitTime() UnixNanos { return q.TsInit }

// TradeTick is a single venue trade.
type TradeTick struct {
	InstrumentID  InstrumentID       `json:"instrumentId" codec:"instrumentId"`
	Price         Price              `json:"price" codec:"price"`
	Size          Quantity           `json:"size" codec:"size"`
	AggressorSide enum.AggressorSide `json:"aggressorSide" codec:"aggressorSide"`
	TradeID       TradeID            `json:"tradeId" codec:"tradeId"`
	TsEvent       UnixNanos          `json:"tsEvent" codec:"tsEvent"`
	TsInit        UnixNanos          `json:"tsInit" codec:"tsInit"`
}

func (t TradeTick) Kind() enum.DataKind { return enum.DataKindTrade }
func (t TradeTick) Instrument() InstrumentID { return t.InstrumentID }
func (t TradeTick) EventTime() UnixNanos { return t.TsEvent }
func (t TradeTick) InitTime() UnixNanos { return t.TsInit }

// MarkPriceUpdate carries a venue mark price.
type MarkPriceUpdate struct {
	InstrumentID InstrumentID `json:"instrumentId" codec:"instrumentId"`
	Value        Price        `json:"value" codec:"value"`
	TsEvent      UnixNanos    `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos    `json:"tsInit" codec:"tsInit"`
}

func (m MarkPriceUpdate) Kind() enum.DataKind { return enum.DataKindMarkPrice }
func (m MarkPriceUpdate) Instrument() InstrumentID { return m.InstrumentID }
func (m MarkPriceUpdate) EventTime() UnixNanos { return m.TsEvent }
func (m MarkPriceUpdate) InitTime() UnixNanos { return m.TsInit }

// IndexPriceUpdate carries a venue index price.
type IndexPriceUpdate struct {
	InstrumentID InstrumentID `json:"instrumentId" codec:"instrumentId"`
	Value        Price        `json:"value" codec:"value"`
	TsEvent      UnixNanos    `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos    `json:"tsInit" codec:"tsInit"`
}

func (m IndexPriceUpdate) Kind() enum.DataKind { return enum.DataKindIndexPrice }
func (m IndexPriceUpdate) Instrument() InstrumentID { return m.InstrumentID }
func (m IndexPriceUpdate) EventTime() UnixNanos { return m.TsEvent }
func (m IndexPriceUpdate) InitTime() UnixNanos { return m.TsInit }

// FundingRateUpdate carries a perpetual funding rate. Rate uses the fixed-point layout of Price.
type FundingRateUpdate struct {
	InstrumentID InstrumentID `json:"instrumentId" codec:"instrumentId"`
	Rate         Price        `json:"rate" codec:"rate"`
	NextFunding  UnixNanos    `json:"nextFunding" codec:"nextFunding"`
	TsEvent      UnixNanos    `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos    `json:"tsInit" codec:"tsInit"`
}

func (f FundingRateUpdate) Kind() enum.DataKind { return enum.DataKindFundingRate }
func (f FundingRateUpdate) Instrument() InstrumentID { return f.InstrumentID }
func (f FundingRateUpdate) EventTime() UnixNanos { return f.TsEvent }
func (f FundingRateUpdate) InitTime() UnixNanos { return f.TsInit }

// InstrumentStatus reports a change in the trading state of an instrument.
type InstrumentStatus struct {
	InstrumentID InstrumentID            `json:"instrumentId" codec:"instrumentId"`
	Action       enum.MarketStatusAction `json:"action" codec:"action"`
	Reason       string                  `json:"reason,omitempty" codec:"reason"`
	IsTrading    bool                    `json:"isTrading" codec:"isTrading"`
	IsQuoting    bool                    `json:"isQuoting" codec:"isQuoting"`
	TsEvent      UnixNanos               `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos               `json:"tsInit" codec:"tsInit"`
}

func (s InstrumentStatus) Kind() enum.DataKind { return enum.DataKindInstrumentStatus }
func (s InstrumentStatus) Instrument() InstrumentID { return s.InstrumentID }
func (s InstrumentStatus) EventTime() UnixNanos { return s.TsEvent }
func (s InstrumentStatus) InitTime() UnixNanos { return s.TsInit }

// InstrumentClose is the official close of a session or contract.
type InstrumentClose struct {
	InstrumentID InstrumentID             `json:"instrumentId" codec:"instrumentId"`
	ClosePrice   Price                    `json:"closePrice" codec:"closePrice"`
	CloseType    enum.InstrumentCloseType `json:"closeType" codec:"closeType"`
	TsEvent      UnixNanos                `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos                `json:"tsInit" codec:"tsInit"`
}

func (c InstrumentClose) Kind() enum.DataKind { return enum.DataKindInstrumentClose }
func (c InstrumentClose) Instrument() InstrumentID { return c.InstrumentID }
func (c InstrumentClose) EventTime() UnixNanos { return c.TsEvent }
func (c InstrumentClose) InitTime() UnixNanos { return c.TsInit }

// CheckMonotonic returns the index of the first element whose ts_init goes backwards, or -1.
func CheckMonotonic(data []Data) int {
	for i := 1; i < len(data); i++ {
		if data[i].InitTime() < data[i-1].InitTime() {
			return i
		}
	}
	return -1
}

// WithInitTime returns a copy of d stamped with ts. Batched deltas are stamped
// individually.
func WithInitTime(d Data, ts UnixNanos) Data {
	switch v := d.(type) {
	case QuoteTick:
		v.TsInit = ts
		return v
	case TradeTick:
		v.TsInit = ts
		return v
	case Bar:
		v.TsInit = ts
		return v
	case MarkPriceUpdate:
		v.TsInit = ts
		return v
	case IndexPriceUpdate:
		v.TsInit = ts
		return v
	case FundingRateUpdate:
		v.TsInit = ts
		return v
	case InstrumentStatus:
		v.TsInit = ts
		return v
	case InstrumentClose:
		v.TsInit = ts
		return v
	case OrderBookDelta:
		v.TsInit = ts
		return v
	case OrderBookDeltas:
		deltas := make([]OrderBookDelta, len(v.Deltas))
		for i, delta := range v.Deltas {
			delta.TsInit = ts
			deltas[i] = delta
		}
		v.Deltas = deltas
		v.TsInit = ts
		return v
	case OrderBookDepth10:
		v.TsInit = ts
		return v
	default:
		return d
	}
}
