package model

import (
	"github.com/yanun0323/errors"

	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

const DepthLevels = 10

// Book delta flags
const (
	FlagLast     uint8 = 1 << 7
	FlagTob      uint8 = 1 << 6
	FlagSnapshot uint8 = 1 << 5
	FlagMbp      uint8 = 1 << 4
)

// BookOrder is one price level (or order) of a book.
type BookOrder struct {
	Side    enum.OrderSide `json:"side" codec:"side"`
	Price   Price          `json:"price" codec:"price"`
	Size    Quantity       `json:"size" codec:"size"`
	OrderID uint64         `json:"orderId" codec:"orderId"`
}

// OrderBookDelta is a single incremental book change.
type OrderBookDelta struct {
	InstrumentID InstrumentID    `json:"instrumentId" codec:"instrumentId"`
	Action       enum.BookAction `json:"action" codec:"action"`
	Order        BookOrder       `json:"order" codec:"order"`
	Flags        uint8           `json:"flags" codec:"flags"`
	Sequence     uint64          `json:"sequence" codec:"sequence"`
	TsEvent      UnixNanos       `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos       `json:"tsInit" codec:"tsInit"`
}

// NewClearDelta builds the delta that empties a book before a snapshot.
func NewClearDelta(id InstrumentID, sequence uint64, tsEvent, tsInit UnixNanos) OrderBookDelta {
	return OrderBookDelta{
		InstrumentID: id,
		Action:       enum.BookActionClear,
		Flags:        FlagSnapshot,
		Sequence:     sequence,
		TsEvent:      tsEvent,
		TsInit:       tsInit,
	}
}

func (d OrderBookDelta) Kind() enum.DataKind { return enum.DataKindOrderBookDelta }
func (d OrderBookDelta) Instrument() InstrumentID { return d.InstrumentID }
func (d OrderBookDelta) EventTime() UnixNanos { return d.TsEvent }
func (d OrderBookDelta) InitTime() UnixNanos { return d.TsInit }

// OrderBookDeltas is a batch of deltas for one instrument. Header fields come from the last delta.
type OrderBookDeltas struct {
	InstrumentID InstrumentID     `json:"instrumentId" codec:"instrumentId"`
	Deltas       []OrderBookDelta `json:"deltas" codec:"deltas"`
	Flags        uint8            `json:"flags" codec:"flags"`
	Sequence     uint64           `json:"sequence" codec:"sequence"`
	TsEvent      UnixNanos        `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos        `json:"tsInit" codec:"tsInit"`
}

func NewOrderBookDeltas(id InstrumentID, deltas []OrderBookDelta) (OrderBookDeltas, error) {
	if len(deltas) == 0 {
		return OrderBookDeltas{}, errors.Wrap(exception.ErrInvalidArgument, "empty deltas").With("instrument", id.String())
	}
	for i := range deltas {
		if deltas[i].InstrumentID != id {
			return OrderBookDeltas{}, errors.Wrap(exception.ErrInvalidArgument, "delta instrument mismatch").
				With("expected", id.String()).With("actual", deltas[i].InstrumentID.String())
		}
	}
	last := deltas[len(deltas)-1]
	return OrderBookDeltas{
		InstrumentID: id,
		Deltas:       deltas,
		Flags:        last.Flags,
		Sequence:     last.Sequence,
		TsEvent:      last.TsEvent,
		TsInit:       last.TsInit,
	}, nil
}

func (d OrderBookDeltas) Kind() enum.DataKind { return enum.DataKindOrderBookDeltas }
func (d OrderBookDeltas) Instrument() InstrumentID { return d.InstrumentID }
func (d OrderBookDeltas) EventTime() UnixNanos { return d.TsEvent }
func (d OrderBookDeltas) InitTime() UnixNanos { return d.TsInit }

// OrderBookDepth10 is a fixed ten-level snapshot of both sides.
type OrderBookDepth10 struct {
	InstrumentID InstrumentID           `json:"instrumentId" codec:"instrumentId"`
	Bids         [DepthLevels]BookOrder `json:"bids" codec:"bids"`
	Asks         [DepthLevels]BookOrder `json:"asks" codec:"asks"`
	BidCounts    [DepthLevels]uint32    `json:"bidCounts" codec:"bidCounts"`
	AskCounts    [DepthLevels]uint32    `json:"askCounts" codec:"askCounts"`
	Flags        uint8                  `json:"flags" codec:"flags"`
	Sequence     uint64                 `json:"sequence" codec:"sequence"`
	TsEvent      UnixNanos              `json:"tsEvent" codec:"tsEvent"`
	TsInit       UnixNanos              `json:"tsInit" codec:"tsInit"`
}

func (d OrderBookDepth10) Kind() enum.DataKind { return enum.DataKindOrderBookDepth10 }
func (d OrderBookDepth10) Instrument() InstrumentID { return d.InstrumentID }
func (d OrderBookDepth10) EventTime() UnixNanos { return d.TsEvent }
func (d OrderBookDepth10) InitTime() UnixNanos { return d.TsInit }
