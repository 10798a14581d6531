package model

import (
	"tradecore/internal/model/enum"
)

// Order is the mutable state of one order. Its identity fields never change after
// construction and Events is append-only.
type Order struct {
	TraderID      TraderID      `json:"traderId" codec:"traderId"`
	StrategyID    StrategyID    `json:"strategyId" codec:"strategyId"`
	InstrumentID  InstrumentID  `json:"instrumentId" codec:"instrumentId"`
	ClientOrderID ClientOrderID `json:"clientOrderId" codec:"clientOrderId"`

	Side          enum.OrderSide     `json:"side" codec:"side"`
	OrderType     enum.OrderType     `json:"orderType" codec:"orderType"`
	TimeInForce   enum.TimeInForce   `json:"timeInForce" codec:"timeInForce"`
	TriggerType   enum.TriggerType   `json:"triggerType" codec:"triggerType"`
	Status        enum.OrderStatus   `json:"status" codec:"status"`
	Quantity      Quantity           `json:"quantity" codec:"quantity"`
	FilledQty     Quantity           `json:"filledQty" codec:"filledQty"`
	LeavesQty     Quantity           `json:"leavesQty" codec:"leavesQty"`
	Price         *Price             `json:"price,omitempty" codec:"price"`
	TriggerPrice  *Price             `json:"triggerPrice,omitempty" codec:"triggerPrice"`
	AvgPx         float64            `json:"avgPx" codec:"avgPx"`
	LiquiditySide enum.LiquiditySide `json:"liquiditySide" codec:"liquiditySide"`
	ReduceOnly    bool               `json:"reduceOnly" codec:"reduceOnly"`
	PostOnly      bool               `json:"postOnly" codec:"postOnly"`

	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	PositionID   PositionID   `json:"positionId" codec:"positionId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
	LastTradeID  TradeID      `json:"lastTradeId" codec:"lastTradeId"`
	TradeIDs     []TradeID    `json:"tradeIds,omitempty" codec:"tradeIds"`

	PreviousStatus enum.OrderStatus `json:"previousStatus" codec:"previousStatus"`
	Commissions    map[string]Money `json:"commissions,omitempty" codec:"commissions"`

	TsInit      UnixNanos `json:"tsInit" codec:"tsInit"`
	TsSubmitted UnixNanos `json:"tsSubmitted,omitempty" codec:"tsSubmitted"`
	TsAccepted  UnixNanos `json:"tsAccepted,omitempty" codec:"tsAccepted"`
	TsClosed    UnixNanos `json:"tsClosed,omitempty" codec:"tsClosed"`
	TsLast      UnixNanos `json:"tsLast" codec:"tsLast"`

	Events []OrderEvent `json:"-" codec:"-"`
	seen   map[UUID4]struct{}
}

// NewOrder builds an order in the Initialized status from its init event.
func NewOrder(init OrderInitialized) *Order {
	o := &Order{
		TraderID:      init.TraderID,
		StrategyID:    init.StrategyID,
		InstrumentID:  init.InstrumentID,
		ClientOrderID: init.ClientOrderID,
		Side:          init.Side,
		OrderType:     init.OrderType,
		TimeInForce:   init.TimeInForce,
		TriggerType:   init.TriggerType,
		Status:        enum.OrderStatusInitialized,
		Quantity:      init.Quantity,
		FilledQty:     ZeroQuantity(init.Quantity.Precision),
		LeavesQty:     init.Quantity,
		Price:         init.Price,
		TriggerPrice:  init.TriggerPrice,
		ReduceOnly:    init.ReduceOnly,
		PostOnly:      init.PostOnly,
		Commissions:   make(map[string]Money),
		TsInit:        init.TsEvent,
		TsLast:        init.TsEvent,
		Events:        []OrderEvent{init},
		seen:          map[UUID4]struct{}{init.EventID: {}},
	}
	return o
}

// HasSeen reports whether an event with id has already been applied.
func (o *Order) HasSeen(id UUID4) bool {
	if o.seen == nil {
		o.rebuildSeen()
	}
	_, ok := o.seen[id]
	return ok
}

// Record appends ev to the event log and updates ts_last.
func (o *Order) Record(ev OrderEvent) {
	if o.seen == nil {
		o.rebuildSeen()
	}
	h := ev.Header()
	o.seen[h.EventID] = struct{}{}
	o.Events = append(o.Events, ev)
	o.TsLast = h.TsEvent
}

func (o *Order) rebuildSeen() {
	o.seen = make(map[UUID4]struct{}, len(o.Events))
	for _, ev := range o.Events {
		o.seen[ev.Header().EventID] = struct{}{}
	}
}

func (o *Order) IsTerminal() bool { return o.Status.IsTerminal() }
func (o *Order) IsOpen() bool { return o.Status.IsOpen() }

// IsInflight reports whether the order is waiting on a venue response.
func (o *Order) IsInflight() bool {
	switch o.Status {
	case enum.OrderStatusSubmitted, enum.OrderStatusPendingUpdate, enum.OrderStatusPendingCancel:
		return true
	default:
		return false
	}
}

// SignedLeaves is leaves_qty as a signed float, positive for buys.
func (o *Order) SignedLeaves() float64 {
	return float64(o.Side.Sign()) * o.LeavesQty.Float64()
}

// LastEvent returns the most recent event, or nil for an order with no events.
func (o *Order) LastEvent() OrderEvent {
	if len(o.Events) == 0 {
		return nil
	}
	return o.Events[len(o.Events)-1]
}
