package model

import (
	"tradecore/internal/model/enum"
)

// OrderEvent is the closed set of order lifecycle events.
type OrderEvent interface {
	Header() EventHeader
	Kind() enum.OrderEventKind
}

// EventHeader is carried by every order event.
type EventHeader struct {
	TraderID      TraderID      `json:"traderId" codec:"traderId"`
	StrategyID    StrategyID    `json:"strategyId" codec:"strategyId"`
	InstrumentID  InstrumentID  `json:"instrumentId" codec:"instrumentId"`
	ClientOrderID ClientOrderID `json:"clientOrderId" codec:"clientOrderId"`
	EventID       UUID4         `json:"eventId" codec:"eventId"`
	TsEvent       UnixNanos     `json:"tsEvent" codec:"tsEvent"`
	TsInit        UnixNanos     `json:"tsInit" codec:"tsInit"`
}

func (h EventHeader) Header() EventHeader { return h }

// OrderInitialized carries the immutable parameters of a new order.
type OrderInitialized struct {
	EventHeader
	Side            enum.OrderSide   `json:"side" codec:"side"`
	OrderType       enum.OrderType   `json:"orderType" codec:"orderType"`
	Quantity        Quantity         `json:"quantity" codec:"quantity"`
	Price           *Price           `json:"price,omitempty" codec:"price"`
	TriggerPrice    *Price           `json:"triggerPrice,omitempty" codec:"triggerPrice"`
	TriggerType     enum.TriggerType `json:"triggerType" codec:"triggerType"`
	TimeInForce     enum.TimeInForce `json:"timeInForce" codec:"timeInForce"`
	ExpireTime      UnixNanos        `json:"expireTime,omitempty" codec:"expireTime"`
	PostOnly        bool             `json:"postOnly" codec:"postOnly"`
	ReduceOnly      bool             `json:"reduceOnly" codec:"reduceOnly"`
	QuoteQuantity   bool             `json:"quoteQuantity" codec:"quoteQuantity"`
	OrderListID     OrderListID      `json:"orderListId" codec:"orderListId"`
	ExecAlgorithmID ExecAlgorithmID  `json:"execAlgorithmId" codec:"execAlgorithmId"`
	Tags            []string         `json:"tags,omitempty" codec:"tags"`
}

type OrderDenied struct {
	EventHeader
	Reason string `json:"reason" codec:"reason"`
}

type OrderEmulated struct {
	EventHeader
}

type OrderReleased struct {
	EventHeader
	ReleasedPrice Price `json:"releasedPrice" codec:"releasedPrice"`
}

type OrderSubmitted struct {
	EventHeader
	AccountID AccountID `json:"accountId" codec:"accountId"`
}

type OrderRejected struct {
	EventHeader
	AccountID AccountID `json:"accountId" codec:"accountId"`
	Reason    string    `json:"reason" codec:"reason"`
}

type OrderAccepted struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
}

type OrderPendingUpdate struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
}

type OrderPendingCancel struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
}

type OrderModifyRejected struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
	Reason       string       `json:"reason" codec:"reason"`
}

type OrderCancelRejected struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
	Reason       string       `json:"reason" codec:"reason"`
}

// OrderUpdated replaces quantity and, when present, price and trigger price.
type OrderUpdated struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
	Quantity     Quantity     `json:"quantity" codec:"quantity"`
	Price        *Price       `json:"price,omitempty" codec:"price"`
	TriggerPrice *Price       `json:"triggerPrice,omitempty" codec:"triggerPrice"`
}

type OrderTriggered struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
}

type OrderCanceled struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
}

type OrderExpired struct {
	EventHeader
	VenueOrderID VenueOrderID `json:"venueOrderId" codec:"venueOrderId"`
	AccountID    AccountID    `json:"accountId" codec:"accountId"`
}

// OrderFilled is a single execution against an order.
type OrderFilled struct {
	EventHeader
	VenueOrderID  VenueOrderID       `json:"venueOrderId" codec:"venueOrderId"`
	AccountID     AccountID          `json:"accountId" codec:"accountId"`
	TradeID       TradeID            `json:"tradeId" codec:"tradeId"`
	PositionID    PositionID         `json:"positionId" codec:"positionId"`
	Side          enum.OrderSide     `json:"side" codec:"side"`
	OrderType     enum.OrderType     `json:"orderType" codec:"orderType"`
	LastQty       Quantity           `json:"lastQty" codec:"lastQty"`
	LastPx        Price              `json:"lastPx" codec:"lastPx"`
	Currency      Currency           `json:"currency" codec:"currency"`
	Commission    Money              `json:"commission" codec:"commission"`
	LiquiditySide enum.LiquiditySide `json:"liquiditySide" codec:"liquiditySide"`
}

func (OrderInitialized) Kind() enum.OrderEventKind { return enum.OrderEventInitialized }
func (OrderDenied) Kind() enum.OrderEventKind { return enum.OrderEventDenied }
func (OrderEmulated) Kind() enum.OrderEventKind { return enum.OrderEventEmulated }
func (OrderReleased) Kind() enum.OrderEventKind { return enum.OrderEventReleased }
func (OrderSubmitted) Kind() enum.OrderEventKind { return enum.OrderEventSubmitted }
func (OrderRejected) Kind() enum.OrderEventKind { return enum.OrderEventRejected }
func (OrderAccepted) Kind() enum.OrderEventKind { return enum.OrderEventAccepted }
func (OrderPendingUpdate) Kind() enum.OrderEventKind { return enum.OrderEventPendingUpdate }
func (OrderPendingCancel) Kind() enum.OrderEventKind { return enum.OrderEventPendingCancel }
func (OrderModifyRejected) Kind() enum.OrderEventKind { return enum.OrderEventModifyRejected }
func (OrderCancelRejected) Kind() enum.OrderEventKind { return enum.OrderEventCancelRejected }
func (OrderUpdated) Kind() enum.OrderEventKind { return enum.OrderEventUpdated }
func (OrderTriggered) Kind() enum.OrderEventKind { return enum.OrderEventTriggered }
func (OrderCanceled) Kind() enum.OrderEventKind { return enum.OrderEventCanceled }
func (OrderExpired) Kind() enum.OrderEventKind { return enum.OrderEventExpired }
func (OrderFilled) Kind() enum.OrderEventKind { return enum.OrderEventFilled }
