package model

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/model/enum"
)

// OrderStatusReport is the venue's view of one order.
type OrderStatusReport struct {
	AccountID       AccountID        `json:"accountId" codec:"accountId"`
	InstrumentID    InstrumentID     `json:"instrumentId" codec:"instrumentId"`
	ClientOrderID   ClientOrderID    `json:"clientOrderId" codec:"clientOrderId"`
	VenueOrderID    VenueOrderID     `json:"venueOrderId" codec:"venueOrderId"`
	VenuePositionID PositionID       `json:"venuePositionId" codec:"venuePositionId"`
	Side            enum.OrderSide   `json:"side" codec:"side"`
	OrderType       enum.OrderType   `json:"orderType" codec:"orderType"`
	TimeInForce     enum.TimeInForce `json:"timeInForce" codec:"timeInForce"`
	Status          enum.OrderStatus `json:"status" codec:"status"`
	Quantity        Quantity         `json:"quantity" codec:"quantity"`
	FilledQty       Quantity         `json:"filledQty" codec:"filledQty"`
	Price           *Price           `json:"price,omitempty" codec:"price"`
	TriggerPrice    *Price           `json:"triggerPrice,omitempty" codec:"triggerPrice"`
	TriggerType     enum.TriggerType `json:"triggerType" codec:"triggerType"`
	AvgPx           float64          `json:"avgPx,omitempty" codec:"avgPx"`
	PostOnly        bool             `json:"postOnly" codec:"postOnly"`
	ReduceOnly      bool             `json:"reduceOnly" codec:"reduceOnly"`
	CancelReason    string           `json:"cancelReason,omitempty" codec:"cancelReason"`
	ReportID        UUID4            `json:"reportId" codec:"reportId"`
	TsAccepted      UnixNanos        `json:"tsAccepted" codec:"tsAccepted"`
	TsLast          UnixNanos        `json:"tsLast" codec:"tsLast"`
	TsInit          UnixNanos        `json:"tsInit" codec:"tsInit"`
}

// LeavesQty is quantity minus filled quantity, floored at zero.
func (r OrderStatusReport) LeavesQty() Quantity {
	leaves, err := r.Quantity.Sub(r.FilledQty)
	if err != nil {
		return ZeroQuantity(r.Quantity.Precision)
	}
	return leaves
}

// IsOpen reports whether the venue still works the order.
func (r OrderStatusReport) IsOpen() bool {
	return r.Status.IsOpen() || r.Status == enum.OrderStatusSubmitted
}

// FillReport is one venue execution.
type FillReport struct {
	AccountID       AccountID          `json:"accountId" codec:"accountId"`
	InstrumentID    InstrumentID       `json:"instrumentId" codec:"instrumentId"`
	ClientOrderID   ClientOrderID      `json:"clientOrderId" codec:"clientOrderId"`
	VenueOrderID    VenueOrderID       `json:"venueOrderId" codec:"venueOrderId"`
	VenuePositionID PositionID         `json:"venuePositionId" codec:"venuePositionId"`
	TradeID         TradeID            `json:"tradeId" codec:"tradeId"`
	Side            enum.OrderSide     `json:"side" codec:"side"`
	LastQty         Quantity           `json:"lastQty" codec:"lastQty"`
	LastPx          Price              `json:"lastPx" codec:"lastPx"`
	Commission      Money              `json:"commission" codec:"commission"`
	LiquiditySide   enum.LiquiditySide `json:"liquiditySide" codec:"liquiditySide"`
	ReportID        UUID4              `json:"reportId" codec:"reportId"`
	TsEvent         UnixNanos          `json:"tsEvent" codec:"tsEvent"`
	TsInit          UnixNanos          `json:"tsInit" codec:"tsInit"`
}

// SignedQty is last_qty with the side applied.
func (r FillReport) SignedQty() decimal.Decimal {
	q := r.LastQty.Decimal()
	if r.Side == enum.OrderSideSell {
		return q.Neg()
	}
	return q
}

// PositionStatusReport is the venue's view of a position.
type PositionStatusReport struct {
	AccountID       AccountID           `json:"accountId" codec:"accountId"`
	InstrumentID    InstrumentID        `json:"instrumentId" codec:"instrumentId"`
	VenuePositionID PositionID          `json:"venuePositionId" codec:"venuePositionId"`
	Side            enum.PositionSide   `json:"side" codec:"side"`
	Quantity        Quantity            `json:"quantity" codec:"quantity"`
	SignedQty       decimal.Decimal     `json:"signedQty" codec:"signedQty"`
	AvgPxOpen       decimal.NullDecimal `json:"avgPxOpen" codec:"avgPxOpen"`
	ReportID        UUID4               `json:"reportId" codec:"reportId"`
	TsLast          UnixNanos           `json:"tsLast" codec:"tsLast"`
	TsInit          UnixNanos           `json:"tsInit" codec:"tsInit"`
}

// NewPositionStatusReport derives the signed quantity from side and quantity.
func NewPositionStatusReport(account AccountID, id InstrumentID, side enum.PositionSide, qty Quantity, avgPxOpen *decimal.Decimal, tsLast, tsInit UnixNanos) PositionStatusReport {
	signed := qty.Decimal()
	switch side {
	case enum.PositionSideShort:
		signed = signed.Neg()
	case enum.PositionSideFlat:
		signed = decimal.Zero
	}
	r := PositionStatusReport{
		AccountID:    account,
		InstrumentID: id,
		Side:         side,
		Quantity:     qty,
		SignedQty:    signed,
		ReportID:     NewUUID4(),
		TsLast:       tsLast,
		TsInit:       tsInit,
	}
	if avgPxOpen != nil {
		r.AvgPxOpen = decimal.NewNullDecimal(*avgPxOpen)
	}
	return r
}

func (r PositionStatusReport) IsFlat() bool {
	return r.Side == enum.PositionSideFlat || r.SignedQty.IsZero()
}

// ExecutionMassStatus is a venue snapshot of orders, fills and positions for one account.
type ExecutionMassStatus struct {
	ClientID        ClientID                                `json:"clientId" codec:"clientId"`
	AccountID       AccountID                               `json:"accountId" codec:"accountId"`
	Venue           Venue                                   `json:"venue" codec:"venue"`
	ReportID        UUID4                                   `json:"reportId" codec:"reportId"`
	TsInit          UnixNanos                               `json:"tsInit" codec:"tsInit"`
	OrderReports    map[VenueOrderID]OrderStatusReport      `json:"-" codec:"-"`
	FillReports     map[VenueOrderID][]FillReport           `json:"-" codec:"-"`
	PositionReports map[InstrumentID][]PositionStatusReport `json:"-" codec:"-"`
}

func NewExecutionMassStatus(client ClientID, account AccountID, venue Venue, tsInit UnixNanos) *ExecutionMassStatus {
	return &ExecutionMassStatus{
		ClientID:        client,
		AccountID:       account,
		Venue:           venue,
		ReportID:        NewUUID4(),
		TsInit:          tsInit,
		OrderReports:    make(map[VenueOrderID]OrderStatusReport),
		FillReports:     make(map[VenueOrderID][]FillReport),
		PositionReports: make(map[InstrumentID][]PositionStatusReport),
	}
}

func (m *ExecutionMassStatus) AddOrderReports(reports ...OrderStatusReport) {
	for _, r := range reports {
		m.OrderReports[r.VenueOrderID] = r
	}
}

func (m *ExecutionMassStatus) AddFillReports(reports ...FillReport) {
	for _, r := range reports {
		m.FillReports[r.VenueOrderID] = append(m.FillReports[r.VenueOrderID], r)
	}
}

func (m *ExecutionMassStatus) AddPositionReports(reports ...PositionStatusReport) {
	for _, r := range reports {
		m.PositionReports[r.InstrumentID] = append(m.PositionReports[r.InstrumentID], r)
	}
}
