package core

import (
	"tradecore/internal/model"
)

// SubmitOrder asks the exec engine to submit a new order. Header fields left
// empty are filled in by the engine.
type SubmitOrder struct {
	Order model.OrderInitialized
}

// CancelOrder cancels a working order.
type CancelOrder struct {
	ClientOrderID model.ClientOrderID
}

// ModifyOrder amends a working order. A zero Quantity keeps the current one;
// nil prices are left unchanged.
type ModifyOrder struct {
	ClientOrderID model.ClientOrderID
	Quantity      model.Quantity
	Price         *model.Price
	TriggerPrice  *model.Price
}

// CancelAllOrders cancels every working order of an instrument, or of every
// instrument when InstrumentID is empty.
type CancelAllOrders struct {
	InstrumentID model.InstrumentID
}

// CheckInflight runs the inflight order check.
type CheckInflight struct{}
