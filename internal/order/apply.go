package order

import (
	"slices"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

type transitionKey struct {
	from enum.OrderStatus
	kind enum.OrderEventKind
}

// restorePrevious marks transitions that return the order to its status before the
// pending request.
const restorePrevious enum.OrderStatus = 0

var transitions = map[transitionKey]enum.OrderStatus{
	{enum.OrderStatusInitialized, enum.OrderEventDenied}:    enum.OrderStatusDenied,
	{enum.OrderStatusInitialized, enum.OrderEventEmulated}:  enum.OrderStatusEmulated,
	{enum.OrderStatusInitialized, enum.OrderEventReleased}:  enum.OrderStatusReleased,
	{enum.OrderStatusInitialized, enum.OrderEventSubmitted}: enum.OrderStatusSubmitted,
	// external orders discovered through reconciliation
	{enum.OrderStatusInitialized, enum.OrderEventRejected}:  enum.OrderStatusRejected,
	{enum.OrderStatusInitialized, enum.OrderEventAccepted}:  enum.OrderStatusAccepted,
	{enum.OrderStatusInitialized, enum.OrderEventCanceled}:  enum.OrderStatusCanceled,
	{enum.OrderStatusInitialized, enum.OrderEventExpired}:   enum.OrderStatusExpired,
	{enum.OrderStatusInitialized, enum.OrderEventTriggered}: enum.OrderStatusTriggered,

	{enum.OrderStatusEmulated, enum.OrderEventCanceled}: enum.OrderStatusCanceled,
	{enum.OrderStatusEmulated, enum.OrderEventExpired}:  enum.OrderStatusExpired,
	{enum.OrderStatusEmulated, enum.OrderEventReleased}: enum.OrderStatusReleased,

	{enum.OrderStatusReleased, enum.OrderEventSubmitted}: enum.OrderStatusSubmitted,
	{enum.OrderStatusReleased, enum.OrderEventDenied}:    enum.OrderStatusDenied,
	{enum.OrderStatusReleased, enum.OrderEventCanceled}:  enum.OrderStatusCanceled,

	{enum.OrderStatusSubmitted, enum.OrderEventPendingUpdate}: enum.OrderStatusPendingUpdate,
	{enum.OrderStatusSubmitted, enum.OrderEventPendingCancel}: enum.OrderStatusPendingCancel,
	{enum.OrderStatusSubmitted, enum.OrderEventRejected}:      enum.OrderStatusRejected,
	{enum.OrderStatusSubmitted, enum.OrderEventCanceled}:      enum.OrderStatusCanceled,
	{enum.OrderStatusSubmitted, enum.OrderEventAccepted}:      enum.OrderStatusAccepted,
	{enum.OrderStatusSubmitted, enum.OrderEventFilled}:        enum.OrderStatusFilled,
	{enum.OrderStatusSubmitted, enum.OrderEventUpdated}:       enum.OrderStatusSubmitted,

	{enum.OrderStatusAccepted, enum.OrderEventRejected}:      enum.OrderStatusRejected,
	{enum.OrderStatusAccepted, enum.OrderEventPendingUpdate}: enum.OrderStatusPendingUpdate,
	{enum.OrderStatusAccepted, enum.OrderEventPendingCancel}: enum.OrderStatusPendingCancel,
	{enum.OrderStatusAccepted, enum.OrderEventCanceled}:      enum.OrderStatusCanceled,
	{enum.OrderStatusAccepted, enum.OrderEventTriggered}:     enum.OrderStatusTriggered,
	{enum.OrderStatusAccepted, enum.OrderEventExpired}:       enum.OrderStatusExpired,
	{enum.OrderStatusAccepted, enum.OrderEventFilled}:        enum.OrderStatusFilled,
	{enum.OrderStatusAccepted, enum.OrderEventUpdated}:       enum.OrderStatusAccepted,

	{enum.OrderStatusPendingUpdate, enum.OrderEventRejected}:       enum.OrderStatusRejected,
	{enum.OrderStatusPendingUpdate, enum.OrderEventAccepted}:       enum.OrderStatusAccepted,
	{enum.OrderStatusPendingUpdate, enum.OrderEventCanceled}:       enum.OrderStatusCanceled,
	{enum.OrderStatusPendingUpdate, enum.OrderEventExpired}:        enum.OrderStatusExpired,
	{enum.OrderStatusPendingUpdate, enum.OrderEventTriggered}:      enum.OrderStatusTriggered,
	{enum.OrderStatusPendingUpdate, enum.OrderEventPendingUpdate}:  enum.OrderStatusPendingUpdate,
	{enum.OrderStatusPendingUpdate, enum.OrderEventPendingCancel}:  enum.OrderStatusPendingCancel,
	{enum.OrderStatusPendingUpdate, enum.OrderEventFilled}:         enum.OrderStatusFilled,
	{enum.OrderStatusPendingUpdate, enum.OrderEventUpdated}:        restorePrevious,
	{enum.OrderStatusPendingUpdate, enum.OrderEventModifyRejected}: restorePrevious,

	{enum.OrderStatusPendingCancel, enum.OrderEventRejected}:       enum.OrderStatusRejected,
	{enum.OrderStatusPendingCancel, enum.OrderEventPendingCancel}:  enum.OrderStatusPendingCancel,
	{enum.OrderStatusPendingCancel, enum.OrderEventCanceled}:       enum.OrderStatusCanceled,
	{enum.OrderStatusPendingCancel, enum.OrderEventExpired}:        enum.OrderStatusExpired,
	{enum.OrderStatusPendingCancel, enum.OrderEventAccepted}:       enum.OrderStatusAccepted,
	{enum.OrderStatusPendingCancel, enum.OrderEventFilled}:         enum.OrderStatusFilled,
	{enum.OrderStatusPendingCancel, enum.OrderEventCancelRejected}: restorePrevious,

	{enum.OrderStatusTriggered, enum.OrderEventRejected}:      enum.OrderStatusRejected,
	{enum.OrderStatusTriggered, enum.OrderEventAccepted}:      enum.OrderStatusAccepted,
	{enum.OrderStatusTriggered, enum.OrderEventPendingUpdate}: enum.OrderStatusPendingUpdate,
	{enum.OrderStatusTriggered, enum.OrderEventPendingCancel}: enum.OrderStatusPendingCancel,
	{enum.OrderStatusTriggered, enum.OrderEventCanceled}:      enum.OrderStatusCanceled,
	{enum.OrderStatusTriggered, enum.OrderEventExpired}:       enum.OrderStatusExpired,
	{enum.OrderStatusTriggered, enum.OrderEventFilled}:        enum.OrderStatusFilled,
	{enum.OrderStatusTriggered, enum.OrderEventUpdated}:       enum.OrderStatusTriggered,

	{enum.OrderStatusPartiallyFilled, enum.OrderEventPendingUpdate}: enum.OrderStatusPendingUpdate,
	{enum.OrderStatusPartiallyFilled, enum.OrderEventPendingCancel}: enum.OrderStatusPendingCancel,
	{enum.OrderStatusPartiallyFilled, enum.OrderEventCanceled}:      enum.OrderStatusCanceled,
	{enum.OrderStatusPartiallyFilled, enum.OrderEventExpired}:       enum.OrderStatusExpired,
	{enum.OrderStatusPartiallyFilled, enum.OrderEventFilled}:        enum.OrderStatusFilled,
	{enum.OrderStatusPartiallyFilled, enum.OrderEventAccepted}:      enum.OrderStatusAccepted,
	{enum.OrderStatusPartiallyFilled, enum.OrderEventUpdated}:       enum.OrderStatusPartiallyFilled,
}

// CanTransition reports whether an event of kind is permitted in status from.
func CanTransition(from enum.OrderStatus, kind enum.OrderEventKind) bool {
	_, ok := transitions[transitionKey{from, kind}]
	return ok
}

// Apply validates ev against o and mutates o. Events are passed by value. On error o is
// left untouched.
func Apply(o *model.Order, ev model.OrderEvent) error {
	if o == nil || ev == nil {
		return exception.ErrNilInstance
	}
	h := ev.Header()
	if h.ClientOrderID != o.ClientOrderID {
		return errors.Wrap(exception.ErrInvalidOrderEvent, "client order id mismatch").
			With("order", o.ClientOrderID.String()).With("event", h.ClientOrderID.String())
	}
	if !o.StrategyID.IsEmpty() && h.StrategyID != o.StrategyID {
		return errors.Wrap(exception.ErrInvalidOrderEvent, "strategy id mismatch").
			With("order", o.ClientOrderID.String()).With("strategy", h.StrategyID.String())
	}
	if o.HasSeen(h.EventID) {
		return errors.Wrap(exception.ErrDuplicateEvent, "apply").
			With("order", o.ClientOrderID.String()).With("event_id", h.EventID.String())
	}
	if ev.Kind() == enum.OrderEventInitialized {
		return errors.Wrap(exception.ErrInvalidOrderEvent, "order already initialized").With("order", o.ClientOrderID.String())
	}
	if o.Status.IsTerminal() {
		return errors.Wrap(exception.ErrOrderTerminal, "apply").
			With("order", o.ClientOrderID.String()).With("status", o.Status.String()).With("event", ev.Kind().String())
	}

	next, ok := transitions[transitionKey{o.Status, ev.Kind()}]
	if !ok {
		return errors.Wrap(exception.ErrStatusTransitionInvalid, "apply").
			With("order", o.ClientOrderID.String()).With("from", o.Status.String()).With("event", ev.Kind().String())
	}
	if next == restorePrevious {
		next = o.PreviousStatus
		if !next.IsAvailable() {
			next = enum.OrderStatusAccepted
		}
	}

	if err := validate(o, ev); err != nil {
		return err
	}

	prev := o.Status
	switch e := ev.(type) {
	case model.OrderDenied:
		o.TsClosed = e.TsEvent
	case model.OrderSubmitted:
		o.AccountID = e.AccountID
		o.TsSubmitted = e.TsEvent
	case model.OrderRejected:
		setAccount(o, e.AccountID)
		o.TsClosed = e.TsEvent
	case model.OrderAccepted:
		setVenueOrderID(o, e.VenueOrderID)
		setAccount(o, e.AccountID)
		o.TsAccepted = e.TsEvent
	case model.OrderPendingUpdate:
		setVenueOrderID(o, e.VenueOrderID)
	case model.OrderPendingCancel:
		setVenueOrderID(o, e.VenueOrderID)
	case model.OrderUpdated:
		update(o, e)
	case model.OrderTriggered:
		setVenueOrderID(o, e.VenueOrderID)
	case model.OrderCanceled:
		setVenueOrderID(o, e.VenueOrderID)
		o.TsClosed = e.TsEvent
	case model.OrderExpired:
		setVenueOrderID(o, e.VenueOrderID)
		o.TsClosed = e.TsEvent
	case model.OrderFilled:
		next = fill(o, e)
	}

	// pending statuses remember where to return on rejection
	if next == enum.OrderStatusPendingUpdate || next == enum.OrderStatusPendingCancel {
		if prev != enum.OrderStatusPendingUpdate && prev != enum.OrderStatusPendingCancel {
			o.PreviousStatus = prev
		}
	} else {
		o.PreviousStatus = prev
	}
	o.Status = next
	o.Record(ev)
	return nil
}

func validate(o *model.Order, ev model.OrderEvent) error {
	switch e := ev.(type) {
	case model.OrderUpdated:
		if e.Price != nil && !o.OrderType.HasPrice() {
			return errors.Wrap(exception.ErrInvalidOrderEvent, "update price not allowed").
				With("order", o.ClientOrderID.String()).With("type", o.OrderType.String())
		}
		if e.TriggerPrice != nil && !o.OrderType.HasTriggerPrice() {
			return errors.Wrap(exception.ErrInvalidOrderEvent, "update trigger price not allowed").
				With("order", o.ClientOrderID.String()).With("type", o.OrderType.String())
		}
		if e.Quantity.IsPositive() && e.Quantity.Precision != o.Quantity.Precision {
			return errors.Wrap(exception.ErrPrecisionMismatch, "update quantity").With("order", o.ClientOrderID.String())
		}
		if e.Quantity.IsPositive() && e.Quantity.Less(o.FilledQty) {
			return errors.Wrap(exception.ErrInvalidOrderEvent, "update quantity below filled").
				With("order", o.ClientOrderID.String())
		}
	case model.OrderFilled:
		if !e.TradeID.IsEmpty() && slices.Contains(o.TradeIDs, e.TradeID) {
			return errors.Wrap(exception.ErrDuplicateEvent, "duplicate fill").
				With("order", o.ClientOrderID.String()).With("trade_id", e.TradeID.String())
		}
		if !e.LastQty.IsPositive() {
			return errors.Wrap(exception.ErrInvalidFill, "fill quantity").With("order", o.ClientOrderID.String())
		}
		if e.LastQty.Precision != o.Quantity.Precision {
			return errors.Wrap(exception.ErrPrecisionMismatch, "fill quantity").With("order", o.ClientOrderID.String())
		}
		if e.LastQty.Greater(o.LeavesQty) {
			return errors.Wrap(exception.ErrInvalidFill, "overfill").
				With("order", o.ClientOrderID.String()).With("leaves", o.LeavesQty.String()).With("last_qty", e.LastQty.String())
		}
	}
	return nil
}

func setVenueOrderID(o *model.Order, id model.VenueOrderID) {
	if o.VenueOrderID.IsEmpty() && !id.IsEmpty() {
		o.VenueOrderID = id
	}
}

func setAccount(o *model.Order, id model.AccountID) {
	if o.AccountID.IsEmpty() && !id.IsEmpty() {
		o.AccountID = id
	}
}

func update(o *model.Order, e model.OrderUpdated) {
	setVenueOrderID(o, e.VenueOrderID)
	if e.Quantity.IsPositive() {
		o.Quantity = e.Quantity
		leaves, err := e.Quantity.Sub(o.FilledQty)
		if err != nil {
			leaves = model.ZeroQuantity(e.Quantity.Precision)
		}
		o.LeavesQty = leaves
	}
	if e.Price != nil {
		px := *e.Price
		o.Price = &px
	}
	if e.TriggerPrice != nil {
		px := *e.TriggerPrice
		o.TriggerPrice = &px
	}
}

// fill applies an execution and returns PartiallyFilled or Filled.
func fill(o *model.Order, e model.OrderFilled) enum.OrderStatus {
	setVenueOrderID(o, e.VenueOrderID)
	setAccount(o, e.AccountID)
	if !e.PositionID.IsEmpty() {
		o.PositionID = e.PositionID
	}
	o.LastTradeID = e.TradeID
	o.TradeIDs = append(o.TradeIDs, e.TradeID)
	o.LiquiditySide = e.LiquiditySide

	prevFilled := o.FilledQty.Float64()
	last := e.LastQty.Float64()
	o.AvgPx = (o.AvgPx*prevFilled + e.LastPx.Float64()*last) / (prevFilled + last)

	// validate guarantees these cannot fail
	o.FilledQty, _ = o.FilledQty.Add(e.LastQty)
	o.LeavesQty, _ = o.LeavesQty.Sub(e.LastQty)

	if !e.Commission.IsZero() {
		code := e.Commission.Currency.Code
		if prev, ok := o.Commissions[code]; ok {
			if sum, err := prev.Add(e.Commission); err == nil {
				o.Commissions[code] = sum
			}
		} else {
			if o.Commissions == nil {
				o.Commissions = make(map[string]model.Money)
			}
			o.Commissions[code] = e.Commission
		}
	}
	if o.TsAccepted == 0 {
		o.TsAccepted = e.TsEvent
	}
	if o.LeavesQty.IsZero() {
		o.TsClosed = e.TsEvent
		return enum.OrderStatusFilled
	}
	return enum.OrderStatusPartiallyFilled
}
