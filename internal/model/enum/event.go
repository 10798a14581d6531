package enum

// OrderEventKind tags each order lifecycle event.
type OrderEventKind uint8

const (
	_order_event_kind_beg OrderEventKind = iota
	OrderEventInitialized
	OrderEventDenied
	OrderEventEmulated
	OrderEventReleased
	OrderEventSubmitted
	OrderEventRejected
	OrderEventAccepted
	OrderEventPendingUpdate
	OrderEventPendingCancel
	OrderEventModifyRejected
	OrderEventCancelRejected
	OrderEventUpdated
	OrderEventTriggered
	OrderEventCanceled
	OrderEventExpired
	OrderEventFilled
	_order_event_kind_end
)

func (k OrderEventKind) IsAvailable() bool {
	return k > _order_event_kind_beg && k < _order_event_kind_end
}

var orderEventKindNames = [...]string{
	OrderEventInitialized:    "OrderInitialized",
	OrderEventDenied:         "OrderDenied",
	OrderEventEmulated:       "OrderEmulated",
	OrderEventReleased:       "OrderReleased",
	OrderEventSubmitted:      "OrderSubmitted",
	OrderEventRejected:       "OrderRejected",
	OrderEventAccepted:       "OrderAccepted",
	OrderEventPendingUpdate:  "OrderPendingUpdate",
	OrderEventPendingCancel:  "OrderPendingCancel",
	OrderEventModifyRejected: "OrderModifyRejected",
	OrderEventCancelRejected: "OrderCancelRejected",
	OrderEventUpdated:        "OrderUpdated",
	OrderEventTriggered:      "OrderTriggered",
	OrderEventCanceled:       "OrderCanceled",
	OrderEventExpired:        "OrderExpired",
	OrderEventFilled:         "OrderFilled",
}

func (k OrderEventKind) String() string {
	if !k.IsAvailable() {
		return "OrderEventUnknown"
	}
	return orderEventKindNames[k]
}
