package enum

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

// Opposite returns the other side. Unavailable values are returned unchanged.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return s
	}
}

// Sign is +1 for buys and -1 for sells.
func (s OrderSide) Sign() int64 {
	switch s {
	case OrderSideBuy:
		return 1
	case OrderSideSell:
		return -1
	default:
		return 0
	}
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "NO_ORDER_SIDE"
	}
}

// OrderType market, limit, stop and if-touched variants
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStopMarket
	OrderTypeStopLimit
	OrderTypeMarketToLimit
	OrderTypeMarketIfTouched
	OrderTypeLimitIfTouched
	OrderTypeTrailingStopMarket
	OrderTypeTrailingStopLimit
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

// HasPrice reports whether orders of this type carry a limit price.
func (t OrderType) HasPrice() bool {
	switch t {
	case OrderTypeLimit, OrderTypeStopLimit, OrderTypeLimitIfTouched, OrderTypeTrailingStopLimit, OrderTypeMarketToLimit:
		return true
	default:
		return false
	}
}

// HasTriggerPrice reports whether orders of this type carry a trigger price.
func (t OrderType) HasTriggerPrice() bool {
	switch t {
	case OrderTypeStopMarket, OrderTypeStopLimit, OrderTypeMarketIfTouched, OrderTypeLimitIfTouched,
		OrderTypeTrailingStopMarket, OrderTypeTrailingStopLimit:
		return true
	default:
		return false
	}
}

func (t OrderType) IsTrailing() bool {
	return t == OrderTypeTrailingStopMarket || t == OrderTypeTrailingStopLimit
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStopMarket:
		return "STOP_MARKET"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	case OrderTypeMarketToLimit:
		return "MARKET_TO_LIMIT"
	case OrderTypeMarketIfTouched:
		return "MARKET_IF_TOUCHED"
	case OrderTypeLimitIfTouched:
		return "LIMIT_IF_TOUCHED"
	case OrderTypeTrailingStopMarket:
		return "TRAILING_STOP_MARKET"
	case OrderTypeTrailingStopLimit:
		return "TRAILING_STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// TimeInForce GTC, IOC, FOK, GTD, DAY, AT_THE_OPEN, AT_THE_CLOSE
type TimeInForce uint8

const (
	_time_in_force_beg TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
	TimeInForceGTD
	TimeInForceDay
	TimeInForceAtTheOpen
	TimeInForceAtTheClose
	_time_in_force_end
)

func (t TimeInForce) IsAvailable() bool {
	return t > _time_in_force_beg && t < _time_in_force_end
}

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceGTC:
		return "GTC"
	case TimeInForceIOC:
		return "IOC"
	case TimeInForceFOK:
		return "FOK"
	case TimeInForceGTD:
		return "GTD"
	case TimeInForceDay:
		return "DAY"
	case TimeInForceAtTheOpen:
		return "AT_THE_OPEN"
	case TimeInForceAtTheClose:
		return "AT_THE_CLOSE"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus follows the order lifecycle from Initialized to a terminal status.
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusInitialized
	OrderStatusDenied
	OrderStatusEmulated
	OrderStatusReleased
	OrderStatusSubmitted
	OrderStatusAccepted
	OrderStatusRejected
	OrderStatusCanceled
	OrderStatusExpired
	OrderStatusTriggered
	OrderStatusPendingUpdate
	OrderStatusPendingCancel
	OrderStatusPartiallyFilled
	OrderStatusFilled
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

// IsTerminal reports whether no further events may be applied.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDenied, OrderStatusRejected, OrderStatusCanceled, OrderStatusExpired, OrderStatusFilled:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the order is working at the venue.
func (s OrderStatus) IsOpen() bool {
	switch s {
	case OrderStatusAccepted, OrderStatusTriggered, OrderStatusPendingUpdate, OrderStatusPendingCancel,
		OrderStatusPartiallyFilled:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusInitialized:
		return "INITIALIZED"
	case OrderStatusDenied:
		return "DENIED"
	case OrderStatusEmulated:
		return "EMULATED"
	case OrderStatusReleased:
		return "RELEASED"
	case OrderStatusSubmitted:
		return "SUBMITTED"
	case OrderStatusAccepted:
		return "ACCEPTED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusCanceled:
		return "CANCELED"
	case OrderStatusExpired:
		return "EXPIRED"
	case OrderStatusTriggered:
		return "TRIGGERED"
	case OrderStatusPendingUpdate:
		return "PENDING_UPDATE"
	case OrderStatusPendingCancel:
		return "PENDING_CANCEL"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	default:
		return "UNKNOWN"
	}
}

// LiquiditySide maker, taker
type LiquiditySide uint8

const (
	LiquiditySideNone LiquiditySide = iota
	LiquiditySideMaker
	LiquiditySideTaker
)

func (s LiquiditySide) String() string {
	switch s {
	case LiquiditySideMaker:
		return "MAKER"
	case LiquiditySideTaker:
		return "TAKER"
	default:
		return "NO_LIQUIDITY_SIDE"
	}
}

// TriggerType selects the price used to evaluate stop and touch conditions.
type TriggerType uint8

const (
	TriggerTypeDefault TriggerType = iota
	TriggerTypeBidAsk
	TriggerTypeLastPrice
	TriggerTypeMarkPrice
	TriggerTypeIndexPrice
)
