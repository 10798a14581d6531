package matching

import (
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// PassiveKind splits resting orders into the two matching families.
type PassiveKind uint8

const (
	PassiveLimit PassiveKind = iota + 1
	PassiveStop
)

func (k PassiveKind) String() string {
	switch k {
	case PassiveLimit:
		return "LIMIT"
	case PassiveStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// PassiveOrder is the matching view of an order resting on the book.
type PassiveOrder struct {
	ClientOrderID model.ClientOrderID
	InstrumentID  model.InstrumentID
	StrategyID    model.StrategyID
	Side          enum.OrderSide
	OrderType     enum.OrderType
	Kind          PassiveKind
	Quantity      model.Quantity
	// LimitPx is set for limit kinds.
	LimitPx model.Price
	// StopPx is the trigger price for stop kinds.
	StopPx model.Price
	// Activated only matters for trailing stops; they never match until it is set.
	Activated bool
}

// IsTrailing reports whether the order is a trailing stop variant.
func (p PassiveOrder) IsTrailing() bool {
	return p.OrderType.IsTrailing()
}

// Price returns the price the order is matched against.
func (p PassiveOrder) Price() model.Price {
	if p.Kind == PassiveStop {
		return p.StopPx
	}
	return p.LimitPx
}

// PassiveFromOrder classifies o. Limit and market-to-limit orders rest as limits, as
// do stop-limit and limit-if-touched orders once triggered. Every other trigger type
// rests as a stop. Market orders cannot rest.
func PassiveFromOrder(o *model.Order) (PassiveOrder, error) {
	p := PassiveOrder{
		ClientOrderID: o.ClientOrderID,
		InstrumentID:  o.InstrumentID,
		StrategyID:    o.StrategyID,
		Side:          o.Side,
		OrderType:     o.OrderType,
		Quantity:      o.LeavesQty,
	}

	triggered := o.Status == enum.OrderStatusTriggered ||
		(o.Status == enum.OrderStatusPartiallyFilled && o.PreviousStatus == enum.OrderStatusTriggered)

	switch {
	case o.OrderType == enum.OrderTypeLimit || o.OrderType == enum.OrderTypeMarketToLimit,
		o.OrderType.HasPrice() && o.OrderType.HasTriggerPrice() && triggered:
		if o.Price == nil {
			return PassiveOrder{}, errors.Wrap(exception.ErrUnsupportedPassive, "limit without price").
				With("client_order_id", o.ClientOrderID)
		}
		p.Kind = PassiveLimit
		p.LimitPx = *o.Price
		p.Activated = true
	case o.OrderType.HasTriggerPrice():
		p.Kind = PassiveStop
		if o.Price != nil {
			p.LimitPx = *o.Price
		}
		switch {
		case o.TriggerPrice != nil:
			p.StopPx = *o.TriggerPrice
			p.Activated = true
		case !o.OrderType.IsTrailing():
			return PassiveOrder{}, errors.Wrap(exception.ErrUnsupportedPassive, "stop without trigger price").
				With("client_order_id", o.ClientOrderID)
		}
	default:
		return PassiveOrder{}, errors.Wrap(exception.ErrUnsupportedPassive, "order type cannot rest").
			With("client_order_id", o.ClientOrderID).With("type", o.OrderType)
	}
	return p, nil
}
