// Package matching decides when resting orders become marketable against the
// current top of book.
package matching

import (
	"slices"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Handler receives an order the core decided to trigger or fill.
type Handler func(order PassiveOrder)

type optionalPrice struct {
	px model.Price
	ok bool
}

// Core is one instrument's matching state. It is driven from the engine goroutine
// and is not safe for concurrent use.
type Core struct {
	InstrumentID   model.InstrumentID
	PriceIncrement model.Price

	bid, ask, last optionalPrice

	isBidInit, isAskInit, isLastInit bool

	ordersBid []PassiveOrder
	ordersAsk []PassiveOrder

	triggerStopOrder Handler
	fillMarketOrder  Handler
	fillLimitOrder   Handler
}

func New(instrumentID model.InstrumentID, priceIncrement model.Price) *Core {
	return &Core{InstrumentID: instrumentID, PriceIncrement: priceIncrement}
}

func (c *Core) SetTriggerStopOrderHandler(h Handler) { c.triggerStopOrder = h }
func (c *Core) SetFillMarketOrderHandler(h Handler) { c.fillMarketOrder = h }
func (c *Core) SetFillLimitOrderHandler(h Handler) { c.fillLimitOrder = h }

func (c *Core) PricePrecision() uint8 {
	return c.PriceIncrement.Precision
}

func (c *Core) Bid() (model.Price, bool) { return c.bid.px, c.bid.ok }
func (c *Core) Ask() (model.Price, bool) { return c.ask.px, c.ask.ok }
func (c *Core) Last() (model.Price, bool) { return c.last.px, c.last.ok }

func (c *Core) IsBidInitialized() bool { return c.isBidInit }
func (c *Core) IsAskInitialized() bool { return c.isAskInit }
func (c *Core) IsLastInitialized() bool { return c.isLastInit }

// SetBidRaw stores the bid. It does not run matching.
func (c *Core) SetBidRaw(px model.Price) {
	c.bid = optionalPrice{px: px, ok: true}
	c.isBidInit = true
}

// SetAskRaw stores the ask. It does not run matching.
func (c *Core) SetAskRaw(px model.Price) {
	c.ask = optionalPrice{px: px, ok: true}
	c.isAskInit = true
}

// SetLastRaw stores the last trade price. It does not run matching.
func (c *Core) SetLastRaw(px model.Price) {
	c.last = optionalPrice{px: px, ok: true}
	c.isLastInit = true
}

// Reset clears prices and resting orders. Initialisation flags are kept.
func (c *Core) Reset() {
	c.bid, c.ask, c.last = optionalPrice{}, optionalPrice{}, optionalPrice{}
	c.ordersBid = c.ordersBid[:0]
	c.ordersAsk = c.ordersAsk[:0]
}

func (c *Core) Order(id model.ClientOrderID) (PassiveOrder, bool) {
	if i := indexOf(c.ordersBid, id); i >= 0 {
		return c.ordersBid[i], true
	}
	if i := indexOf(c.ordersAsk, id); i >= 0 {
		return c.ordersAsk[i], true
	}
	return PassiveOrder{}, false
}

func (c *Core) OrderExists(id model.ClientOrderID) bool {
	_, ok := c.Order(id)
	return ok
}

func (c *Core) OrdersBid() []PassiveOrder { return slices.Clone(c.ordersBid) }
func (c *Core) OrdersAsk() []PassiveOrder { return slices.Clone(c.ordersAsk) }

// Orders returns bids then asks, each in insertion order.
func (c *Core) Orders() []PassiveOrder {
	return slices.Concat(c.ordersBid, c.ordersAsk)
}

// AddOrder appends order to its side.
func (c *Core) AddOrder(order PassiveOrder) error {
	if order.InstrumentID != c.InstrumentID {
		return errors.Wrap(exception.ErrMatchingInstrument, "add order").
			With("core", c.InstrumentID).With("order", order.InstrumentID)
	}
	switch order.Side {
	case enum.OrderSideBuy:
		c.ordersBid = append(c.ordersBid, order)
	case enum.OrderSideSell:
		c.ordersAsk = append(c.ordersAsk, order)
	default:
		return errors.Wrap(exception.ErrInvalidArgument, "add order side").With("client_order_id", order.ClientOrderID)
	}
	return nil
}

// DeleteOrder removes the order with order's client order id.
func (c *Core) DeleteOrder(order PassiveOrder) error {
	side := &c.ordersAsk
	if order.Side == enum.OrderSideBuy {
		side = &c.ordersBid
	}
	i := indexOf(*side, order.ClientOrderID)
	if i < 0 {
		return errors.Wrap(exception.ErrOrderNotFound, "delete passive order").With("client_order_id", order.ClientOrderID)
	}
	*side = slices.Delete(*side, i, i+1)
	return nil
}

// UpdateOrder replaces the stored copy of an order in place, keeping its queue position.
func (c *Core) UpdateOrder(order PassiveOrder) error {
	side := c.ordersAsk
	if order.Side == enum.OrderSideBuy {
		side = c.ordersBid
	}
	i := indexOf(side, order.ClientOrderID)
	if i < 0 {
		return errors.Wrap(exception.ErrOrderNotFound, "update passive order").With("client_order_id", order.ClientOrderID)
	}
	side[i] = order
	return nil
}

// Iterate matches every resting order against the current prices. Each side is
// copied first so handlers may add or delete orders.
func (c *Core) Iterate() {
	c.IterateBids()
	c.IterateAsks()
}

func (c *Core) IterateBids() {
	for _, o := range slices.Clone(c.ordersBid) {
		c.MatchOrder(o)
	}
}

func (c *Core) IterateAsks() {
	for _, o := range slices.Clone(c.ordersAsk) {
		c.MatchOrder(o)
	}
}

func (c *Core) MatchOrder(order PassiveOrder) {
	switch order.Kind {
	case PassiveLimit:
		c.matchLimitOrder(order)
	case PassiveStop:
		c.matchStopOrder(order)
	}
}

// FillMarketOrder hands a marketable order straight to the market fill handler.
func (c *Core) FillMarketOrder(order PassiveOrder) {
	if c.fillMarketOrder != nil {
		c.fillMarketOrder(order)
	}
}

func (c *Core) matchLimitOrder(order PassiveOrder) {
	if c.IsLimitMatched(order.Side, order.LimitPx) && c.fillLimitOrder != nil {
		c.fillLimitOrder(order)
	}
}

func (c *Core) matchStopOrder(order PassiveOrder) {
	if order.IsTrailing() && !order.Activated {
		return
	}
	if c.IsStopMatched(order.Side, order.StopPx) && c.triggerStopOrder != nil {
		c.triggerStopOrder(order)
	}
}

// IsLimitMatched: a buy matches when ask <= price, a sell when bid >= price.
func (c *Core) IsLimitMatched(side enum.OrderSide, price model.Price) bool {
	switch side {
	case enum.OrderSideBuy:
		return c.ask.ok && c.ask.px.LessEqual(price)
	case enum.OrderSideSell:
		return c.bid.ok && c.bid.px.GreaterEqual(price)
	default:
		return false
	}
}

// IsStopMatched: a buy stop triggers when ask >= price, a sell stop when bid <= price.
func (c *Core) IsStopMatched(side enum.OrderSide, price model.Price) bool {
	switch side {
	case enum.OrderSideBuy:
		return c.ask.ok && c.ask.px.GreaterEqual(price)
	case enum.OrderSideSell:
		return c.bid.ok && c.bid.px.LessEqual(price)
	default:
		return false
	}
}

// IsTouchTriggered: a buy touches when ask <= trigger, a sell when bid >= trigger.
func (c *Core) IsTouchTriggered(side enum.OrderSide, trigger model.Price) bool {
	return c.IsLimitMatched(side, trigger)
}

func indexOf(orders []PassiveOrder, id model.ClientOrderID) int {
	return slices.IndexFunc(orders, func(o PassiveOrder) bool { return o.ClientOrderID == id })
}
