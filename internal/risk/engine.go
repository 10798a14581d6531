// Package risk runs pre-trade checks on new orders before they reach the
// execution engine.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
)

// Denial reasons carried by OrderDenied.
const (
	ReasonKillSwitch    = "KILL_SWITCH"
	ReasonRateLimit     = "RATE_LIMIT"
	ReasonMaxQty        = "MAX_ORDER_QTY"
	ReasonPriceBand     = "PRICE_BAND"
	ReasonMaxNotional   = "MAX_ORDER_NOTIONAL"
	ReasonPositionLimit = "POSITION_LIMIT"
	ReasonQuantity      = "INVALID_QUANTITY"
)

// Config defines static risk limits. Zero limits are disabled.
type Config struct {
	Version              uint16          `json:"version"`
	KillSwitch           bool            `json:"killSwitch"`
	MaxOrderQty          decimal.Decimal `json:"maxOrderQty"`
	MaxOrderNotional     decimal.Decimal `json:"maxOrderNotional"`
	MaxPosition          decimal.Decimal `json:"maxPosition"`
	OrderRateLimit       int             `json:"orderRateLimit"`
	OrderRateWindow      time.Duration   `json:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps"`
}

// StateView is what the engine knows about the instrument when the order arrives.
type StateView struct {
	// Position is the signed net quantity of the instrument.
	Position       decimal.Decimal
	ReferencePrice model.Price
	HasReference   bool
	Now            model.UnixNanos
}

// Decision is the result of Evaluate. Reason is empty when the order is allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Engine evaluates orders against Config. It keeps the order rate window and is
// owned by the engine goroutine.
type Engine struct {
	cfg             Config
	rateWindowStart model.UnixNanos
	rateCount       int
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// SetConfig replaces the limits and restarts the order rate window. A config
// with a version below the current one is stale and ignored; version 0 always
// applies.
func (e *Engine) SetConfig(cfg Config) bool {
	if cfg.Version != 0 && cfg.Version < e.cfg.Version {
		return false
	}
	e.cfg = cfg
	e.rateWindowStart = 0
	e.rateCount = 0
	return true
}

// Evaluate checks a new order. Checks run in a fixed order and the first
// failure wins.
func (e *Engine) Evaluate(o model.OrderInitialized, view StateView) Decision {
	if e.cfg.KillSwitch {
		return deny(ReasonKillSwitch)
	}
	if !o.Quantity.IsPositive() {
		return deny(ReasonQuantity)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		window := model.UnixNanos(e.cfg.OrderRateWindow)
		if e.rateWindowStart == 0 || view.Now-e.rateWindowStart >= window {
			e.rateWindowStart = view.Now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(ReasonRateLimit)
		}
	}

	qty := o.Quantity.Decimal()
	if e.cfg.MaxOrderQty.IsPositive() && qty.GreaterThan(e.cfg.MaxOrderQty) {
		return deny(ReasonMaxQty)
	}

	price, hasPrice := orderPrice(o, view)
	if e.cfg.MaxPriceDeviationBps > 0 && o.OrderType == enum.OrderTypeLimit && o.Price != nil && view.HasReference {
		ref := view.ReferencePrice.Decimal()
		if ref.IsPositive() {
			diff := o.Price.Decimal().Sub(ref).Abs()
			limit := ref.Mul(decimal.NewFromInt(e.cfg.MaxPriceDeviationBps)).Div(decimal.NewFromInt(10_000))
			if diff.GreaterThan(limit) {
				return deny(ReasonPriceBand)
			}
		}
	}

	if e.cfg.MaxOrderNotional.IsPositive() && hasPrice {
		if price.Mul(qty).GreaterThan(e.cfg.MaxOrderNotional) {
			return deny(ReasonMaxNotional)
		}
	}

	if e.cfg.MaxPosition.IsPositive() {
		next := view.Position
		switch o.Side {
		case enum.OrderSideBuy:
			next = next.Add(qty)
		case enum.OrderSideSell:
			next = next.Sub(qty)
		}
		if next.Abs().GreaterThan(e.cfg.MaxPosition) && next.Abs().GreaterThan(view.Position.Abs()) {
			return deny(ReasonPositionLimit)
		}
	}
	return allow()
}

// orderPrice is the price a notional check uses: the limit price, else the
// trigger price, else the reference price.
func orderPrice(o model.OrderInitialized, view StateView) (decimal.Decimal, bool) {
	switch {
	case o.Price != nil:
		return o.Price.Decimal(), true
	case o.TriggerPrice != nil:
		return o.TriggerPrice.Decimal(), true
	case view.HasReference:
		return view.ReferencePrice.Decimal(), true
	default:
		return decimal.Zero, false
	}
}
