package core

import (
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/matching"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/risk"
	"tradecore/internal/state"
)

// Rejection reasons of the simulated venue.
const (
	ReasonUnknownInstrument = "UNKNOWN_INSTRUMENT"
	ReasonNoMarket          = "NO_MARKET"
	ReasonMarketHalted      = "MARKET_HALTED"
	ReasonPostOnly          = "POST_ONLY_WOULD_TAKE"
	ReasonReduceOnly        = "REDUCE_ONLY_WOULD_INCREASE"
	ReasonUnsupported       = "UNSUPPORTED_ORDER"
	ReasonModifyInvalid     = "INVALID_MODIFY"
)

func (e *Engine) executeCommand(_ string, msg any) {
	switch cmd := msg.(type) {
	case SubmitOrder:
		e.submit(cmd.Order)
	case CancelOrder:
		e.cancel(cmd.ClientOrderID)
	case ModifyOrder:
		e.modify(cmd)
	case CancelAllOrders:
		e.cancelAll(cmd.InstrumentID)
	case CheckInflight:
		e.checkInflight()
	default:
		logs.Warnf("core: exec engine ignored %T", msg)
	}
}

// executeRisk swaps the pre-trade limits, e.g. after a config reload.
func (e *Engine) executeRisk(_ string, msg any) {
	cfg, ok := msg.(risk.Config)
	if !ok {
		logs.Warnf("core: risk engine ignored %T", msg)
		return
	}
	if !e.risk.SetConfig(cfg) {
		logs.Warnf("core: stale risk limits version %d ignored, current %d", cfg.Version, e.risk.Config().Version)
		return
	}
	logs.Infof("core: risk limits version %d applied, kill switch %v", cfg.Version, cfg.KillSwitch)
}

// addVenue creates the matching core of inst and wires its callbacks.
func (e *Engine) addVenue(inst *model.Instrument) *venue {
	if v, ok := e.venues[inst.ID]; ok {
		v.inst = inst
		return v
	}
	v := &venue{inst: inst, core: matching.New(inst.ID, inst.PriceIncrement)}
	v.core.SetFillLimitOrderHandler(func(p matching.PassiveOrder) { e.fillLimit(v, p) })
	v.core.SetFillMarketOrderHandler(func(p matching.PassiveOrder) { e.fillMarket(v, p) })
	v.core.SetTriggerStopOrderHandler(func(p matching.PassiveOrder) { e.triggerStop(v, p) })
	e.venues[inst.ID] = v
	return v
}

// touch is the price an order of side takes: the ask for buys, the bid for sells.
func (v *venue) touch(side enum.OrderSide) (model.Price, bool) {
	if side == enum.OrderSideBuy {
		return v.core.Ask()
	}
	return v.core.Bid()
}

func (v *venue) reference() (model.Price, bool) {
	if px, ok := v.core.Last(); ok {
		return px, true
	}
	if px, ok := v.core.Bid(); ok {
		return px, true
	}
	return v.core.Ask()
}

func (e *Engine) submit(init model.OrderInitialized) {
	now := e.clock.Now()
	if init.TraderID.IsEmpty() {
		init.TraderID = e.cfg.TraderID
	}
	if init.EventID == (model.UUID4{}) {
		init.EventID = model.NewUUID4()
	}
	if init.TsEvent == 0 {
		init.TsEvent = now
	}
	if init.TsInit == 0 {
		init.TsInit = now
	}

	e.publishEvent(init)
	o, ok := e.orders.Order(init.ClientOrderID)
	if !ok || o.Status != enum.OrderStatusInitialized || o.LastEvent().Header().EventID != init.EventID {
		return
	}

	v, ok := e.venues[o.InstrumentID]
	if !ok {
		e.deny(o, ReasonUnknownInstrument)
		return
	}
	if err := v.inst.CheckQuantity(o.Quantity); err != nil {
		logs.Debugf("core: %s quantity denied, err: %+v", o.ClientOrderID, err)
		e.deny(o, risk.ReasonQuantity)
		return
	}
	ref, hasRef := v.reference()
	decision := e.risk.Evaluate(init, risk.StateView{
		Position:       decimal.NewFromFloat(e.positions.NetQty(o.InstrumentID)),
		ReferencePrice: ref,
		HasReference:   hasRef,
		Now:            now,
	})
	if !decision.Allowed {
		e.deny(o, decision.Reason)
		return
	}

	e.publishEvent(model.OrderSubmitted{EventHeader: e.header(o), AccountID: e.cfg.AccountID})
	switch {
	case v.halted:
		e.reject(o, ReasonMarketHalted)
		return
	case o.ReduceOnly && !e.reduces(o):
		e.reject(o, ReasonReduceOnly)
		return
	}

	if o.OrderType == enum.OrderTypeMarket || (o.OrderType == enum.OrderTypeMarketToLimit && o.Price == nil) {
		if _, ok := v.touch(o.Side); !ok {
			e.reject(o, ReasonNoMarket)
			return
		}
		e.accept(o)
		v.core.FillMarketOrder(marketPassive(o))
		return
	}

	p, err := matching.PassiveFromOrder(o)
	if err != nil {
		logs.Warnf("core: %s cannot rest, err: %+v", o.ClientOrderID, err)
		e.reject(o, ReasonUnsupported)
		return
	}
	if o.PostOnly && p.Kind == matching.PassiveLimit && v.core.IsLimitMatched(o.Side, p.LimitPx) {
		e.reject(o, ReasonPostOnly)
		return
	}
	e.accept(o)
	if err := v.core.AddOrder(p); err != nil {
		logs.Errorf("core: %s not added to matching core, err: %+v", o.ClientOrderID, err)
		return
	}

	e.taking = o.ClientOrderID
	v.core.MatchOrder(p)
	e.taking = model.ClientOrderID{}

	if o.IsOpen() && (o.TimeInForce == enum.TimeInForceIOC || o.TimeInForce == enum.TimeInForceFOK) {
		e.publishEvent(model.OrderCanceled{EventHeader: e.header(o), VenueOrderID: o.VenueOrderID, AccountID: o.AccountID})
	}
}

// reduces reports whether o only shrinks the net position of its instrument.
func (e *Engine) reduces(o *model.Order) bool {
	net := e.positions.NetQty(o.InstrumentID)
	qty := o.Quantity.Float64()
	switch o.Side {
	case enum.OrderSideBuy:
		return net < 0 && qty <= -net
	case enum.OrderSideSell:
		return net > 0 && qty <= net
	default:
		return false
	}
}

func marketPassive(o *model.Order) matching.PassiveOrder {
	return matching.PassiveOrder{
		ClientOrderID: o.ClientOrderID,
		InstrumentID:  o.InstrumentID,
		StrategyID:    o.StrategyID,
		Side:          o.Side,
		OrderType:     o.OrderType,
		Quantity:      o.LeavesQty,
		Activated:     true,
	}
}

func (e *Engine) accept(o *model.Order) {
	e.venueSeq++
	vid := model.NewVenueOrderID("V-" + e.clock.Now().Hex() + "-" + strconv.FormatUint(e.venueSeq, 10))
	e.publishEvent(model.OrderAccepted{EventHeader: e.header(o), VenueOrderID: vid, AccountID: e.cfg.AccountID})
}

func (e *Engine) deny(o *model.Order, reason string) {
	logs.Infof("core: %s denied, reason: %s", o.ClientOrderID, reason)
	e.publishEvent(model.OrderDenied{EventHeader: e.header(o), Reason: reason})
}

func (e *Engine) reject(o *model.Order, reason string) {
	logs.Infof("core: %s rejected, reason: %s", o.ClientOrderID, reason)
	e.publishEvent(model.OrderRejected{EventHeader: e.header(o), AccountID: e.cfg.AccountID, Reason: reason})
}

// working returns the order of p if it can still trade. A stale passive order
// is dropped from the core.
func (e *Engine) working(v *venue, p matching.PassiveOrder) (*model.Order, bool) {
	if v.core.OrderExists(p.ClientOrderID) {
		if err := v.core.DeleteOrder(p); err != nil {
			logs.Warnf("core: delete %s from matching core, err: %+v", p.ClientOrderID, err)
		}
	}
	o, ok := e.orders.Order(p.ClientOrderID)
	if !ok || !o.IsOpen() {
		return nil, false
	}
	return o, true
}

func (e *Engine) fillLimit(v *venue, p matching.PassiveOrder) {
	o, ok := e.working(v, p)
	if !ok {
		return
	}
	liquidity := enum.LiquiditySideMaker
	if e.taking == o.ClientOrderID {
		liquidity = enum.LiquiditySideTaker
	}
	e.fill(v, o, p.LimitPx, liquidity)
}

func (e *Engine) fillMarket(v *venue, p matching.PassiveOrder) {
	o, ok := e.working(v, p)
	if !ok {
		return
	}
	px, ok := v.touch(o.Side)
	if !ok {
		e.publishEvent(model.OrderCanceled{EventHeader: e.header(o), VenueOrderID: o.VenueOrderID, AccountID: o.AccountID})
		return
	}
	e.fill(v, o, px, enum.LiquiditySideTaker)
}

// triggerStop fires a stop. Orders with a limit price rest again as limits;
// the rest fill at the touch.
func (e *Engine) triggerStop(v *venue, p matching.PassiveOrder) {
	o, ok := e.working(v, p)
	if !ok {
		return
	}
	e.publishEvent(model.OrderTriggered{EventHeader: e.header(o), VenueOrderID: o.VenueOrderID, AccountID: o.AccountID})
	if o.Status != enum.OrderStatusTriggered {
		return
	}

	if !o.OrderType.HasPrice() {
		v.core.FillMarketOrder(marketPassive(o))
		return
	}
	limit, err := matching.PassiveFromOrder(o)
	if err != nil {
		logs.Warnf("core: triggered %s cannot rest, err: %+v", o.ClientOrderID, err)
		return
	}
	if err := v.core.AddOrder(limit); err != nil {
		logs.Errorf("core: triggered %s not added to matching core, err: %+v", o.ClientOrderID, err)
		return
	}
	e.taking = o.ClientOrderID
	v.core.MatchOrder(limit)
	e.taking = model.ClientOrderID{}
}

// fill executes the whole leaves quantity of o at px.
func (e *Engine) fill(v *venue, o *model.Order, px model.Price, liquidity enum.LiquiditySide) {
	e.tradeSeq++
	e.publishEvent(model.OrderFilled{
		EventHeader:   e.header(o),
		VenueOrderID:  o.VenueOrderID,
		AccountID:     o.AccountID,
		TradeID:       model.NewTradeID("T-" + o.VenueOrderID.String() + "-" + strconv.FormatUint(e.tradeSeq, 10)),
		PositionID:    state.NettingPositionID(o.InstrumentID, o.StrategyID),
		Side:          o.Side,
		OrderType:     o.OrderType,
		LastQty:       o.LeavesQty,
		LastPx:        px,
		Currency:      v.inst.QuoteCurrency,
		Commission:    commission(v.inst, px, o.LeavesQty, liquidity),
		LiquiditySide: liquidity,
	})
}

// commission charges the maker or taker fee on the notional in the quote currency.
func commission(inst *model.Instrument, px model.Price, qty model.Quantity, liquidity enum.LiquiditySide) model.Money {
	zero := model.ZeroMoney(inst.QuoteCurrency)
	fee := inst.TakerFee
	if liquidity == enum.LiquiditySideMaker {
		fee = inst.MakerFee
	}
	if fee.IsZero() {
		return zero
	}
	notional, err := model.Notional(px, qty, inst.QuoteCurrency)
	if err != nil {
		logs.Warnf("core: %s notional, err: %+v", inst.ID, err)
		return zero
	}
	m, err := model.MoneyFromDecimal(notional.Decimal().Mul(fee), inst.QuoteCurrency)
	if err != nil {
		logs.Warnf("core: %s commission, err: %+v", inst.ID, err)
		return zero
	}
	return m
}

func (e *Engine) cancel(id model.ClientOrderID) {
	o, ok := e.orders.Order(id)
	if !ok {
		logs.Warnf("core: cancel of unknown order %s", id)
		return
	}
	if !o.IsOpen() {
		logs.Warnf("core: cancel of %s in status %s ignored", id, o.Status)
		return
	}
	e.publishEvent(model.OrderPendingCancel{EventHeader: e.header(o), VenueOrderID: o.VenueOrderID, AccountID: o.AccountID})
	e.publishEvent(model.OrderCanceled{EventHeader: e.header(o), VenueOrderID: o.VenueOrderID, AccountID: o.AccountID})
}

func (e *Engine) cancelAll(instrument model.InstrumentID) {
	for _, o := range e.orders.Open() {
		if instrument.IsEmpty() || o.InstrumentID == instrument {
			e.cancel(o.ClientOrderID)
		}
	}
}

func (e *Engine) modify(cmd ModifyOrder) {
	o, ok := e.orders.Order(cmd.ClientOrderID)
	if !ok {
		logs.Warnf("core: modify of unknown order %s", cmd.ClientOrderID)
		return
	}
	if !o.IsOpen() {
		logs.Warnf("core: modify of %s in status %s ignored", o.ClientOrderID, o.Status)
		return
	}

	qty := cmd.Quantity
	if qty.IsZero() {
		qty = o.Quantity
	}
	e.publishEvent(model.OrderPendingUpdate{EventHeader: e.header(o), VenueOrderID: o.VenueOrderID, AccountID: o.AccountID})
	if !qty.Greater(o.FilledQty) {
		e.publishEvent(model.OrderModifyRejected{EventHeader: e.header(o), VenueOrderID: o.VenueOrderID, AccountID: o.AccountID, Reason: ReasonModifyInvalid})
		return
	}
	e.publishEvent(model.OrderUpdated{
		EventHeader:  e.header(o),
		VenueOrderID: o.VenueOrderID,
		AccountID:    o.AccountID,
		Quantity:     qty,
		Price:        cmd.Price,
		TriggerPrice: cmd.TriggerPrice,
	})
	if o.Status == enum.OrderStatusPendingUpdate {
		e.publishEvent(model.OrderModifyRejected{EventHeader: e.header(o), VenueOrderID: o.VenueOrderID, AccountID: o.AccountID, Reason: ReasonModifyInvalid})
		return
	}

	v, ok := e.venues[o.InstrumentID]
	if !ok || !v.core.OrderExists(o.ClientOrderID) {
		return
	}
	p, err := matching.PassiveFromOrder(o)
	if err != nil {
		logs.Warnf("core: modified %s cannot rest, err: %+v", o.ClientOrderID, err)
		return
	}
	if err := v.core.UpdateOrder(p); err != nil {
		logs.Warnf("core: modified %s not updated in matching core, err: %+v", o.ClientOrderID, err)
		return
	}
	v.core.MatchOrder(p)
}

func (e *Engine) checkInflight() {
	events, query := e.reconciler.CheckInflight(e.cache)
	for _, ev := range events {
		e.publishEvent(ev)
	}
	for _, id := range query {
		logs.Infof("core: %s still awaiting a venue response", id)
	}
}

// executeReconcile applies a venue mass status: the reports are reconciled
// against the cached orders and the resulting events are published.
func (e *Engine) executeReconcile(_ string, msg any) {
	mass, ok := msg.(*model.ExecutionMassStatus)
	if !ok {
		logs.Warnf("core: reconcile ignored %T", msg)
		return
	}
	res := e.reconciler.AdjustMassStatus(mass, e.cache)
	events := e.reconciler.MassStatusEvents(res, e.cache)
	logs.Infof("core: mass status from %s reconciled, orders %d, events %d", mass.ClientID, len(res.OrderReports), len(events))
	for _, ev := range events {
		e.publishEvent(ev)
	}
}
