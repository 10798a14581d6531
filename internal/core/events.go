package core

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// onOrderEvent applies every order event published on the bus, whether the
// engine simulated it or an adapter reported it. Fills also update positions,
// including fills of orders this engine does not know, e.g. during replay.
func (e *Engine) onOrderEvent(topic string, msg any) {
	ev, ok := msg.(model.OrderEvent)
	if !ok {
		return
	}

	if init, ok := ev.(model.OrderInitialized); ok {
		e.addOrder(init)
		return
	}

	o, err := e.orders.Apply(ev)
	switch {
	case err == nil:
		e.metrics.ObserveOrderEvent(ev.Kind())
		if err := e.cache.UpdateOrder(e.ctx, o); err != nil {
			logs.Errorf("core: update order %s in cache, err: %+v", o.ClientOrderID, err)
		}
		e.afterApply(o, ev)
	case errors.Is(err, exception.ErrOrderNotFound):
		logs.Debugf("core: %s on %s for unknown order %s", ev.Kind(), topic, ev.Header().ClientOrderID)
	case errors.Is(err, exception.ErrDuplicateEvent):
		logs.Debugf("core: duplicate %s for %s dropped", ev.Kind(), ev.Header().ClientOrderID)
		return
	default:
		logs.Warnf("core: %s on %s not applied, err: %+v", ev.Kind(), topic, err)
		return
	}

	if fill, ok := ev.(model.OrderFilled); ok {
		e.applyFill(fill)
	}
}

func (e *Engine) addOrder(init model.OrderInitialized) {
	o, err := e.orders.Add(init)
	if err != nil {
		logs.Warnf("core: order %s not added, err: %+v", init.ClientOrderID, err)
		return
	}
	e.metrics.ObserveOrderEvent(enum.OrderEventInitialized)
	if err := e.cache.AddOrder(e.ctx, o); err != nil && !errors.Is(err, exception.ErrAlreadyExists) {
		logs.Errorf("core: add order %s to cache, err: %+v", o.ClientOrderID, err)
	}
}

// afterApply keeps inflight tracking and matching cores in step with o.
func (e *Engine) afterApply(o *model.Order, ev model.OrderEvent) {
	switch ev.Kind() {
	case enum.OrderEventSubmitted, enum.OrderEventPendingUpdate, enum.OrderEventPendingCancel:
		e.reconciler.RegisterInflight(o.ClientOrderID)
	default:
		if !o.IsInflight() {
			e.reconciler.ClearInflight(o.ClientOrderID)
		}
	}

	if !o.IsTerminal() {
		return
	}
	v, ok := e.venues[o.InstrumentID]
	if !ok {
		return
	}
	if p, ok := v.core.Order(o.ClientOrderID); ok {
		if err := v.core.DeleteOrder(p); err != nil {
			logs.Warnf("core: delete %s from matching core, err: %+v", o.ClientOrderID, err)
		}
	}
}

// applyFill adds fill to its position, writes the position through to the
// cache and publishes it on the strategy position topic.
func (e *Engine) applyFill(fill model.OrderFilled) {
	pos, err := e.positions.ApplyFill(fill)
	if err != nil {
		if errors.Is(err, exception.ErrDuplicateEvent) {
			logs.Debugf("core: fill %s already in position", fill.TradeID)
			return
		}
		logs.Warnf("core: fill %s not applied to position, err: %+v", fill.TradeID, err)
		return
	}

	if _, ok := e.cache.Position(pos.ID); ok {
		err = e.cache.UpdatePosition(e.ctx, pos)
	} else {
		err = e.cache.AddPosition(e.ctx, pos)
	}
	if err != nil {
		logs.Errorf("core: position %s not cached, err: %+v", pos.ID, err)
	}

	snapshot := *pos
	e.publish(e.topics.EventPositionsTopic(fill.StrategyID), snapshot)
}
