package core

import (
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
)

// executeData registers instruments and republishes data sent to the data
// engine endpoint on its canonical topic.
func (e *Engine) executeData(_ string, msg any) {
	switch v := msg.(type) {
	case *model.Instrument:
		e.addInstrument(v)
	case []*model.Instrument:
		for _, inst := range v {
			e.addInstrument(inst)
		}
	case model.Data:
		topic, ok := e.topics.DataTopic(v)
		if !ok {
			logs.Warnf("core: no topic for %s", v.Kind())
			return
		}
		e.publish(topic, v)
	default:
		logs.Warnf("core: data engine ignored %T", msg)
	}
}

func (e *Engine) addInstrument(inst *model.Instrument) {
	if err := e.cache.AddInstrument(e.ctx, inst); err != nil {
		logs.Errorf("core: instrument %s not cached, err: %+v", inst.ID, err)
	}
	e.addVenue(inst)
	e.publish(e.topics.InstrumentTopic(inst.ID), inst)
}

// onData moves the matching core of the data's instrument. Quotes set the
// bid and ask, trades set the last price, and on instruments without quotes
// trades also stand in for the touch.
func (e *Engine) onData(_ string, msg any) {
	d, ok := msg.(model.Data)
	if !ok {
		return
	}
	e.metrics.ObserveData(d.Kind(), uint64(d.EventTime()), uint64(d.InitTime()))
	e.lastTsInit = max(e.lastTsInit, d.InitTime())

	v, ok := e.venues[d.Instrument()]
	if !ok {
		return
	}
	switch x := d.(type) {
	case model.QuoteTick:
		v.quoted = true
		v.core.SetBidRaw(x.BidPrice)
		v.core.SetAskRaw(x.AskPrice)
	case model.TradeTick:
		v.core.SetLastRaw(x.Price)
		if !v.quoted {
			v.core.SetBidRaw(x.Price)
			v.core.SetAskRaw(x.Price)
		}
	case model.InstrumentStatus:
		if v.halted == !x.IsTrading {
			return
		}
		v.halted = !x.IsTrading
		logs.Infof("core: %s %s, trading %v, reason %q", x.InstrumentID, x.Action, x.IsTrading, x.Reason)
		return
	default:
		return
	}
	v.core.Iterate()
}
