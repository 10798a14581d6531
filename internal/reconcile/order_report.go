package reconcile

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/order"
)

const (
	ReasonInflightTimeout = "INFLIGHT_TIMEOUT"
	ReasonUnknown         = "UNKNOWN"
)

// OrderStore resolves cached orders and instruments.
type OrderStore interface {
	InstrumentProvider
	Order(id model.ClientOrderID) (*model.Order, bool)
}

func (r *Reconciler) header(o *model.Order, tsEvent model.UnixNanos) model.EventHeader {
	now := r.clock.Now()
	if tsEvent == 0 {
		tsEvent = now
	}
	return model.EventHeader{
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		EventID:       model.NewUUID4(),
		TsEvent:       tsEvent,
		TsInit:        now,
	}
}

// ReconcileOrderReport returns the status event that moves o to the status the
// venue reports. Fill quantities are reconciled by fill reports, not here.
func (r *Reconciler) ReconcileOrderReport(o *model.Order, report model.OrderStatusReport) (model.OrderEvent, bool) {
	if o.Status == report.Status && o.FilledQty.Equal(report.FilledQty) {
		return nil, false
	}

	vid := o.VenueOrderID
	if vid.IsEmpty() {
		vid = report.VenueOrderID
	}
	account := o.AccountID
	if account.IsEmpty() {
		account = report.AccountID
	}

	switch report.Status {
	case enum.OrderStatusAccepted:
		if o.Status == enum.OrderStatusAccepted {
			return nil, false
		}
		return model.OrderAccepted{EventHeader: r.header(o, report.TsAccepted), VenueOrderID: vid, AccountID: account}, true
	case enum.OrderStatusRejected:
		reason := report.CancelReason
		if reason == "" {
			reason = ReasonUnknown
		}
		return model.OrderRejected{EventHeader: r.header(o, 0), AccountID: account, Reason: reason}, true
	case enum.OrderStatusTriggered:
		return model.OrderTriggered{EventHeader: r.header(o, report.TsLast), VenueOrderID: vid, AccountID: account}, true
	case enum.OrderStatusCanceled:
		return model.OrderCanceled{EventHeader: r.header(o, report.TsLast), VenueOrderID: vid, AccountID: account}, true
	case enum.OrderStatusExpired:
		return model.OrderExpired{EventHeader: r.header(o, report.TsLast), VenueOrderID: vid, AccountID: account}, true
	default:
		return nil, false
	}
}

// CreateOrderFill converts a fill report into an OrderFilled event for o. Each
// trade id is converted at most once.
func (r *Reconciler) CreateOrderFill(o *model.Order, fill model.FillReport, inst *model.Instrument) (model.OrderFilled, bool) {
	if _, ok := r.processedFills[fill.TradeID]; ok {
		return model.OrderFilled{}, false
	}
	r.processedFills[fill.TradeID] = o.ClientOrderID

	account := o.AccountID
	if account.IsEmpty() {
		account = fill.AccountID
	}
	return model.OrderFilled{
		EventHeader:   r.header(o, fill.TsEvent),
		VenueOrderID:  fill.VenueOrderID,
		AccountID:     account,
		TradeID:       fill.TradeID,
		PositionID:    fill.VenuePositionID,
		Side:          fill.Side,
		OrderType:     o.OrderType,
		LastQty:       fill.LastQty,
		LastPx:        fill.LastPx,
		Currency:      inst.QuoteCurrency,
		Commission:    fill.Commission,
		LiquiditySide: fill.LiquiditySide,
	}, true
}

// InferFill derives the fill that brings o's filled quantity up to the report
// when the venue sent no fill reports for it. The price is solved from the
// reported average price.
func (r *Reconciler) InferFill(o *model.Order, report model.OrderStatusReport, inst *model.Instrument) (model.OrderFilled, bool) {
	if !report.FilledQty.Greater(o.FilledQty) || report.AvgPx <= 0 {
		return model.OrderFilled{}, false
	}

	reported := report.FilledQty.Decimal()
	filled := o.FilledQty.Decimal()
	last := reported.Sub(filled)
	px := decimal.NewFromFloat(report.AvgPx)
	if filled.IsPositive() {
		px = reported.Mul(decimal.NewFromFloat(report.AvgPx)).Sub(filled.Mul(decimal.NewFromFloat(o.AvgPx))).Div(last)
	}
	if !px.IsPositive() {
		logs.Warnf("reconcile: %s cannot infer fill price from avg_px %v", o.ClientOrderID, report.AvgPx)
		return model.OrderFilled{}, false
	}

	lastPx, err := inst.MakePrice(px)
	if err != nil {
		logs.Warnf("reconcile: %s inferred price %s, err: %+v", o.ClientOrderID, px, err)
		return model.OrderFilled{}, false
	}
	lastQty, err := inst.MakeQty(last)
	if err != nil {
		logs.Warnf("reconcile: %s inferred qty %s, err: %+v", o.ClientOrderID, last, err)
		return model.OrderFilled{}, false
	}

	fill := model.FillReport{
		AccountID:     report.AccountID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  report.VenueOrderID,
		TradeID:       model.NewTradeID(SyntheticID(report.TsLast)),
		Side:          o.Side,
		LastQty:       lastQty,
		LastPx:        lastPx,
		Commission:    model.ZeroMoney(inst.QuoteCurrency),
		LiquiditySide: enum.LiquiditySideNone,
		ReportID:      model.NewUUID4(),
		TsEvent:       report.TsLast,
		TsInit:        r.clock.Now(),
	}
	return r.CreateOrderFill(o, fill, inst)
}

// MassStatusEvents turns a reconciled report set into order events for the
// cached orders it references. Reports without a cached order are skipped.
func (r *Reconciler) MassStatusEvents(res Result, store OrderStore) []model.OrderEvent {
	var events []model.OrderEvent

	vids := make([]model.VenueOrderID, 0, len(res.OrderReports))
	for vid := range res.OrderReports {
		vids = append(vids, vid)
	}
	slices.SortFunc(vids, func(a, b model.VenueOrderID) int { return cmp.Compare(a.String(), b.String()) })

	for _, vid := range vids {
		report := res.OrderReports[vid]
		if report.ClientOrderID.IsEmpty() {
			continue
		}
		o, ok := store.Order(report.ClientOrderID)
		if !ok {
			continue
		}
		if ev, ok := r.ReconcileOrderReport(o, report); ok {
			events = append(events, ev)
		}
		if len(res.FillReports[vid]) != 0 {
			continue
		}
		if inst, ok := store.Instrument(o.InstrumentID); ok {
			if ev, ok := r.InferFill(o, report, inst); ok {
				events = append(events, ev)
			}
		}
	}

	var fills []model.FillReport
	for _, fs := range res.FillReports {
		fills = append(fills, fs...)
	}
	slices.SortStableFunc(fills, func(a, b model.FillReport) int { return compareFills(snapshot(a), snapshot(b)) })
	for _, f := range fills {
		clientID := f.ClientOrderID
		if clientID.IsEmpty() {
			clientID = res.OrderReports[f.VenueOrderID].ClientOrderID
		}
		if clientID.IsEmpty() {
			continue
		}
		o, ok := store.Order(clientID)
		if !ok {
			continue
		}
		inst, ok := store.Instrument(o.InstrumentID)
		if !ok {
			continue
		}
		if ev, ok := r.CreateOrderFill(o, f, inst); ok {
			events = append(events, ev)
		}
	}
	return events
}

type inflightCheck struct {
	tsSubmitted model.UnixNanos
	lastQuery   model.UnixNanos
	retries     uint32
}

// RegisterInflight starts tracking an order that awaits a venue response.
func (r *Reconciler) RegisterInflight(id model.ClientOrderID) {
	r.inflight[id] = &inflightCheck{tsSubmitted: r.clock.Now()}
}

// ClearInflight stops tracking id, typically once the venue answered.
func (r *Reconciler) ClearInflight(id model.ClientOrderID) {
	delete(r.inflight, id)
}

func (r *Reconciler) InflightCount() int { return len(r.inflight) }

// CheckInflight walks tracked orders older than the inflight threshold. Each
// pass past the threshold counts as a status query; an order that exhausts its
// retries is rejected with INFLIGHT_TIMEOUT. The returned ids need a venue
// status query.
func (r *Reconciler) CheckInflight(store OrderStore) (events []model.OrderEvent, query []model.ClientOrderID) {
	now := r.clock.Now()
	threshold := model.UnixNanos(r.cfg.InflightThreshold)

	ids := make([]model.ClientOrderID, 0, len(r.inflight))
	for id := range r.inflight {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b model.ClientOrderID) int { return cmp.Compare(a.String(), b.String()) })

	for _, id := range ids {
		check := r.inflight[id]
		if now-check.tsSubmitted <= threshold {
			continue
		}
		if check.lastQuery != 0 && now-check.lastQuery < threshold {
			continue
		}
		check.retries++
		check.lastQuery = now

		if check.retries < r.cfg.InflightMaxRetries {
			query = append(query, id)
			continue
		}

		delete(r.inflight, id)
		o, ok := store.Order(id)
		if !ok || !order.CanTransition(o.Status, enum.OrderEventRejected) {
			continue
		}
		logs.Warnf("reconcile: %s inflight for %s, rejecting", id, now.Sub(check.tsSubmitted))
		events = append(events, model.OrderRejected{
			EventHeader: r.header(o, now),
			AccountID:   o.AccountID,
			Reason:      ReasonInflightTimeout,
		})
	}
	return events, query
}
