package reconcile

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/obs"
	"tradecore/pkg/exception"
)

// Config tunes position matching and inflight order checks.
type Config struct {
	Tolerance          decimal.Decimal
	InflightThreshold  time.Duration
	InflightMaxRetries uint32
}

func DefaultConfig() Config {
	return Config{
		Tolerance:          DefaultTolerance,
		InflightThreshold:  5 * time.Second,
		InflightMaxRetries: 5,
	}
}

// InstrumentProvider resolves instrument descriptors.
type InstrumentProvider interface {
	Instrument(id model.InstrumentID) (*model.Instrument, bool)
}

// Result is a rewritten set of venue reports.
type Result struct {
	OrderReports map[model.VenueOrderID]model.OrderStatusReport
	FillReports  map[model.VenueOrderID][]model.FillReport
	Actions      map[model.InstrumentID]Action
}

// Fills returns every fill report of instrument id in replay order.
func (r Result) Fills(id model.InstrumentID) []model.FillReport {
	var out []model.FillReport
	for _, fills := range r.FillReports {
		for _, f := range fills {
			if f.InstrumentID == id {
				out = append(out, f)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b model.FillReport) int {
		return compareFills(snapshot(a), snapshot(b))
	})
	return out
}

// Reconciler aligns venue reports with cached execution state. It is owned by
// the engine goroutine.
type Reconciler struct {
	cfg     Config
	clock   *clock.AtomicTime
	metrics *obs.Metrics

	inflight       map[model.ClientOrderID]*inflightCheck
	processedFills map[model.TradeID]model.ClientOrderID
}

func New(cfg Config, clk *clock.AtomicTime, metrics *obs.Metrics) *Reconciler {
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.InflightThreshold <= 0 {
		cfg.InflightThreshold = DefaultConfig().InflightThreshold
	}
	if clk == nil {
		clk = clock.Global()
	}
	return &Reconciler{
		cfg:            cfg,
		clock:          clk,
		metrics:        metrics,
		inflight:       make(map[model.ClientOrderID]*inflightCheck),
		processedFills: make(map[model.TradeID]model.ClientOrderID),
	}
}

// AdjustMassStatus rewrites the order and fill reports of mass so that replaying
// the fills of every instrument with a position report reproduces that position.
// mass is not modified. Instruments whose gap cannot be closed pass through
// unchanged.
func (r *Reconciler) AdjustMassStatus(mass *model.ExecutionMassStatus, instruments InstrumentProvider) Result {
	res := Result{
		OrderReports: make(map[model.VenueOrderID]model.OrderStatusReport, len(mass.OrderReports)),
		FillReports:  make(map[model.VenueOrderID][]model.FillReport, len(mass.FillReports)),
		Actions:      make(map[model.InstrumentID]Action, len(mass.PositionReports)),
	}
	for vid, rep := range mass.OrderReports {
		res.OrderReports[vid] = rep
	}
	for vid, fills := range mass.FillReports {
		res.FillReports[vid] = slices.Clone(fills)
	}

	ids := make([]model.InstrumentID, 0, len(mass.PositionReports))
	for id, reports := range mass.PositionReports {
		if len(reports) != 0 {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b model.InstrumentID) int { return cmp.Compare(a.String(), b.String()) })

	for _, id := range ids {
		reports := mass.PositionReports[id]
		action, err := r.adjustInstrument(&res, mass, id, reports[len(reports)-1], instruments)
		if err != nil {
			logs.Errorf("reconcile: %s passed through, err: %+v", id, err)
			r.metrics.ObserveReconcile(obs.ReconcileFailed)
			continue
		}
		res.Actions[id] = action
		r.metrics.ObserveReconcile(action.outcome())
	}
	return res
}

type fillEntry struct {
	snap   FillSnapshot
	report model.FillReport
}

func (r *Reconciler) adjustInstrument(res *Result, mass *model.ExecutionMassStatus, id model.InstrumentID, pos model.PositionStatusReport, instruments InstrumentProvider) (Action, error) {
	inst, ok := instruments.Instrument(id)
	if !ok {
		return 0, errors.Wrap(exception.ErrNotFound, "instrument").With("instrument", id.String())
	}

	var entries []fillEntry
	owners := make(map[model.VenueOrderID]struct{})
	for vid, fills := range mass.FillReports {
		for _, f := range fills {
			if f.InstrumentID != id {
				continue
			}
			entries = append(entries, fillEntry{snap: snapshot(f), report: f})
			owners[vid] = struct{}{}
		}
	}
	slices.SortStableFunc(entries, func(a, b fillEntry) int { return compareFills(a.snap, b.snap) })
	for i := 1; i < len(entries); i++ {
		if entries[i].snap.TsEvent == entries[i-1].snap.TsEvent {
			logs.Warnf("reconcile: %s duplicate fill ts_event %d (%s, %s)", id, entries[i].snap.TsEvent,
				entries[i-1].report.TradeID, entries[i].report.TradeID)
		}
	}

	snaps := make([]FillSnapshot, len(entries))
	for i, e := range entries {
		snaps[i] = e.snap
	}
	venue := VenuePosition{Qty: pos.SignedQty, TsLast: pos.TsLast}
	if pos.AvgPxOpen.Valid {
		venue.AvgPx = pos.AvgPxOpen.Decimal
	}
	if venue.TsLast == 0 {
		venue.TsLast = r.clock.Now()
	}

	adj, err := AdjustFills(snaps, venue, r.cfg.Tolerance)
	if err != nil {
		return 0, err
	}
	if adj.Action == NoAdjustment {
		logs.Debugf("reconcile: %s %s", id, adj.Action)
		return NoAdjustment, nil
	}

	fills := make([]model.FillReport, 0, len(adj.Kept)+1)
	for _, i := range adj.Kept {
		fills = append(fills, entries[i].report)
	}

	var synthOrder *model.OrderStatusReport
	if adj.Synthetic != nil {
		existing, hasOrder := res.OrderReports[adj.Synthetic.VenueOrderID]
		fill, order, err := r.syntheticReports(mass.AccountID, inst, *adj.Synthetic, existing, hasOrder)
		if err != nil {
			return 0, err
		}
		fills = append(fills, fill)
		synthOrder = &order
	}
	slices.SortStableFunc(fills, func(a, b model.FillReport) int { return compareFills(snapshot(a), snapshot(b)) })

	check := make([]FillSnapshot, len(fills))
	for i, f := range fills {
		check[i] = snapshot(f)
	}
	qty, value := SimulatePosition(check)
	if !CheckPositionMatch(qty, value, venue, r.cfg.Tolerance) {
		return 0, errors.Wrap(exception.ErrReconcileMismatch, adj.Action.String()).
			With("sim_qty", qty.String()).With("venue_qty", venue.Qty.String())
	}

	for vid := range owners {
		kept := slices.DeleteFunc(res.FillReports[vid], func(f model.FillReport) bool { return f.InstrumentID == id })
		if len(kept) == 0 {
			delete(res.FillReports, vid)
			continue
		}
		res.FillReports[vid] = kept
	}
	for _, f := range fills {
		res.FillReports[f.VenueOrderID] = append(res.FillReports[f.VenueOrderID], f)
	}
	if synthOrder != nil {
		res.OrderReports[synthOrder.VenueOrderID] = *synthOrder
	}
	for vid := range owners {
		if len(res.FillReports[vid]) != 0 {
			continue
		}
		if rep, ok := res.OrderReports[vid]; ok && rep.Status.IsTerminal() {
			delete(res.OrderReports, vid)
		}
	}

	logs.Infof("reconcile: %s %s, fills %d -> %d, venue %s @ %s", id, adj.Action, len(entries), len(fills),
		venue.Qty, venue.AvgPx)
	return adj.Action, nil
}

// syntheticReports renders a synthetic fill and the order report that owns it.
// An existing order report is marked filled with the synthetic quantity.
func (r *Reconciler) syntheticReports(account model.AccountID, inst *model.Instrument, snap FillSnapshot, existing model.OrderStatusReport, hasOrder bool) (model.FillReport, model.OrderStatusReport, error) {
	px, err := inst.MakePrice(snap.Px)
	if err != nil {
		return model.FillReport{}, model.OrderStatusReport{}, errors.Wrap(err, "synthetic price").With("px", snap.Px.String())
	}
	qty, err := inst.MakeQty(snap.Qty)
	if err != nil {
		return model.FillReport{}, model.OrderStatusReport{}, errors.Wrap(err, "synthetic qty").With("qty", snap.Qty.String())
	}

	syntheticID := SyntheticID(snap.TsEvent)
	vid := snap.VenueOrderID
	if vid.IsEmpty() {
		vid = model.NewVenueOrderID(syntheticID)
	}
	now := r.clock.Now()

	order := existing
	if !hasOrder {
		order = model.OrderStatusReport{
			AccountID:    account,
			InstrumentID: inst.ID,
			VenueOrderID: vid,
			OrderType:    enum.OrderTypeMarket,
			TimeInForce:  enum.TimeInForceGTC,
			TsAccepted:   snap.TsEvent,
			TsInit:       now,
		}
	}
	order.Side = snap.Side
	order.Status = enum.OrderStatusFilled
	order.Quantity = qty
	order.FilledQty = qty
	order.AvgPx = px.Float64()
	order.ReportID = model.NewUUID4()
	order.TsLast = snap.TsEvent

	fill := model.FillReport{
		AccountID:     account,
		InstrumentID:  inst.ID,
		ClientOrderID: order.ClientOrderID,
		VenueOrderID:  vid,
		TradeID:       model.NewTradeID(syntheticID),
		Side:          snap.Side,
		LastQty:       qty,
		LastPx:        px,
		Commission:    model.ZeroMoney(inst.QuoteCurrency),
		LiquiditySide: enum.LiquiditySideTaker,
		ReportID:      model.NewUUID4(),
		TsEvent:       snap.TsEvent,
		TsInit:        now,
	}
	return fill, order, nil
}

// SyntheticID returns an identifier of the form S-<ts_hex>-<uuid8>.
func SyntheticID(ts model.UnixNanos) string {
	return "S-" + ts.Hex() + "-" + uuid.NewString()[:8]
}

func snapshot(f model.FillReport) FillSnapshot {
	return FillSnapshot{
		TsEvent:      f.TsEvent,
		Side:         f.Side,
		Qty:          f.LastQty.Decimal(),
		Px:           f.LastPx.Decimal(),
		VenueOrderID: f.VenueOrderID,
	}
}

func (a Action) outcome() obs.ReconcileOutcome {
	switch a {
	case AddSyntheticOpening:
		return obs.ReconcileSyntheticOpening
	case ReplaceCurrentLifecycle:
		return obs.ReconcileReplaceLifecycle
	case FilterToCurrentLifecycle:
		return obs.ReconcileFilterLifecycle
	case AddSyntheticClose:
		return obs.ReconcileSyntheticClose
	default:
		return obs.ReconcileNoAdjustment
	}
}
