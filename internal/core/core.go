/*
Core is the trading node engine.

# Module
  - message bus: every handler runs on the engine goroutine, fed by the inbound queue
  - matching cores: one per instrument, driven by quotes and trades
  - exec engine: runs risk checks, simulates venue acknowledgements and fills
  - caches: orders and positions, written through to the cache database
  - reconciliation: applies venue mass status reports on (re)connect

# Source
 1. market data & order events from adapters through the inbound queue
 2. synthetic market data from the paper generator
 3. WAL replay from the recorder

# Produce
  - order events on events.order.<strategy_id>
  - fills on events.fills.<instrument_id>
  - position snapshots on events.position.<strategy_id>
*/
package core

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/cache"
	"tradecore/internal/clock"
	"tradecore/internal/matching"
	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/internal/order"
	"tradecore/internal/reconcile"
	"tradecore/internal/recorder"
	"tradecore/internal/risk"
	"tradecore/internal/state"
	"tradecore/internal/switchboard"
)

// Handler priorities. The engine sees every message before strategies do.
const (
	priorityEngine   = 100
	priorityRecorder = 50
)

type Config struct {
	TraderID  model.TraderID
	AccountID model.AccountID
	// QueueSize bounds the inbound queue.
	QueueSize int
	// InflightInterval is how often inflight orders are checked. Zero disables it.
	InflightInterval time.Duration
	Reconcile        reconcile.Config
	Risk             risk.Config
}

func DefaultConfig(traderID model.TraderID) Config {
	return Config{
		TraderID:         traderID,
		AccountID:        model.NewAccountID("SIM-001"),
		QueueSize:        8192,
		InflightInterval: time.Second,
		Reconcile:        reconcile.DefaultConfig(),
	}
}

type Option func(*Engine)

func WithClock(clk *clock.AtomicTime) Option {
	return func(e *Engine) { e.clock = clk }
}

func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCache replaces the default in-memory cache, e.g. with one backed by a
// cache database.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithRecorder records every data value and fill the engine sees.
func WithRecorder(r *recorder.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithBacking mirrors the bus into an external stream.
func WithBacking(b bus.Backing) Option {
	return func(e *Engine) { e.backing = b }
}

// venue is the simulated venue state of one instrument.
type venue struct {
	inst   *model.Instrument
	core   *matching.Core
	quoted bool
	halted bool
}

// Engine owns the bus and everything mutated by bus handlers. Only Run and the
// methods documented as such may be called from other goroutines.
type Engine struct {
	cfg     Config
	clock   *clock.AtomicTime
	metrics *obs.Metrics
	backing bus.Backing

	bus        *bus.MessageBus
	queue      *bus.Queue
	topics     *switchboard.Switchboard
	cache      *cache.Cache
	orders     *order.StateMachine
	positions  *state.PositionBook
	reconciler *reconcile.Reconciler
	risk       *risk.Engine
	recorder   *recorder.Recorder

	venues map[model.InstrumentID]*venue

	// ctx is the Run context; cache writes use it.
	ctx        context.Context
	venueSeq   uint64
	tradeSeq   uint64
	lastTsInit model.UnixNanos
	// taking is the order matched on arrival; its limit fills are taker fills.
	taking model.ClientOrderID
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		topics:    switchboard.New(),
		orders:    order.NewStateMachine(),
		positions: state.NewPositionBook(),
		venues:    make(map[model.InstrumentID]*venue),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.Global()
	}
	if e.cache == nil {
		e.cache = cache.New(nil)
	}
	if cfg.QueueSize <= 0 {
		e.cfg.QueueSize = DefaultConfig(cfg.TraderID).QueueSize
	}

	busOpts := []bus.Option{bus.WithMetrics(e.metrics)}
	if e.backing != nil {
		busOpts = append(busOpts, bus.WithBacking(e.backing))
	}
	e.bus = bus.New(cfg.TraderID, "MessageBus", busOpts...)
	e.queue = bus.NewQueue(e.cfg.QueueSize)
	e.reconciler = reconcile.New(cfg.Reconcile, e.clock, e.metrics)
	e.risk = risk.NewEngine(cfg.Risk)

	if err := e.register(); err != nil {
		return nil, err
	}
	return e, nil
}

type subscription struct {
	pattern  string
	h        *bus.Handler
	priority int
}

func (e *Engine) register() error {
	endpoints := []struct {
		name string
		h    *bus.Handler
	}{
		{switchboard.EndpointDataEngine, bus.NewHandler("DataEngine", e.executeData)},
		{switchboard.EndpointRiskEngine, bus.NewHandler("RiskEngine", e.executeRisk)},
		{switchboard.EndpointExecEngine, bus.NewHandler("ExecEngine", e.executeCommand)},
		{switchboard.EndpointReconcile, bus.NewHandler("ExecEngine.reconcile", e.executeReconcile)},
	}
	for _, ep := range endpoints {
		if err := e.bus.RegisterEndpoint(ep.name, ep.h); err != nil {
			return errors.Wrap(err, "register endpoint").With("endpoint", ep.name)
		}
	}

	subs := []subscription{
		{"data.*", bus.NewHandler("DataEngine.data", e.onData), priorityEngine},
		{"events.order.*", bus.NewHandler("ExecEngine.events", e.onOrderEvent), priorityEngine},
		{"events.fills.*", bus.NewHandler("ExecEngine.fills", e.onOrderEvent), priorityEngine},
	}
	if e.recorder != nil {
		rec := e.recorder.Handler()
		subs = append(subs,
			subscription{"data.*", rec, priorityRecorder},
			subscription{"events.fills.*", rec, priorityRecorder},
		)
	}
	for _, s := range subs {
		if err := e.bus.Subscribe(s.pattern, s.h, s.priority); err != nil {
			return errors.Wrap(err, "subscribe").With("pattern", s.pattern)
		}
	}
	return nil
}

// Bus returns the message bus. Use it from bus handlers only.
func (e *Engine) Bus() *bus.MessageBus { return e.bus }

// Queue returns the inbound queue. Safe for concurrent use.
func (e *Engine) Queue() *bus.Queue { return e.queue }

func (e *Engine) Clock() *clock.AtomicTime { return e.clock }

func (e *Engine) Cache() *cache.Cache { return e.cache }

func (e *Engine) Positions() *state.PositionBook { return e.positions }

// Core returns the matching core of an instrument.
func (e *Engine) Core(id model.InstrumentID) (*matching.Core, bool) {
	v, ok := e.venues[id]
	if !ok {
		return nil, false
	}
	return v.core, true
}

// Load restores instruments, orders and positions from the cache database.
// Open passive orders are put back on their matching cores. Call before Run.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.cache.Load(ctx); err != nil {
		return err
	}
	for _, inst := range e.cache.Instruments() {
		e.addVenue(inst)
	}
	for _, o := range e.cache.Orders(nil, nil) {
		e.orders.Restore(o)
		if !o.IsOpen() {
			continue
		}
		v, ok := e.venues[o.InstrumentID]
		if !ok {
			continue
		}
		p, err := matching.PassiveFromOrder(o)
		if err != nil {
			logs.Warnf("core: %s not restored to matching core, err: %+v", o.ClientOrderID, err)
			continue
		}
		if err := v.core.AddOrder(p); err != nil {
			logs.Warnf("core: %s not restored to matching core, err: %+v", o.ClientOrderID, err)
		}
	}
	var positions []*model.Position
	for _, inst := range e.cache.Instruments() {
		positions = append(positions, e.cache.PositionsOpen(&inst.ID)...)
	}
	e.positions.Restore(positions)
	logs.Infof("core: loaded %d instruments, %d orders, %d open positions",
		len(e.venues), e.orders.Len(), len(positions))
	return nil
}

// RestorePositions replaces the position book, e.g. with positions recovered
// from a snapshot and the WAL. Call before Run.
func (e *Engine) RestorePositions(positions []*model.Position) {
	e.positions.Restore(positions)
}

// Run drains the inbound queue on the calling goroutine until ctx is done or
// the queue is closed and drained. The bus is disposed on return.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	if e.cfg.InflightInterval > 0 {
		go e.tickInflight(ctx)
	}

	logs.Infof("core: engine %s running", e.cfg.TraderID)
	e.queue.Run(ctx, func(env bus.Envelope) {
		bus.Dispatch(e.bus, env)
	})

	if err := e.bus.Dispose(); err != nil {
		return errors.Wrap(err, "dispose bus")
	}
	logs.Infof("core: engine %s stopped, orders %d, positions %d", e.cfg.TraderID, e.orders.Len(), e.positions.Count())
	return nil
}

// tickInflight posts inflight checks to the engine goroutine.
func (e *Engine) tickInflight(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.InflightInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := e.queue.TryPublish(bus.Envelope{Endpoint: switchboard.EndpointExecEngine, Msg: CheckInflight{}})
			if err != nil {
				e.metrics.IncQueueDrop()
				logs.Debugf("core: inflight check not queued, err: %+v", err)
			}
		}
	}
}

// SnapshotPositions writes the position book to path. Call after Run returned.
func (e *Engine) SnapshotPositions(path string) error {
	var seq uint64
	if e.recorder != nil {
		seq = e.recorder.Seq()
	}
	return state.WriteSnapshot(path, e.positions.Snapshot(seq, e.lastTsInit))
}

func (e *Engine) publish(topic string, msg any) {
	e.bus.Publish(topic, msg)
}

// publishEvent routes ev to the fill topic of its instrument or the order
// topic of its strategy.
func (e *Engine) publishEvent(ev model.OrderEvent) {
	if fill, ok := ev.(model.OrderFilled); ok {
		e.publish(e.topics.OrderFillsTopic(fill.InstrumentID), fill)
		return
	}
	e.publish(e.topics.EventOrdersTopic(ev.Header().StrategyID), ev)
}

func (e *Engine) header(o *model.Order) model.EventHeader {
	now := e.clock.Now()
	return model.EventHeader{
		TraderID:      o.TraderID,
		StrategyID:    o.StrategyID,
		InstrumentID:  o.InstrumentID,
		ClientOrderID: o.ClientOrderID,
		EventID:       model.NewUUID4(),
		TsEvent:       now,
		TsInit:        now,
	}
}
