package adapter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/switchboard"
	"tradecore/pkg/exception"
)

// Inbound marshals adapter output onto the engine queue. It stamps ts_init
// from the clock at ingestion and keeps ts_init non-decreasing across
// everything it publishes. Safe for concurrent use.
type Inbound struct {
	queue *bus.Queue
	clock *clock.AtomicTime

	mu     sync.Mutex
	topics *switchboard.Switchboard
	last   model.UnixNanos

	published atomic.Uint64
}

func NewInbound(queue *bus.Queue, clk *clock.AtomicTime) *Inbound {
	if clk == nil {
		clk = clock.Global()
	}
	return &Inbound{queue: queue, clock: clk, topics: switchboard.New()}
}

// Published returns the number of envelopes queued.
func (in *Inbound) Published() uint64 { return in.published.Load() }

// LastTsInit returns the latest ts_init stamped.
func (in *Inbound) LastTsInit() model.UnixNanos {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.last
}

func (in *Inbound) stamp(d model.Data) model.Data {
	ts := in.clock.Now()
	if bar, ok := d.(model.Bar); ok && bar.BarType.Source == enum.AggregationSourceExternal {
		if adjusted, err := model.AdjustBarTsInit(ts, bar.TsEvent, bar.BarType.Spec.Aggregation); err == nil {
			ts = adjusted
		}
	}
	ts = max(ts, in.last)
	in.last = ts
	return model.WithInitTime(d, ts)
}

// PublishData stamps d and queues it on its data topic. It blocks while the
// queue is full.
func (in *Inbound) PublishData(ctx context.Context, d model.Data) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	d = in.stamp(d)
	topic, ok := in.topics.DataTopic(d)
	if !ok {
		return errors.Wrap(exception.ErrInvalidArgument, "data topic").With("kind", d.Kind().String())
	}
	if err := in.queue.Publish(ctx, bus.Envelope{Topic: topic, Msg: d}); err != nil {
		return errors.Wrap(err, "publish data").With("topic", topic)
	}
	in.published.Add(1)
	return nil
}

// PublishOrderEvent queues an order event on the strategy's order topic, or on
// the instrument fill topic for fills.
func (in *Inbound) PublishOrderEvent(ctx context.Context, ev model.OrderEvent) error {
	in.mu.Lock()
	var topic string
	if fill, ok := ev.(model.OrderFilled); ok {
		topic = in.topics.OrderFillsTopic(fill.InstrumentID)
	} else {
		topic = in.topics.EventOrdersTopic(ev.Header().StrategyID)
	}
	in.mu.Unlock()

	if err := in.queue.Publish(ctx, bus.Envelope{Topic: topic, Msg: ev}); err != nil {
		return errors.Wrap(err, "publish order event").With("topic", topic)
	}
	in.published.Add(1)
	return nil
}

// SendMassStatus routes a venue snapshot to the reconciliation endpoint.
func (in *Inbound) SendMassStatus(ctx context.Context, mass *model.ExecutionMassStatus) error {
	if mass.TsInit == 0 {
		mass.TsInit = in.clock.Now()
	}
	if err := in.queue.Publish(ctx, bus.Envelope{Endpoint: switchboard.EndpointReconcile, Msg: mass}); err != nil {
		return errors.Wrap(err, "send mass status").With("client", mass.ClientID.String())
	}
	in.published.Add(1)
	return nil
}

// PublishStatus queues an adapter status without blocking.
func (in *Inbound) PublishStatus(status Status) error {
	now := in.clock.Now()
	if status.TsEvent == 0 {
		status.TsEvent = now
	}
	status.TsInit = now

	in.mu.Lock()
	topic := in.topics.AdapterStatusTopic(status.ClientID)
	in.mu.Unlock()

	if err := in.queue.TryPublish(bus.Envelope{Topic: topic, Msg: status}); err != nil {
		return errors.Wrap(err, "publish status").With("topic", topic)
	}
	in.published.Add(1)
	return nil
}

// ErrorReport is published on events.adapter.<client_id> for venue input the
// adapter could not convert.
type ErrorReport struct {
	ClientID model.ClientID
	Kind     Kind
	Class    Class
	Reason   string
	TsEvent  model.UnixNanos
	TsInit   model.UnixNanos
}

// PublishError queues err for client without blocking. Unclassified errors
// are reported with a zero kind.
func (in *Inbound) PublishError(client model.ClientID, err error) error {
	now := in.clock.Now()
	report := ErrorReport{ClientID: client, Reason: err.Error(), TsEvent: now, TsInit: now}
	if ae, ok := AsError(err); ok {
		report.Kind, report.Class = ae.Kind, ae.Class()
	}

	in.mu.Lock()
	topic := in.topics.AdapterStatusTopic(client)
	in.mu.Unlock()

	if err := in.queue.TryPublish(bus.Envelope{Topic: topic, Msg: report}); err != nil {
		return errors.Wrap(err, "publish error").With("topic", topic)
	}
	in.published.Add(1)
	return nil
}
