package obs

import (
	"sync/atomic"
	"time"

	"tradecore/internal/model/enum"
)

const (
	maxDataKind  = int(enum.DataKindInstrumentClose)
	maxOrderKind = int(enum.OrderEventFilled)
)

// ReconcileOutcome labels the result of a reconciliation pass.
type ReconcileOutcome uint8

const (
	ReconcileNoAdjustment ReconcileOutcome = iota
	ReconcileSyntheticOpening
	ReconcileReplaceLifecycle
	ReconcileFilterLifecycle
	ReconcileSyntheticClose
	ReconcileFailed
	reconcileOutcomeCount
)

func (o ReconcileOutcome) String() string {
	switch o {
	case ReconcileNoAdjustment:
		return "no_adjustment"
	case ReconcileSyntheticOpening:
		return "synthetic_opening"
	case ReconcileReplaceLifecycle:
		return "replace_lifecycle"
	case ReconcileFilterLifecycle:
		return "filter_lifecycle"
	case ReconcileSyntheticClose:
		return "synthetic_close"
	default:
		return "failed"
	}
}

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	dataCounts      [maxDataKind + 1]uint64
	orderCounts     [maxOrderKind + 1]uint64
	reconcileCounts [reconcileOutcomeCount]uint64
	published       uint64
	delivered       uint64
	handlerPanics   uint64
	sendFailures    uint64
	queueDrops      uint64
	queueClosed     uint64

	dataLatency    LatencyStats
	publishLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	Sum   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	DataCounts      map[enum.DataKind]uint64
	OrderCounts     map[enum.OrderEventKind]uint64
	ReconcileCounts map[ReconcileOutcome]uint64
	Published       uint64
	Delivered       uint64
	HandlerPanics   uint64
	SendFailures    uint64
	QueueDrops      uint64
	QueueClosed     uint64
	DataLatency     LatencySnapshot
	PublishLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveData counts a data item and tracks ingest latency from ts_event to ts_init.
func (m *Metrics) ObserveData(kind enum.DataKind, tsEvent, tsInit uint64) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.dataCounts) {
		atomic.AddUint64(&m.dataCounts[idx], 1)
	}
	if tsEvent > 0 && tsInit >= tsEvent {
		m.dataLatency.Observe(time.Duration(tsInit - tsEvent))
	}
}

// ObserveOrderEvent counts an applied order event.
func (m *Metrics) ObserveOrderEvent(kind enum.OrderEventKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.orderCounts) {
		atomic.AddUint64(&m.orderCounts[idx], 1)
	}
}

// ObserveReconcile counts a reconciliation outcome.
func (m *Metrics) ObserveReconcile(outcome ReconcileOutcome) {
	if m == nil || outcome >= reconcileOutcomeCount {
		return
	}
	atomic.AddUint64(&m.reconcileCounts[outcome], 1)
}

// ObservePublish records one publish call delivered to n handlers.
func (m *Metrics) ObservePublish(n int, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.published, 1)
	atomic.AddUint64(&m.delivered, uint64(n))
	m.publishLatency.Observe(d)
}

// IncHandlerPanic records a recovered handler panic.
func (m *Metrics) IncHandlerPanic() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.handlerPanics, 1)
}

// IncSendFailure records a send to a missing endpoint.
func (m *Metrics) IncSendFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sendFailures, 1)
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	dataCounts := make(map[enum.DataKind]uint64)
	for i := range m.dataCounts {
		if v := atomic.LoadUint64(&m.dataCounts[i]); v > 0 {
			dataCounts[enum.DataKind(i)] = v
		}
	}
	orderCounts := make(map[enum.OrderEventKind]uint64)
	for i := range m.orderCounts {
		if v := atomic.LoadUint64(&m.orderCounts[i]); v > 0 {
			orderCounts[enum.OrderEventKind(i)] = v
		}
	}
	reconcileCounts := make(map[ReconcileOutcome]uint64)
	for i := range m.reconcileCounts {
		if v := atomic.LoadUint64(&m.reconcileCounts[i]); v > 0 {
			reconcileCounts[ReconcileOutcome(i)] = v
		}
	}
	return Snapshot{
		DataCounts:      dataCounts,
		OrderCounts:     orderCounts,
		ReconcileCounts: reconcileCounts,
		Published:       atomic.LoadUint64(&m.published),
		Delivered:       atomic.LoadUint64(&m.delivered),
		HandlerPanics:   atomic.LoadUint64(&m.handlerPanics),
		SendFailures:    atomic.LoadUint64(&m.sendFailures),
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		QueueClosed:     atomic.LoadUint64(&m.queueClosed),
		DataLatency:     m.dataLatency.Snapshot(),
		PublishLatency:  m.publishLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
		Sum:   time.Duration(sum),
	}
}
