package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tradecore"

// Collector exposes a Metrics snapshot to prometheus on every scrape.
type Collector struct {
	m *Metrics

	data          *prometheus.Desc
	orderEvents   *prometheus.Desc
	reconcile     *prometheus.Desc
	published     *prometheus.Desc
	delivered     *prometheus.Desc
	handlerPanics *prometheus.Desc
	sendFailures  *prometheus.Desc
	queueDrops    *prometheus.Desc
	queueClosed   *prometheus.Desc
	latencySum    *prometheus.Desc
	latencyCount  *prometheus.Desc
	latencyMax    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(m *Metrics) *Collector {
	return &Collector{
		m:             m,
		data:          prometheus.NewDesc(namespace+"_data_total", "Market data items received.", []string{"kind"}, nil),
		orderEvents:   prometheus.NewDesc(namespace+"_order_events_total", "Order events applied.", []string{"event"}, nil),
		reconcile:     prometheus.NewDesc(namespace+"_reconcile_total", "Reconciliation outcomes.", []string{"outcome"}, nil),
		published:     prometheus.NewDesc(namespace+"_bus_published_total", "Bus publish calls.", nil, nil),
		delivered:     prometheus.NewDesc(namespace+"_bus_delivered_total", "Handler invocations from publish.", nil, nil),
		handlerPanics: prometheus.NewDesc(namespace+"_bus_handler_panics_total", "Recovered handler panics.", nil, nil),
		sendFailures:  prometheus.NewDesc(namespace+"_bus_send_failures_total", "Sends to unknown endpoints.", nil, nil),
		queueDrops:    prometheus.NewDesc(namespace+"_queue_drops_total", "Inbound messages dropped on a full queue.", nil, nil),
		queueClosed:   prometheus.NewDesc(namespace+"_queue_closed_total", "Inbound messages rejected by a closed queue.", nil, nil),
		latencySum:    prometheus.NewDesc(namespace+"_latency_seconds_sum", "Sum of observed latencies.", []string{"stage"}, nil),
		latencyCount:  prometheus.NewDesc(namespace+"_latency_seconds_count", "Number of observed latencies.", []string{"stage"}, nil),
		latencyMax:    prometheus.NewDesc(namespace+"_latency_seconds_max", "Largest observed latency.", []string{"stage"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.data, c.orderEvents, c.reconcile, c.published, c.delivered, c.handlerPanics,
		c.sendFailures, c.queueDrops, c.queueClosed, c.latencySum, c.latencyCount, c.latencyMax,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	for kind, v := range s.DataCounts {
		ch <- prometheus.MustNewConstMetric(c.data, prometheus.CounterValue, float64(v), kind.String())
	}
	for kind, v := range s.OrderCounts {
		ch <- prometheus.MustNewConstMetric(c.orderEvents, prometheus.CounterValue, float64(v), kind.String())
	}
	for outcome, v := range s.ReconcileCounts {
		ch <- prometheus.MustNewConstMetric(c.reconcile, prometheus.CounterValue, float64(v), outcome.String())
	}
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Published))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(s.Delivered))
	ch <- prometheus.MustNewConstMetric(c.handlerPanics, prometheus.CounterValue, float64(s.HandlerPanics))
	ch <- prometheus.MustNewConstMetric(c.sendFailures, prometheus.CounterValue, float64(s.SendFailures))
	ch <- prometheus.MustNewConstMetric(c.queueDrops, prometheus.CounterValue, float64(s.QueueDrops))
	ch <- prometheus.MustNewConstMetric(c.queueClosed, prometheus.CounterValue, float64(s.QueueClosed))

	for stage, l := range map[string]LatencySnapshot{"data": s.DataLatency, "publish": s.PublishLatency} {
		ch <- prometheus.MustNewConstMetric(c.latencySum, prometheus.CounterValue, l.Sum.Seconds(), stage)
		ch <- prometheus.MustNewConstMetric(c.latencyCount, prometheus.CounterValue, float64(l.Count), stage)
		ch <- prometheus.MustNewConstMetric(c.latencyMax, prometheus.GaugeValue, l.Max.Seconds(), stage)
	}
}
