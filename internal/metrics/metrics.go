// Package metrics exports settlement queue and claim metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vault_bridge"

// Metrics holds the bridge collectors.
type Metrics struct {
	enqueued   *prometheus.CounterVec
	processed  *prometheus.CounterVec
	queueDepth prometheus.Gauge
	claims     *prometheus.CounterVec
	fees       prometheus.Counter
}

// New registers the bridge collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "enqueued_total",
				Help:      "Settlement requests appended to the queue",
			},
			[]string{"kind"},
		),
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "processed_total",
				Help:      "Queue entries confirmed by the settlement operator",
			},
			[]string{"kind", "status"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Entries enqueued but not yet processed",
			},
		),
		claims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "claims",
				Name:      "total",
				Help:      "Claims executed, by whether pending was fully paid",
			},
			[]string{"result"},
		),
		fees: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fees",
				Name:      "settlement_wei_total",
				Help:      "Native settlement fees collected, in wei (float approximation)",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.enqueued, m.processed, m.queueDepth, m.claims, m.fees)
	}
	return m
}

func (m *Metrics) Enqueued(kind string, depth uint64) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(kind).Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) Processed(kind, status string, depth uint64) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(kind, status).Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) Claimed(partial bool) {
	if m == nil {
		return
	}
	result := "full"
	if partial {
		result = "partial"
	}
	m.claims.WithLabelValues(result).Inc()
}

func (m *Metrics) FeeCollected(wei float64) {
	if m == nil || wei <= 0 {
		return
	}
	m.fees.Add(wei)
}

// Depth sets the queue depth gauge, used after restoring state.
func (m *Metrics) Depth(depth uint64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
