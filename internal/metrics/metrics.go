// Package metrics implements internal/scheduler.Metrics over
// prometheus/client_golang: per-node-name counters for every state
// transition the scheduler drives a call through.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smthngslv/mycelia/internal/callid"
	"github.com/smthngslv/mycelia/internal/scheduler"
)

// Metrics is a scheduler.Metrics backed by four Prometheus counters,
// labeled by the node's (graph_id, node) pair.
type Metrics struct {
	ready      *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	resolved   *prometheus.CounterVec
	failed     *prometheus.CounterVec
}

var _ scheduler.Metrics = (*Metrics)(nil)

// New builds a Metrics and registers its counters with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func New(reg prometheus.Registerer) *Metrics {
	labels := []string{"graph_id", "node"}
	m := &Metrics{
		ready: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mycelia",
			Name:      "calls_ready_total",
			Help:      "Calls that transitioned to READY.",
		}, labels),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mycelia",
			Name:      "calls_dispatched_total",
			Help:      "Calls that transitioned to RUNNING.",
		}, labels),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mycelia",
			Name:      "calls_resolved_total",
			Help:      "Calls that transitioned to RESOLVED.",
		}, labels),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mycelia",
			Name:      "calls_failed_total",
			Help:      "Calls that transitioned to FAILED.",
		}, labels),
	}
	reg.MustRegister(m.ready, m.dispatched, m.resolved, m.failed)
	return m
}

func (m *Metrics) ObserveReady(ref callid.NodeRef) {
	m.ready.WithLabelValues(ref.GraphID, ref.Node).Inc()
}

func (m *Metrics) ObserveDispatched(ref callid.NodeRef) {
	m.dispatched.WithLabelValues(ref.GraphID, ref.Node).Inc()
}

func (m *Metrics) ObserveResolved(ref callid.NodeRef) {
	m.resolved.WithLabelValues(ref.GraphID, ref.Node).Inc()
}

func (m *Metrics) ObserveFailed(ref callid.NodeRef) {
	m.failed.WithLabelValues(ref.GraphID, ref.Node).Inc()
}
