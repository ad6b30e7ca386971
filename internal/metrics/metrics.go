// Package metrics exposes Prometheus instruments for the workflow engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and all instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Transitions       *prometheus.CounterVec
	Cascades          *prometheus.CounterVec
	DocumentOps       *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kataster_workflow_transitions_total",
			Help: "State transitions applied, by entity and target status",
		}, []string{"entity", "status"}),
		Cascades: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kataster_cascades_total",
			Help: "Property cascades, by trigger and result (applied, skipped, failed)",
		}, []string{"trigger", "result"}),
		DocumentOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kataster_document_operations_total",
			Help: "Document store calls, by operation and result",
		}, []string{"op", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kataster_operation_duration_seconds",
			Help:    "Duration of workflow operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Transition records an entity moving to status.
func (m *Metrics) Transition(entity, status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(entity, status).Inc()
}

// Cascade records the outcome of a property cascade.
func (m *Metrics) Cascade(trigger, result string) {
	if m == nil {
		return
	}
	m.Cascades.WithLabelValues(trigger, result).Inc()
}

// DocumentOp records a document store call.
func (m *Metrics) DocumentOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DocumentOps.WithLabelValues(op, result).Inc()
}

// ObserveOperation records the duration of op.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
