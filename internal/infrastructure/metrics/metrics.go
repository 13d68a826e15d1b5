package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/approval-workflow/internal/application/port"
	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

const namespace = "approval"

// Recorder exports workflow measurements as Prometheus collectors
type Recorder struct {
	OperationDuration *prometheus.HistogramVec
	OperationsTotal   *prometheus.CounterVec
	TransitionsTotal  *prometheus.CounterVec
	BulkItemsTotal    *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
}

// New registers the workflow collectors on reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		// Buckets: 1ms .. 2.5s, engine ops are a single sqlite transaction
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"request_type", "action", "outcome"},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total engine operations by outcome (ok or error kind)",
			},
			[]string{"request_type", "action", "outcome"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total committed state transitions",
			},
			[]string{"request_type", "action"},
		),
		BulkItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_items_total",
				Help:      "Total bulk operation items by outcome",
			},
			[]string{"action", "outcome"},
		),
		NotificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total notification deliveries by event type",
			},
			[]string{"event_type", "status"},
		),
	}
}

// ObserveOperation records latency and outcome of one engine call
func (r *Recorder) ObserveOperation(requestType string, action workflow.Action, outcome string, seconds float64) {
	r.OperationDuration.WithLabelValues(requestType, string(action), outcome).Observe(seconds)
	r.OperationsTotal.WithLabelValues(requestType, string(action), outcome).Inc()
}

// RecordTransition counts a committed transition
func (r *Recorder) RecordTransition(requestType string, action workflow.Action) {
	r.TransitionsTotal.WithLabelValues(requestType, string(action)).Inc()
}

// RecordBulkItem counts one bulk item result
func (r *Recorder) RecordBulkItem(action workflow.Action, outcome string) {
	r.BulkItemsTotal.WithLabelValues(string(action), outcome).Inc()
}

// RecordNotification counts one delivery attempt
func (r *Recorder) RecordNotification(eventType string, delivered bool) {
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	r.NotificationsSent.WithLabelValues(eventType, status).Inc()
}

var _ port.MetricsRecorder = (*Recorder)(nil)
