package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the event pipeline.
type Metrics struct {
	Emitted   *prometheus.CounterVec
	Dropped   prometheus.Counter
	Persisted prometheus.Counter
	SinkFails *prometheus.CounterVec
}

// New creates a Metrics instance with all event metrics registered.
func New() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_events_emitted_total",
			Help: "Lifecycle events emitted, by type",
		}, []string{"type"}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_events_dropped_total",
			Help: "Events dropped because the publish buffer was full",
		}),
		Persisted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_events_persisted_total",
			Help: "Events written to the event log",
		}),
		SinkFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_events_sink_failures_total",
			Help: "Deliveries to an external sink that failed",
		}, []string{"sink"}),
	}
}

// IncEmitted records an emitted event.
func (m *Metrics) IncEmitted(eventType string) {
	if m != nil {
		m.Emitted.WithLabelValues(eventType).Inc()
	}
}

// IncDropped records a dropped event.
func (m *Metrics) IncDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

// IncPersisted records an event written to the log.
func (m *Metrics) IncPersisted() {
	if m != nil {
		m.Persisted.Inc()
	}
}

// IncSinkFailure records a failed sink delivery.
func (m *Metrics) IncSinkFailure(sink string) {
	if m != nil {
		m.SinkFails.WithLabelValues(sink).Inc()
	}
}
