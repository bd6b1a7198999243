package telemetry

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts auth events and observes their latency. It is an Emitter so
// it can sit in the same fan-out as the log sinks.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewMetrics registers the auth collectors on a private registry together
// with the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "maidrobe",
				Subsystem: "auth",
				Name:      "events_total",
				Help:      "Auth events by type and outcome.",
			},
			[]string{"event_type", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "maidrobe",
				Subsystem: "auth",
				Name:      "operation_duration_seconds",
				Help:      "Latency of auth operations that report one.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
	}

	m.registry.MustRegister(
		m.eventsTotal,
		m.latency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Emit(_ context.Context, event domain.AuthEvent) error {
	outcome := string(event.Outcome)
	if outcome == "" {
		outcome = "none"
	}

	m.eventsTotal.WithLabelValues(string(event.Type), outcome).Inc()
	if event.Latency > 0 {
		m.latency.WithLabelValues(string(event.Type)).Observe(event.Latency.Seconds())
	}
	return nil
}

// EventsTotal exposes the counter for assertions and the status server.
func (m *Metrics) EventsTotal() *prometheus.CounterVec { return m.eventsTotal }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
