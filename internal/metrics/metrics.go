// Package metrics exports cache events as Prometheus counters.
//
// The kiosk has no HTTP server, so metrics are written to a file in the text
// exposition format, ready for the node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iTrooz/kiosk-dashboard/internal/cache"
)

const (
	EventHit         = "hit"
	EventMiss        = "miss"
	EventExpired     = "expired"
	EventCorrupt     = "corrupt"
	EventWriteFailed = "write_failed"
)

// Metrics implements cache.Metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

var _ cache.Metrics = (*Metrics)(nil)

func New() *Metrics {
	registry := prometheus.NewRegistry()

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_cache_events_total",
		Help: "Total cache events by kind",
	}, []string{"event"})
	registry.MustRegister(events)

	// Expose every series from the start, even at zero
	for _, e := range []string{EventHit, EventMiss, EventExpired, EventCorrupt, EventWriteFailed} {
		events.WithLabelValues(e)
	}

	return &Metrics{
		registry: registry,
		events:   events,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Counter returns the counter backing one event kind
func (m *Metrics) Counter(event string) prometheus.Counter {
	return m.events.WithLabelValues(event)
}

func (m *Metrics) Hit()         { m.Counter(EventHit).Inc() }
func (m *Metrics) Miss()        { m.Counter(EventMiss).Inc() }
func (m *Metrics) Expired()     { m.Counter(EventExpired).Inc() }
func (m *Metrics) Corrupt()     { m.Counter(EventCorrupt).Inc() }
func (m *Metrics) WriteFailed() { m.Counter(EventWriteFailed).Inc() }

// WriteTextfile atomically writes every metric of the registry to path
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
