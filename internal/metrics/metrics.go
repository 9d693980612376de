// Package metrics exposes the process counters on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dm_active_connections",
		Help: "Number of websocket connections currently registered.",
	})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_events_emitted_total",
		Help: "Realtime events pushed to a connected client.",
	}, []string{"event"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_events_dropped_total",
		Help: "Realtime events dropped because the target was unreachable.",
	}, []string{"event"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_messages_sent_total",
		Help: "Messages accepted and persisted by the lifecycle engine.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
