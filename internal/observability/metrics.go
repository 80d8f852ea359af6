// Package observability carries the process-wide metrics and the optional
// trace exporter. Metrics are registered at init via promauto and served on
// /metrics by the router.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpenConnections gauges websocket connections currently bound to a
	// session.
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dealdojo",
		Subsystem: "engine",
		Name:      "open_connections",
		Help:      "Websocket connections currently open",
	})

	// ActiveSessions gauges sessions held live in the session store.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dealdojo",
		Subsystem: "engine",
		Name:      "active_sessions",
		Help:      "Roleplay sessions currently active",
	})

	// TurnsTotal counts committed turns by speaker.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealdojo",
		Subsystem: "engine",
		Name:      "turns_total",
		Help:      "Conversation turns committed, by speaker",
	}, []string{"speaker"})

	// GenerationFailures counts buyer turn generations that exhausted their
	// retry budget.
	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dealdojo",
		Subsystem: "engine",
		Name:      "generation_failures_total",
		Help:      "Buyer turn generations failed after retries",
	})

	// PublishFailures counts evaluation handoff events that could not be
	// published after retries.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dealdojo",
		Subsystem: "engine",
		Name:      "publish_failures_total",
		Help:      "Evaluation handoff publishes failed after retries",
	})
)
