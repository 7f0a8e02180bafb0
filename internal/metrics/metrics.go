// Package metrics holds the Prometheus collectors of the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invocation outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeGenerationError = "generation_error"
	OutcomePlatformError   = "platform_error"
	OutcomeInvalidRequest  = "invalid_request"
	OutcomeError           = "error"
)

var (
	// SummariesTotal counts finished summary invocations by outcome.
	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tldrbot",
			Subsystem: "summary",
			Name:      "invocations_total",
			Help:      "Total number of summary invocations by outcome",
		},
		[]string{"outcome"},
	)

	// EditsTotal counts edits of summary messages by kind.
	EditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tldrbot",
			Subsystem: "summary",
			Name:      "edits_total",
			Help:      "Total number of summary message edits by kind",
		},
		[]string{"kind"},
	)

	// GenerationDuration observes how long generation calls take.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tldrbot",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Generation call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	// UpdatesTotal counts received platform updates by kind.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tldrbot",
			Subsystem: "bot",
			Name:      "updates_total",
			Help:      "Total number of received updates by kind",
		},
		[]string{"kind"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
