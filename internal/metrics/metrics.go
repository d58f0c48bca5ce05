// Package metrics exposes Prometheus collectors for conversation turns,
// retrieval strategies and collaborator failures.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors registered with Registry.
var (
	// TurnsTotal counts completed turns by final phase and intent.
	TurnsTotal *prometheus.CounterVec

	// TurnDuration observes end-to-end turn latency.
	TurnDuration prometheus.Histogram

	// StrategyAttemptsTotal counts retrieval strategy attempts by outcome.
	StrategyAttemptsTotal *prometheus.CounterVec

	// AggregationsTotal counts count-queries that bypassed similarity search.
	AggregationsTotal *prometheus.CounterVec

	// FallbacksTotal counts degraded synthesis paths by reason.
	FallbacksTotal *prometheus.CounterVec

	// CollaboratorErrorsTotal counts failures by collaborator and operation.
	CollaboratorErrorsTotal *prometheus.CounterVec

	// Registry holds every collector above. A dedicated registry keeps tests
	// and embedded use free of global default-registry collisions.
	Registry = prometheus.NewRegistry()
)

func init() {
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sercha_chat",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total completed conversation turns",
		},
		[]string{"phase", "intent"},
	)

	TurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sercha_chat",
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency",
			Buckets:   prometheus.DefBuckets,
		},
	)

	StrategyAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sercha_chat",
			Subsystem: "retrieval",
			Name:      "strategy_attempts_total",
			Help:      "Retrieval strategy attempts by outcome",
		},
		[]string{"strategy", "outcome"},
	)

	AggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sercha_chat",
			Subsystem: "retrieval",
			Name:      "aggregations_total",
			Help:      "Aggregation queries answered by count",
		},
		[]string{"outcome"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sercha_chat",
			Subsystem: "synthesis",
			Name:      "fallbacks_total",
			Help:      "Degraded synthesis paths taken",
		},
		[]string{"reason"},
	)

	CollaboratorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sercha_chat",
			Subsystem: "collaborator",
			Name:      "errors_total",
			Help:      "Collaborator call failures",
		},
		[]string{"collaborator", "operation"},
	)

	Registry.MustRegister(
		TurnsTotal,
		TurnDuration,
		StrategyAttemptsTotal,
		AggregationsTotal,
		FallbacksTotal,
		CollaboratorErrorsTotal,
	)
}

// Handler returns an HTTP handler serving the registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
