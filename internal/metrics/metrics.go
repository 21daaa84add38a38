// Package metrics exposes the Prometheus instrumentation for turn
// processing, quota decisions, circuit breaker state, and background
// job health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects every metric the core emits.
type Recorder struct {
	turnsTotal        *prometheus.CounterVec
	turnDuration      *prometheus.HistogramVec
	quotaDenialsTotal *prometheus.CounterVec
	banDropsTotal     prometheus.Counter
	llmErrorsTotal    *prometheus.CounterVec
	circuitState      *prometheus.GaugeVec
	circuitTripsTotal prometheus.Counter
	episodesTotal     *prometheus.CounterVec
	factsTotal        *prometheus.CounterVec
	schedulerRuns     *prometheus.CounterVec
}

// New registers every collector against reg and returns the recorder.
// reg may be nil to register against prometheus's default registerer,
// the production default; tests pass a fresh prometheus.NewRegistry()
// so repeated calls don't panic on duplicate registration.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gryag_turns_total",
				Help: "Total number of orchestrator turns by outcome.",
			},
			[]string{"outcome"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gryag_turn_duration_seconds",
				Help:    "Wall-clock duration of a full turn, from PERSIST_USER to PERSIST_ASSISTANT.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"addressed"},
		),
		quotaDenialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gryag_quota_denials_total",
				Help: "Total number of turns denied by the quota engine, by layer.",
			},
			[]string{"layer"},
		),
		banDropsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gryag_ban_drops_total",
				Help: "Total number of turns dropped because the sender is banned.",
			},
		),
		llmErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gryag_llm_errors_total",
				Help: "Total number of LLM call failures by kind.",
			},
			[]string{"kind"},
		),
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gryag_circuit_state",
				Help: "Current circuit breaker state (0=closed, 1=half_open, 2=open).",
			},
			[]string{"breaker"},
		),
		circuitTripsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gryag_circuit_trips_total",
				Help: "Total number of times the LLM circuit breaker opened.",
			},
		),
		episodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gryag_episodes_finalized_total",
				Help: "Total number of conversation windows finalized into episodes, by valence.",
			},
			[]string{"valence"},
		),
		factsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gryag_facts_extracted_total",
				Help: "Total number of facts persisted by the extractor, by source pass.",
			},
			[]string{"pass"},
		),
		schedulerRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gryag_scheduler_runs_total",
				Help: "Total number of background job runs by job name and outcome.",
			},
			[]string{"job", "outcome"},
		),
	}
}

// ObserveTurn records a completed turn's outcome and, for addressed
// turns, its wall-clock duration.
func (r *Recorder) ObserveTurn(addressed bool, outcome string, duration time.Duration) {
	r.turnsTotal.WithLabelValues(outcome).Inc()
	if addressed {
		r.turnDuration.WithLabelValues("true").Observe(duration.Seconds())
	}
}

// IncQuotaDenial records a quota-engine denial at the given layer
// ("global" or "feature").
func (r *Recorder) IncQuotaDenial(layer string) {
	r.quotaDenialsTotal.WithLabelValues(layer).Inc()
}

// IncBanDrop records a turn dropped because its sender is banned.
func (r *Recorder) IncBanDrop() {
	r.banDropsTotal.Inc()
}

// IncLLMError records an LLM call failure of the given kind (e.g.
// "unavailable", "timeout").
func (r *Recorder) IncLLMError(kind string) {
	r.llmErrorsTotal.WithLabelValues(kind).Inc()
}

// SetCircuitState publishes the current numeric state of a named
// breaker (0 closed, 1 half-open, 2 open).
func (r *Recorder) SetCircuitState(breaker string, state int) {
	r.circuitState.WithLabelValues(breaker).Set(float64(state))
}

// IncCircuitTrip records the breaker transitioning to open.
func (r *Recorder) IncCircuitTrip() {
	r.circuitTripsTotal.Inc()
}

// IncEpisodeFinalized records one conversation window promoted to a
// durable episode.
func (r *Recorder) IncEpisodeFinalized(valence string) {
	r.episodesTotal.WithLabelValues(valence).Inc()
}

// IncFactsExtracted adds n facts persisted by the named pass ("rule",
// "llm", or "combined" when the caller counts both passes together).
func (r *Recorder) IncFactsExtracted(pass string, n int) {
	if n <= 0 {
		return
	}
	r.factsTotal.WithLabelValues(pass).Add(float64(n))
}

// ObserveSchedulerRun records one background job tick's outcome.
func (r *Recorder) ObserveSchedulerRun(job, outcome string) {
	r.schedulerRuns.WithLabelValues(job, outcome).Inc()
}
