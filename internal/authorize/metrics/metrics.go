package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the authorize pipeline and the flows around it.
type Metrics struct {
	// Step latency by phase, step name and outcome
	StepDuration *prometheus.HistogramVec

	// Persist decisions by outcome: authorized, rejected, noop, or the failing error kind
	PersistOutcomes *prometheus.CounterVec

	// Confirm submissions by outcome: redirect, error_redirect, retry
	ConfirmOutcomes *prometheus.CounterVec

	ScopeInjections prometheus.Counter

	PipelineReloads *prometheus.CounterVec
}

// New creates a new Metrics instance with all authorize metrics registered.
func New() *Metrics {
	return &Metrics{
		StepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "obconsent_authorize_step_duration_seconds",
			Help:    "Duration of authorize step executions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"phase", "step", "outcome"}),

		PersistOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "obconsent_authorize_persist_outcomes_total",
			Help: "Total consent persist outcomes",
		}, []string{"outcome"}),

		ConfirmOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "obconsent_confirm_outcomes_total",
			Help: "Total consent confirm submissions by resulting redirect",
		}, []string{"outcome"}),

		ScopeInjections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "obconsent_oauth2_consent_scope_injections_total",
			Help: "Total consent scopes appended to approved scope sets",
		}),

		PipelineReloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "obconsent_authorize_pipeline_builds_total",
			Help: "Total authorize pipeline builds by result",
		}, []string{"result"}),
	}
}

// ObserveStep records one step execution.
func (m *Metrics) ObserveStep(phase, step, outcome string, d time.Duration) {
	if m != nil {
		m.StepDuration.WithLabelValues(phase, step, outcome).Observe(d.Seconds())
	}
}

// IncPersistOutcome records the result of a persist run.
func (m *Metrics) IncPersistOutcome(outcome string) {
	if m != nil {
		m.PersistOutcomes.WithLabelValues(outcome).Inc()
	}
}

// IncConfirmOutcome records where a confirm submission was redirected.
func (m *Metrics) IncConfirmOutcome(outcome string) {
	if m != nil {
		m.ConfirmOutcomes.WithLabelValues(outcome).Inc()
	}
}

// IncScopeInjection records an appended consent scope.
func (m *Metrics) IncScopeInjection() {
	if m != nil {
		m.ScopeInjections.Inc()
	}
}

// IncPipelineBuild records a pipeline build; result is "ok" or "degraded".
func (m *Metrics) IncPipelineBuild(result string) {
	if m != nil {
		m.PipelineReloads.WithLabelValues(result).Inc()
	}
}
