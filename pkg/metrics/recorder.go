// Package metrics provides Prometheus-based metrics recording for agent
// request handling.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records orchestrator-level metrics.
type Recorder struct {
	requestsTotal      *prometheus.CounterVec
	generationFailures *prometheus.CounterVec
	safetyVerdicts     *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
}

// New creates a recorder registered against the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered against reg. Tests use
// a private registry to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_requests_total",
				Help: "Total number of agent requests by path",
			},
			[]string{"path"},
		),
		generationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_generation_failures_total",
				Help: "Total number of generation backend failures by provider",
			},
			[]string{"provider"},
		),
		safetyVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_safety_verdicts_total",
				Help: "Total number of safety verdicts by tier and outcome",
			},
			[]string{"tier", "verdict"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_step_duration_seconds",
				Help:    "Duration of plan step execution in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}
}

// ObserveRequest counts one request on the named path ("respond",
// "stream", "execute_plan").
func (r *Recorder) ObserveRequest(path string) {
	r.requestsTotal.WithLabelValues(path).Inc()
}

// ObserveGenerationFailure counts one backend failure.
func (r *Recorder) ObserveGenerationFailure(provider string) {
	r.generationFailures.WithLabelValues(provider).Inc()
}

// ObserveSafetyVerdict counts one safety decision.
func (r *Recorder) ObserveSafetyVerdict(tier string, safe bool) {
	verdict := "safe"
	if !safe {
		verdict = "unsafe"
	}
	r.safetyVerdicts.WithLabelValues(tier, verdict).Inc()
}

// ObserveStepDuration records how long one plan step took.
func (r *Recorder) ObserveStepDuration(status string, d time.Duration) {
	r.stepDuration.WithLabelValues(status).Observe(d.Seconds())
}
