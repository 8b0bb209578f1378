package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the previewer does against the remote service.
//
// Usage:
//
//	m := metrics.New(prometheus.NewRegistry())
//	m.GenerationOutcomes.WithLabelValues("succeeded").Inc()
type Metrics struct {
	// GenerationOutcomes counts finished generations.
	// Labels: outcome (succeeded or a failure kind)
	GenerationOutcomes *prometheus.CounterVec

	// GenerationRequests counts POSTs to the inference API, retries included.
	// Labels: status (HTTP status code, or "transport")
	GenerationRequests *prometheus.CounterVec

	// GenerationDuration measures a whole generation, probe and retries included.
	GenerationDuration prometheus.Histogram

	// ProbeResults counts availability probes.
	// Labels: status (available|loading|error)
	ProbeResults *prometheus.CounterVec

	// CrossOriginChecks counts cross-origin checks.
	// Labels: result (detected|not_detected|inconclusive)
	CrossOriginChecks *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GenerationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "t2i",
			Name:      "generation_outcomes_total",
			Help:      "Finished image generations by outcome.",
		}, []string{"outcome"}),
		GenerationRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "t2i",
			Name:      "generation_requests_total",
			Help:      "Generation calls sent to the inference API by response status.",
		}, []string{"status"}),
		GenerationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "t2i",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of a generation including probing and retries.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		ProbeResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "t2i",
			Name:      "probe_results_total",
			Help:      "Model availability probes by resulting status.",
		}, []string{"status"}),
		CrossOriginChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "t2i",
			Name:      "cross_origin_checks_total",
			Help:      "Cross-origin checks by result.",
		}, []string{"result"}),
	}
}

// Noop returns unregistered collectors for callers that don't export metrics.
func Noop() *Metrics { return New(nil) }
