package pipeline

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "pipeline"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of finished submissions, by terminal verdict (accept, reject, error).
	Submissions metrics.Counter
	// Number of failed submissions, by failure kind.
	Failures metrics.Counter
	// Time spent in each pipeline stage, in seconds.
	StageDuration metrics.Histogram
	// Number of submissions currently running.
	InFlight metrics.Gauge
}

// PrometheusMetrics returns Metrics built using the Prometheus client library.
// It registers with the default registry, so call it once per namespace.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Submissions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "submissions_total",
			Help:      "Number of finished submissions by verdict.",
		}, []string{"verdict"}),
		Failures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "failures_total",
			Help:      "Number of failed submissions by failure kind.",
		}, []string{"kind"}),
		StageDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   stdprometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		InFlight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "in_flight",
			Help:      "Number of submissions currently running.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Submissions:   discard.NewCounter(),
		Failures:      discard.NewCounter(),
		StageDuration: discard.NewHistogram(),
		InFlight:      discard.NewGauge(),
	}
}
