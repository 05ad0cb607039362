package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// prediction service.
type Metrics struct {
	// Data acquisition metrics.
	FetchAttempts *prometheus.CounterVec // labels: category, source, outcome={success,error,timeout}
	CacheRefresh  *prometheus.CounterVec // labels: category, result={success,failure}
	StaleEntries  *prometheus.GaugeVec   // labels: category

	// Inference metrics.
	InferenceDuration prometheus.Histogram
	RuleInstances     *prometheus.CounterVec // labels: rule_id
	RuleBindingErrors prometheus.Counter

	// Serving metrics.
	PredictionsServed prometheus.Counter
	AlertsPublished   prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchAttempts,
		m.CacheRefresh,
		m.StaleEntries,
		m.InferenceDuration,
		m.RuleInstances,
		m.RuleBindingErrors,
		m.PredictionsServed,
		m.AlertsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_prediction",
			Name:      "fetch_attempts_total",
			Help:      "Upstream fetch attempts by category, source, and outcome.",
		}, []string{"category", "source", "outcome"}),
		CacheRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_prediction",
			Name:      "cache_refresh_total",
			Help:      "Cache refresh cycles by category and result.",
		}, []string{"category", "result"}),
		StaleEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flood_prediction",
			Name:      "cache_stale_entries",
			Help:      "Number of cache entries currently past their TTL.",
		}, []string{"category"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flood_prediction",
			Name:      "inference_duration_seconds",
			Help:      "Duration of a complete rule evaluation pass.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RuleInstances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_prediction",
			Name:      "rule_instances_total",
			Help:      "Derived facts produced, by rule id.",
		}, []string{"rule_id"}),
		RuleBindingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_prediction",
			Name:      "rule_binding_errors_total",
			Help:      "Rule instances skipped due to an unbound guard operand.",
		}),
		PredictionsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_prediction",
			Name:      "predictions_served_total",
			Help:      "Predictions computed or served from the prediction cache.",
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_prediction",
			Name:      "alerts_published_total",
			Help:      "Early-warning alert events published to Kafka.",
		}),
	}
}
