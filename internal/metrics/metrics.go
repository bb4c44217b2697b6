// Package metrics exposes the autoposter's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoposter"

// Metrics holds all Prometheus metrics of the daemon. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PostsPublished    prometheus.Counter
	CycleFailures     *prometheus.CounterVec
	CycleAttempts     prometheus.Histogram
	TickFailures      prometheus.Counter
	ConsecutiveErrors prometheus.Gauge
	RecoveredPanics   prometheus.Counter
	RepliesPosted     *prometheus.CounterVec
	Adaptations       prometheus.Counter
}

// New registers the metrics on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PostsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_published_total",
			Help:      "Posts published successfully.",
		}),
		CycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Publish cycles that exhausted their retries, by error kind.",
		}, []string{"kind"}),
		CycleAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_attempts",
			Help:      "Attempts used by each publish cycle.",
			Buckets:   []float64{1, 2, 3, 5, 10},
		}),
		TickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_failures_total",
			Help:      "Loop ticks that failed outside the publish cycle.",
		}),
		ConsecutiveErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_errors",
			Help:      "Current count of consecutive tick failures.",
		}),
		RecoveredPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_panics_total",
			Help:      "Panics recovered inside the loop.",
		}),
		RepliesPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comment_replies_total",
			Help:      "Comment replies by status.",
		}, []string{"status"}),
		Adaptations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adaptations_total",
			Help:      "Weekly adaptation runs applied.",
		}),
	}

	reg.MustRegister(
		m.PostsPublished,
		m.CycleFailures,
		m.CycleAttempts,
		m.TickFailures,
		m.ConsecutiveErrors,
		m.RecoveredPanics,
		m.RepliesPosted,
		m.Adaptations,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObservePost(attempts int) {
	if m == nil {
		return
	}
	m.PostsPublished.Inc()
	m.CycleAttempts.Observe(float64(attempts))
}

func (m *Metrics) ObserveCycleFailure(kind string, attempts int) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unclassified"
	}
	m.CycleFailures.WithLabelValues(kind).Inc()
	m.CycleAttempts.Observe(float64(attempts))
}

func (m *Metrics) ObserveTickFailure(consecutive int) {
	if m == nil {
		return
	}
	m.TickFailures.Inc()
	m.ConsecutiveErrors.Set(float64(consecutive))
}

func (m *Metrics) ObserveTickSuccess() {
	if m == nil {
		return
	}
	m.ConsecutiveErrors.Set(0)
}

func (m *Metrics) ObserveRecovered() {
	if m == nil {
		return
	}
	m.RecoveredPanics.Inc()
}

func (m *Metrics) ObserveReply(status string) {
	if m == nil {
		return
	}
	m.RepliesPosted.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveAdaptation() {
	if m == nil {
		return
	}
	m.Adaptations.Inc()
}
