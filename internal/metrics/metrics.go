package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ogulcanaydogan/vitalwatch/pkg/engine"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// Metrics holds the engine's Prometheus collectors. It implements engine.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	Readings              *prometheus.CounterVec
	Insights              *prometheus.CounterVec
	Alerts                *prometheus.CounterVec
	NotificationAttempts  *prometheus.CounterVec
	EvaluationDuration    prometheus.Histogram
	EvaluationFailures    *prometheus.CounterVec
	InsufficientDataTotal prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Readings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitalwatch",
			Name:      "readings_total",
			Help:      "Readings evaluated, by resulting status.",
		}, []string{"status"}),
		Insights: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitalwatch",
			Name:      "insights_total",
			Help:      "Insights produced, by kind and severity.",
		}, []string{"kind", "severity"}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitalwatch",
			Name:      "alerts_created_total",
			Help:      "Alert records created, by severity.",
		}, []string{"severity"}),
		NotificationAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitalwatch",
			Name:      "notification_attempts_total",
			Help:      "Notification delivery attempts, by channel, audience and outcome.",
		}, []string{"channel", "audience", "success"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vitalwatch",
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate one reading, including dispatch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		EvaluationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitalwatch",
			Name:      "evaluation_failures_total",
			Help:      "Evaluations that returned an error, by error kind.",
		}, []string{"kind"}),
		InsufficientDataTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vitalwatch",
			Name:      "insufficient_data_total",
			Help:      "Evaluations whose window was too small for statistical analysis.",
		}),
	}
}

// ObserveEvaluation records a completed evaluation.
func (m *Metrics) ObserveEvaluation(res *model.EvaluationResult, elapsed time.Duration) {
	m.Readings.WithLabelValues(string(res.Status)).Inc()
	m.EvaluationDuration.Observe(elapsed.Seconds())
	if res.InsufficientData {
		m.InsufficientDataTotal.Inc()
	}
	for _, in := range res.Insights {
		m.Insights.WithLabelValues(string(in.Kind), in.Severity.String()).Inc()
	}
	for _, a := range res.AlertsCreated {
		m.Alerts.WithLabelValues(a.Severity.String()).Inc()
	}
	for _, a := range res.NotificationsSent {
		m.NotificationAttempts.WithLabelValues(string(a.Channel), string(a.Audience), strconv.FormatBool(a.Success)).Inc()
	}
}

// ObserveFailure records an evaluation that returned an error.
func (m *Metrics) ObserveFailure(kind engine.Kind) {
	m.EvaluationFailures.WithLabelValues(kind.String()).Inc()
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ engine.Recorder = (*Metrics)(nil)
