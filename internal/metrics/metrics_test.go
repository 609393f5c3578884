package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/internal/metrics"
	"github.com/ogulcanaydogan/vitalwatch/pkg/engine"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

func TestMetrics_ObserveEvaluation(t *testing.T) {
	m := metrics.New()
	m.ObserveEvaluation(&model.EvaluationResult{
		Status: model.StatusCritical,
		Insights: []model.Insight{
			{Kind: model.KindRange, Severity: model.SeverityCritical},
			{Kind: model.KindRange, Severity: model.SeverityCritical},
			{Kind: model.KindTrend, Severity: model.SeverityInfo},
		},
		AlertsCreated: []model.AlertRecord{{Severity: model.SeverityCritical}, {Severity: model.SeverityCritical}},
		NotificationsSent: []model.NotificationAttempt{
			{Channel: model.ChannelInApp, Audience: model.AudienceSubject, Success: true},
			{Channel: model.ChannelSMS, Audience: model.AudienceEmergencyContact, Success: false},
		},
		InsufficientData: true,
	}, 3*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Readings.WithLabelValues("critical")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Insights.WithLabelValues("range", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Insights.WithLabelValues("trend", "info")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Alerts.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationAttempts.WithLabelValues("sms", "emergency_contact", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InsufficientDataTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EvaluationDuration))
}

func TestMetrics_ObserveFailure(t *testing.T) {
	m := metrics.New()
	m.ObserveFailure(engine.PersistenceFailure)
	m.ObserveFailure(engine.PersistenceFailure)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationFailures.WithLabelValues("persistence_failure")))
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.ObserveFailure(engine.ConfigurationError)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `vitalwatch_evaluation_failures_total{kind="configuration_error"} 1`)
}
