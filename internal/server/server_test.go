package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/internal/metrics"
	"github.com/ogulcanaydogan/vitalwatch/internal/server"
	"github.com/ogulcanaydogan/vitalwatch/pkg/analysis"
	"github.com/ogulcanaydogan/vitalwatch/pkg/engine"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
	"github.com/ogulcanaydogan/vitalwatch/pkg/storage"
	"github.com/ogulcanaydogan/vitalwatch/pkg/window"
)

type nopSender struct{ ch model.Channel }

func (n nopSender) Channel() model.Channel { return n.ch }

func (nopSender) Send(context.Context, string, notify.Message) error { return nil }

func setupServer(t *testing.T) *server.Server {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	windows, err := window.NewManager(model.WindowPolicy{Mode: model.WindowByCount, Size: 100}, store, 16)
	require.NoError(t, err)
	reg, err := notify.NewRegistry(nopSender{model.ChannelInApp})
	require.NoError(t, err)

	m := metrics.New()
	eng, err := engine.New(engine.Options{
		Store: store,
		Ranges: analysis.RangeTable{
			model.MetricHeartRate:        {Metric: model.MetricHeartRate, Min: 60, Max: 100},
			model.MetricOxygenSaturation: {Metric: model.MetricOxygenSaturation, Min: 95, Max: 100},
		},
		Windows:    windows,
		Dispatcher: notify.NewDispatcher(reg, store, time.Second, logger),
		Recorder:   m,
		Logger:     logger,
	})
	require.NoError(t, err)

	return server.NewServer(eng, m.Handler(), logger)
}

func do(t *testing.T, srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	err := json.NewDecoder(w.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
}

func TestServer_SubmitReadingAndAcknowledge(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, "POST", "/api/v1/subjects/p1/readings",
		`{"timestamp":"2026-06-01T09:00:00Z","metrics":{"heart_rate":150,"oxygen_saturation":null}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res model.EvaluationResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, model.StatusCritical, res.Status)
	require.Len(t, res.AlertsCreated, 1)
	require.Len(t, res.NotificationsSent, 1)
	alertID := res.AlertsCreated[0].ID

	w = do(t, srv, "GET", "/api/v1/subjects/p1/alerts?open=true&min_severity=warning", "")
	require.Equal(t, http.StatusOK, w.Code)
	var open []model.AlertRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&open))
	require.Len(t, open, 1)
	assert.Equal(t, alertID, open[0].ID)

	for i := 0; i < 2; i++ {
		w = do(t, srv, "POST", "/api/v1/alerts/"+alertID+"/ack", `{"actor":"nurse"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"acknowledged":true}`, w.Body.String())
	}

	w = do(t, srv, "GET", "/api/v1/subjects/p1/alerts?open=true", "")
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, srv, "GET", "/api/v1/subjects/p1/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	var attempts []model.NotificationAttempt
	require.NoError(t, json.NewDecoder(w.Body).Decode(&attempts))
	assert.Len(t, attempts, 1)
}

func TestServer_SOS(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, "POST", "/api/v1/subjects/p1/sos", `{"message":"chest pain"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res model.SOSResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "p1", res.SubjectID)
	assert.Equal(t, model.KindSOS, res.Alert.Kind)
	assert.Equal(t, model.SeverityCritical, res.Alert.Severity)
	assert.Equal(t, "SOS requested: chest pain", res.Alert.Message)
	require.Len(t, res.NotificationsSent, 1)

	w = do(t, srv, "POST", "/api/v1/subjects/p1/sos", "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, srv, "GET", "/api/v1/subjects/p1/alerts?open=true", "")
	var open []model.AlertRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&open))
	assert.Len(t, open, 2)

	w = do(t, srv, "POST", "/api/v1/subjects/p1/sos", `{"note":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, srv, "POST", "/api/v1/subjects/%20/sos", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_AcknowledgeUnknown(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, "POST", "/api/v1/alerts/nope/ack", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"acknowledged":false}`, w.Body.String())
}

func TestServer_BadRequests(t *testing.T) {
	srv := setupServer(t)

	tests := []struct {
		name, method, path, body string
	}{
		{"malformed json", "POST", "/api/v1/subjects/p1/readings", `{"metrics":`},
		{"no metrics", "POST", "/api/v1/subjects/p1/readings", `{"metrics":{}}`},
		{"unknown field", "POST", "/api/v1/subjects/p1/readings", `{"metrics":{"heart_rate":70},"extra":1}`},
		{"blank subject", "POST", "/api/v1/subjects/%20/readings", `{"metrics":{"heart_rate":70}}`},
		{"bad severity", "GET", "/api/v1/subjects/p1/alerts?min_severity=loud", ""},
		{"bad limit", "GET", "/api/v1/subjects/p1/alerts?limit=-1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, "POST", "/api/v1/subjects/p1/readings", `{"metrics":{"heart_rate":72}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `vitalwatch_readings_total{status="normal"} 1`)
}
