package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/engine"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

const maxBodySize = 1 << 20

// Server exposes the engine over HTTP.
type Server struct {
	engine  *engine.Engine
	metrics http.Handler
	mux     *http.ServeMux
	logger  *slog.Logger
}

// NewServer creates an API server. metrics may be nil.
func NewServer(e *engine.Engine, metrics http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		engine:  e,
		metrics: metrics,
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/subjects/{id}/readings", s.handleSubmitReading)
	s.mux.HandleFunc("GET /api/v1/subjects/{id}/alerts", s.handleListAlerts)
	s.mux.HandleFunc("GET /api/v1/subjects/{id}/notifications", s.handleNotifications)
	s.mux.HandleFunc("POST /api/v1/subjects/{id}/sos", s.handleSOS)
	s.mux.HandleFunc("POST /api/v1/alerts/{id}/ack", s.handleAcknowledge)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ReadingRequest is the body of a reading submission. A missing timestamp means now.
type ReadingRequest struct {
	Timestamp time.Time           `json:"timestamp"`
	Metrics   map[string]*float64 `json:"metrics"`
}

// AckRequest is the body of an acknowledgement.
type AckRequest struct {
	Actor string `json:"actor"`
}

// SOSRequest is the body of a manual emergency escalation. The body is optional.
type SOSRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitReading(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req ReadingRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err))
		return
	}
	if len(req.Metrics) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody(errors.New("metrics are required")))
		return
	}

	res, err := s.engine.SubmitReading(ctx, r.PathValue("id"), req.Metrics, req.Timestamp)
	if err != nil {
		s.fail(w, "submit reading", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	filter := model.AlertFilter{SubjectID: r.PathValue("id"), OpenOnly: q.Get("open") == "true"}
	if v := q.Get("min_severity"); v != "" {
		sev, err := model.ParseSeverity(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err))
			return
		}
		filter.MinSeverity = sev
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Errorf("invalid limit %q", v)))
			return
		}
		filter.Limit = n
	}

	records, err := s.engine.Alerts(ctx, filter)
	if err != nil {
		s.fail(w, "list alerts", err)
		return
	}
	if records == nil {
		records = []model.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	attempts, err := s.engine.Notifications(ctx, r.PathValue("id"))
	if err != nil {
		s.fail(w, "list notifications", err)
		return
	}
	if attempts == nil {
		attempts = []model.NotificationAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleSOS(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req SOSRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err))
			return
		}
	}

	res, err := s.engine.TriggerSOS(ctx, r.PathValue("id"), req.Message)
	if err != nil {
		s.fail(w, "trigger sos", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req AckRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err))
			return
		}
	}

	ok, err := s.engine.AcknowledgeAlert(ctx, r.PathValue("id"), req.Actor)
	if err != nil {
		s.fail(w, "acknowledge alert", err)
		return
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]bool{"acknowledged": ok})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.ConfigurationError:
		status = http.StatusBadRequest
	case engine.PersistenceFailure:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.logger.Error(op, "error", err)
	}
	writeJSON(w, status, errorBody(err))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
