package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/vitalwatch/pkg/alerts"
	"github.com/ogulcanaydogan/vitalwatch/pkg/analysis"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
	"github.com/ogulcanaydogan/vitalwatch/pkg/reminders"
	"github.com/ogulcanaydogan/vitalwatch/pkg/severity"
	"github.com/ogulcanaydogan/vitalwatch/pkg/storage"
	"github.com/ogulcanaydogan/vitalwatch/pkg/window"
)

// Recorder receives evaluation outcomes, typically for metrics.
type Recorder interface {
	ObserveEvaluation(res *model.EvaluationResult, elapsed time.Duration)
	ObserveFailure(kind Kind)
}

// Options wires an Engine. Store, Ranges, Windows and Dispatcher are required;
// the analysis stages default to their standard settings.
type Options struct {
	Store      storage.Store
	Ranges     analysis.RangeTable
	Windows    *window.Manager
	Anomaly    *analysis.AnomalyDetector
	Trend      *analysis.TrendAnalyzer
	Forecast   *analysis.ForecastEngine
	Classifier *severity.Classifier
	Lifecycle  *alerts.Lifecycle
	Dispatcher *notify.Dispatcher
	Recorder   Recorder
	Logger     *slog.Logger
}

// Engine is the entry point for submitting readings and managing alerts.
type Engine struct {
	store      storage.Store
	ranges     analysis.RangeTable
	windows    *window.Manager
	anomaly    *analysis.AnomalyDetector
	trend      *analysis.TrendAnalyzer
	forecast   *analysis.ForecastEngine
	classifier *severity.Classifier
	lifecycle  *alerts.Lifecycle
	dispatcher *notify.Dispatcher
	recorder   Recorder
	logger     *slog.Logger
	locks      *subjectLocks
	now        func() time.Time
}

// New validates opts and creates an engine.
func New(opts Options) (*Engine, error) {
	var problems []error
	if opts.Store == nil {
		problems = append(problems, errors.New("store is required"))
	}
	if opts.Windows == nil {
		problems = append(problems, errors.New("window manager is required"))
	}
	if opts.Dispatcher == nil {
		problems = append(problems, errors.New("dispatcher is required"))
	}
	if err := opts.Ranges.Validate(); err != nil {
		problems = append(problems, fmt.Errorf("range table: %w", err))
	}
	if opts.Anomaly != nil {
		if c := opts.Anomaly.Contamination; c <= 0 || c > 0.5 {
			problems = append(problems, fmt.Errorf("anomaly contamination %v: %w", c, analysis.ErrContamination))
		}
	}
	if len(problems) > 0 {
		return nil, configErr("create engine", errors.Join(problems...))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:      opts.Store,
		ranges:     opts.Ranges,
		windows:    opts.Windows,
		anomaly:    opts.Anomaly,
		trend:      opts.Trend,
		forecast:   opts.Forecast,
		classifier: opts.Classifier,
		lifecycle:  opts.Lifecycle,
		dispatcher: opts.Dispatcher,
		recorder:   opts.Recorder,
		logger:     logger,
		locks:      newSubjectLocks(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if e.anomaly == nil {
		e.anomaly = analysis.NewAnomalyDetector(analysis.NewIsolationForest(100, 42), 0.1)
	}
	if e.trend == nil {
		e.trend = analysis.NewTrendAnalyzer(0.1)
	}
	if e.forecast == nil {
		e.forecast = analysis.NewForecastEngine(4, 10)
	}
	if e.classifier == nil {
		e.classifier = severity.NewClassifier()
	}
	if e.lifecycle == nil {
		e.lifecycle = alerts.NewLifecycle(opts.Store, alerts.DefaultBucket, logger)
	}
	return e, nil
}

// SetClock replaces the clock used to stamp readings submitted without a timestamp.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SubmitReading evaluates one reading for a subject: it range checks the
// reading, updates the subject's window, runs the statistical analyses,
// classifies the findings, commits the reading together with any new alerts,
// and then dispatches notifications. Readings for the same subject are
// evaluated one at a time. A zero ts means now.
func (e *Engine) SubmitReading(ctx context.Context, subjectID string, metrics map[string]*float64, ts time.Time) (*model.EvaluationResult, error) {
	start := time.Now()
	res, err := e.submit(ctx, subjectID, metrics, ts)
	if e.recorder != nil {
		if err != nil {
			e.recorder.ObserveFailure(KindOf(err))
		} else {
			e.recorder.ObserveEvaluation(res, time.Since(start))
		}
	}
	return res, err
}

func (e *Engine) submit(ctx context.Context, subjectID string, metrics map[string]*float64, ts time.Time) (*model.EvaluationResult, error) {
	const op = "submit reading"

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, configErr(op, errors.New("subject id is empty"))
	}
	for name, v := range metrics {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return nil, configErr(op, fmt.Errorf("metric %s is not a finite number", name))
		}
	}
	if ts.IsZero() {
		ts = e.now()
	}

	unlock := e.locks.lock(subjectID)
	defer unlock()

	reading := model.NewReading(uuid.New().String(), subjectID, metrics, ts)
	insights := analysis.CheckRanges(reading, e.ranges)

	win, err := e.windows.Push(ctx, reading)
	if err != nil {
		e.windows.Invalidate(subjectID)
		return nil, persistErr(op, fmt.Errorf("load window: %w", err))
	}

	// A reading older than the window's newest only gets its own range check;
	// re-running the window analyses would re-examine readings already evaluated.
	late := win[len(win)-1].ID != reading.ID
	var anomalies analysis.AnomalyResult
	var trends analysis.TrendResult
	var forecast analysis.ForecastResult
	if late {
		e.logger.Warn("late reading skips window analysis",
			"subject", subjectID,
			"reading_id", reading.ID,
			"timestamp", reading.Timestamp,
			"newest", win[len(win)-1].Timestamp,
		)
	} else {
		anomalies, err = e.anomaly.Detect(win)
		if err != nil {
			e.windows.Invalidate(subjectID)
			return nil, configErr(op, err)
		}
		trends = e.trend.Analyze(win)
		forecast = e.forecast.Forecast(win)
	}

	insights = append(insights, anomalies.Insights...)
	insights = append(insights, trends.Insights...)
	insights = append(insights, forecast.Insights...)
	assessment := e.classifier.Classify(insights)

	// Recipients are loaded before the commit; a lookup failure leaves nothing
	// persisted.
	to, err := e.loadRecipients(ctx, subjectID, assessment.Overall)
	if err != nil {
		e.windows.Invalidate(subjectID)
		e.logger.Error("evaluation aborted", "subject", subjectID, "reading_id", reading.ID, "error", err)
		return nil, persistErr(op, err)
	}

	var created []model.AlertRecord
	err = e.store.WithinTx(ctx, func(tx storage.Store) error {
		created = created[:0]
		if err := tx.AppendReading(ctx, &reading); err != nil {
			return fmt.Errorf("append reading: %w", err)
		}
		lc := e.lifecycle.WithStore(tx)
		for _, in := range assessment.Insights {
			rec, err := lc.Evaluate(ctx, subjectID, in, reading.Timestamp)
			if err != nil {
				return err
			}
			if rec != nil {
				created = append(created, *rec)
			}
		}
		return nil
	})
	if err != nil {
		e.windows.Invalidate(subjectID)
		e.logger.Error("evaluation aborted", "subject", subjectID, "reading_id", reading.ID, "error", err)
		return nil, persistErr(op, err)
	}

	result := &model.EvaluationResult{
		SubjectID:        subjectID,
		ReadingID:        reading.ID,
		Status:           assessment.Status,
		Insights:         assessment.Insights,
		AlertsCreated:    created,
		InsufficientData: anomalies.Insufficient || trends.Insufficient || forecast.Insufficient,
		Late:             late,
	}
	if result.Insights == nil {
		result.Insights = []model.Insight{}
	}
	if result.AlertsCreated == nil {
		result.AlertsCreated = []model.AlertRecord{}
	}
	result.NotificationsSent = e.notify(ctx, subjectID, assessment, created, to, reading.Timestamp)
	if result.NotificationsSent == nil {
		result.NotificationsSent = []model.NotificationAttempt{}
	}

	e.logger.Info("reading evaluated",
		"subject", subjectID,
		"reading_id", reading.ID,
		"status", result.Status,
		"insights", len(result.Insights),
		"alerts_created", len(created),
		"notifications", len(result.NotificationsSent),
		"insufficient_data", result.InsufficientData,
		"late", late,
	)
	return result, nil
}

// recipientSet holds the subject's preferences and emergency contacts for one
// dispatch.
type recipientSet struct {
	pref     *model.NotificationPreference
	contacts []model.EmergencyContact
}

// loadRecipients loads preferences from warning up and contacts at critical. A
// subject without stored preferences is not an error.
func (e *Engine) loadRecipients(ctx context.Context, subjectID string, level model.Severity) (recipientSet, error) {
	var r recipientSet
	if level >= model.SeverityWarning {
		pref, err := e.store.LoadPreferences(ctx, subjectID)
		switch {
		case err == nil:
			r.pref = pref
		case !errors.Is(err, storage.ErrNotFound):
			return r, fmt.Errorf("load notification preferences: %w", err)
		}
	}
	if level >= model.SeverityCritical {
		contacts, err := e.store.ListEmergencyContacts(ctx, subjectID)
		if err != nil {
			return r, fmt.Errorf("load emergency contacts: %w", err)
		}
		r.contacts = contacts
	}
	return r, nil
}

// notify dispatches once for the evaluation. New alerts drive the dispatch at
// their highest severity; an evaluation with only info findings goes to the
// in-app channel; deduplicated alerts send nothing.
func (e *Engine) notify(ctx context.Context, subjectID string, a severity.Assessment, created []model.AlertRecord, to recipientSet, at time.Time) []model.NotificationAttempt {
	req := notify.Request{SubjectID: subjectID}
	var insights []model.Insight

	switch {
	case len(created) > 0:
		lead := created[0]
		for _, rec := range created[1:] {
			if rec.Severity > lead.Severity {
				lead = rec
			}
		}
		req.AlertID = lead.ID
		req.Severity = lead.Severity
		insights = alertedInsights(a.Insights, created)
	case a.Overall == model.SeverityInfo:
		req.Severity = model.SeverityInfo
		insights = a.Insights
	default:
		return nil
	}

	req.Message = notify.AlertMessage(subjectID, req.AlertID, req.Severity, insights, at)
	if req.Severity >= model.SeverityWarning {
		req.Preference = to.pref
	}
	if req.Severity >= model.SeverityCritical {
		req.Emergency = notify.EmergencyMessage(subjectID, req.AlertID, insights, at)
		req.Contacts = to.contacts
	}
	return e.dispatch(ctx, req)
}

func (e *Engine) dispatch(ctx context.Context, req notify.Request) []model.NotificationAttempt {
	res := e.dispatcher.Dispatch(ctx, req)
	if t := res.Tiers[notify.TierEmergency]; t.Required && !t.Success {
		e.logger.Error("emergency escalation not delivered",
			"subject", req.SubjectID,
			"alert_id", req.AlertID,
			"attempts", t.Attempts,
		)
	}
	return res.Attempts
}

func alertedInsights(insights []model.Insight, created []model.AlertRecord) []model.Insight {
	type key struct {
		kind   model.InsightKind
		metric string
	}
	alerted := make(map[key]bool, len(created))
	for _, rec := range created {
		alerted[key{rec.Kind, rec.Metric}] = true
	}
	var out []model.Insight
	for _, in := range insights {
		if alerted[key{in.Kind, in.Metric}] {
			out = append(out, in)
		}
	}
	return out
}

// AcknowledgeAlert marks an alert acknowledged by actor. It reports false for
// an unknown id and true, without side effects, for an already acknowledged one.
func (e *Engine) AcknowledgeAlert(ctx context.Context, alertID, actor string) (bool, error) {
	const op = "acknowledge alert"
	alertID = strings.TrimSpace(alertID)
	if alertID == "" {
		return false, configErr(op, errors.New("alert id is empty"))
	}
	ok, err := e.lifecycle.Acknowledge(ctx, alertID, actor)
	if err != nil {
		return false, persistErr(op, err)
	}
	return ok, nil
}

// TriggerSOS raises a critical alert on the subject's own request and notifies
// every emergency contact with note and the latest vital signs. SOS alerts are
// never deduplicated.
func (e *Engine) TriggerSOS(ctx context.Context, subjectID, note string) (*model.SOSResult, error) {
	res, err := e.triggerSOS(ctx, subjectID, note)
	if err != nil && e.recorder != nil {
		e.recorder.ObserveFailure(KindOf(err))
	}
	return res, err
}

func (e *Engine) triggerSOS(ctx context.Context, subjectID, note string) (*model.SOSResult, error) {
	const op = "trigger sos"

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, configErr(op, errors.New("subject id is empty"))
	}
	note = strings.TrimSpace(note)

	unlock := e.locks.lock(subjectID)
	defer unlock()

	win, err := e.windows.Snapshot(ctx, subjectID)
	if err != nil {
		return nil, persistErr(op, fmt.Errorf("load window: %w", err))
	}
	to, err := e.loadRecipients(ctx, subjectID, model.SeverityCritical)
	if err != nil {
		return nil, persistErr(op, err)
	}

	at := e.now()
	msg := "SOS requested"
	if note != "" {
		msg += ": " + note
	}
	rec, err := e.lifecycle.Raise(ctx, subjectID, model.Insight{
		Kind:      model.KindSOS,
		Severity:  model.SeverityCritical,
		Message:   msg,
		Timestamp: at,
	})
	if err != nil {
		return nil, persistErr(op, err)
	}

	var latest *model.Reading
	if len(win) > 0 {
		latest = &win[len(win)-1]
	}
	sos := notify.SOSMessage(subjectID, rec.ID, note, latest, at)
	attempts := e.dispatch(ctx, notify.Request{
		SubjectID:  subjectID,
		AlertID:    rec.ID,
		Severity:   model.SeverityCritical,
		Message:    sos,
		Emergency:  sos,
		Preference: to.pref,
		Contacts:   to.contacts,
	})
	if attempts == nil {
		attempts = []model.NotificationAttempt{}
	}
	e.logger.Warn("sos triggered",
		"subject", subjectID,
		"alert_id", rec.ID,
		"contacts", len(to.contacts),
		"notifications", len(attempts),
	)
	return &model.SOSResult{SubjectID: subjectID, Alert: *rec, NotificationsSent: attempts}, nil
}

// CheckDue sends an in-app reminder for every medication dose due around now
// and returns the due doses.
func (e *Engine) CheckDue(ctx context.Context, subjectID string, now time.Time) ([]model.Reminder, error) {
	const op = "check due medications"
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, configErr(op, errors.New("subject id is empty"))
	}
	if now.IsZero() {
		now = e.now()
	}

	meds, err := e.store.ListActiveMedications(ctx, subjectID, now)
	if err != nil {
		return nil, persistErr(op, err)
	}
	due := reminders.Due(meds, now)
	for _, r := range due {
		res := e.dispatcher.Dispatch(ctx, notify.Request{
			SubjectID: subjectID,
			Severity:  model.SeverityInfo,
			Message:   notify.ReminderMessage(r),
		})
		e.logger.Info("medication reminder",
			"subject", subjectID,
			"medication", r.Medication.Name,
			"due_at", r.DueAt,
			"delivered", res.Delivered(),
		)
	}
	return due, nil
}

// Alerts lists alerts matching the filter.
func (e *Engine) Alerts(ctx context.Context, filter model.AlertFilter) ([]model.AlertRecord, error) {
	recs, err := e.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, persistErr("list alerts", err)
	}
	return recs, nil
}

// Notifications returns the subject's notification audit log, oldest first.
func (e *Engine) Notifications(ctx context.Context, subjectID string) ([]model.NotificationAttempt, error) {
	attempts, err := e.store.ListNotificationAttempts(ctx, subjectID)
	if err != nil {
		return nil, persistErr("list notifications", err)
	}
	return attempts, nil
}
