package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/pkg/analysis"
	"github.com/ogulcanaydogan/vitalwatch/pkg/engine"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
	"github.com/ogulcanaydogan/vitalwatch/pkg/storage"
	"github.com/ogulcanaydogan/vitalwatch/pkg/window"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func standardRanges() analysis.RangeTable {
	return analysis.RangeTable{
		model.MetricHeartRate:        {Metric: model.MetricHeartRate, Min: 60, Max: 100, Unit: "bpm"},
		model.MetricSystolic:         {Metric: model.MetricSystolic, Min: 90, Max: 140, Unit: "mmHg"},
		model.MetricDiastolic:        {Metric: model.MetricDiastolic, Min: 60, Max: 90, Unit: "mmHg"},
		model.MetricTemperature:      {Metric: model.MetricTemperature, Min: 36.1, Max: 37.2, Unit: "C"},
		model.MetricOxygenSaturation: {Metric: model.MetricOxygenSaturation, Min: 95, Max: 100, Unit: "%"},
	}
}

type sent struct {
	target string
	msg    notify.Message
}

type recordingSender struct {
	ch model.Channel
	mu sync.Mutex
	to []sent
}

func (s *recordingSender) Channel() model.Channel { return s.ch }

func (s *recordingSender) Send(_ context.Context, target string, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, sent{target: target, msg: msg})
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.to)
}

func (s *recordingSender) last() sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.to[len(s.to)-1]
}

// failingStore makes alert writes fail inside transactions.
type failingStore struct {
	storage.Store
}

func (f *failingStore) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx storage.Store) error {
		return fn(&failingStore{Store: tx})
	})
}

func (f *failingStore) AppendAlert(context.Context, *model.AlertRecord) (bool, error) {
	return false, errors.New("disk I/O error")
}

// flakyContacts fails the next `fail` contact lookups.
type flakyContacts struct {
	storage.Store
	mu   sync.Mutex
	fail int
}

func (f *flakyContacts) ListEmergencyContacts(ctx context.Context, subjectID string) ([]model.EmergencyContact, error) {
	f.mu.Lock()
	if f.fail > 0 {
		f.fail--
		f.mu.Unlock()
		return nil, errors.New("database is locked")
	}
	f.mu.Unlock()
	return f.Store.ListEmergencyContacts(ctx, subjectID)
}

type env struct {
	db      *storage.SQLite
	windows *window.Manager
	inApp   *recordingSender
	email   *recordingSender
	sms     *recordingSender
	eng     *engine.Engine
}

func newEnv(t *testing.T, wrap func(storage.Store) storage.Store) *env {
	t.Helper()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "vitals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	windows, err := window.NewManager(model.WindowPolicy{Mode: model.WindowByCount, Size: 100}, db, 64)
	require.NoError(t, err)

	e := &env{
		db:      db,
		windows: windows,
		inApp:   &recordingSender{ch: model.ChannelInApp},
		email:   &recordingSender{ch: model.ChannelEmail},
		sms:     &recordingSender{ch: model.ChannelSMS},
	}
	reg, err := notify.NewRegistry(e.inApp, e.email, e.sms)
	require.NoError(t, err)
	dispatcher := notify.NewDispatcher(reg, db, time.Second, quietLogger())

	var store storage.Store = db
	if wrap != nil {
		store = wrap(db)
	}
	e.eng, err = engine.New(engine.Options{
		Store:      store,
		Ranges:     standardRanges(),
		Windows:    windows,
		Dispatcher: dispatcher,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	return e
}

func (e *env) addContacts(t *testing.T, subject string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.db.AddEmergencyContact(ctx, &model.EmergencyContact{SubjectID: subject, Name: "Ada", Email: "ada@example.com", Phone: "+15550001"}))
	require.NoError(t, e.db.AddEmergencyContact(ctx, &model.EmergencyContact{SubjectID: subject, Name: "Bo", Email: "bo@example.com", Phone: "+15550002"}))
}

func f(v float64) *float64 { return &v }

func normalVitals() map[string]*float64 {
	return map[string]*float64{
		model.MetricHeartRate:        f(72),
		model.MetricSystolic:         f(118),
		model.MetricDiastolic:        f(76),
		model.MetricTemperature:      f(36.6),
		model.MetricOxygenSaturation: f(98),
	}
}

func criticalVitals() map[string]*float64 {
	m := normalVitals()
	m[model.MetricHeartRate] = f(150)
	m[model.MetricOxygenSaturation] = f(90)
	return m
}

func countAudience(attempts []model.NotificationAttempt, a model.Audience) int {
	n := 0
	for _, at := range attempts {
		if at.Audience == a {
			n++
		}
	}
	return n
}
