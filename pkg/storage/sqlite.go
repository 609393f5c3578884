package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite implements the Store interface using an SQLite database.
type SQLite struct {
	db *sql.DB
	q  querier
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Evaluations write in short transactions; one connection serialises them.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, q: db}, nil
}

// NewSQLStore wraps an already migrated database handle.
func NewSQLStore(db *sql.DB) *SQLite {
	return &SQLite{db: db, q: db}
}

func (s *SQLite) WithinTx(ctx context.Context, fn func(Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&SQLite{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) AppendReading(ctx context.Context, r *model.Reading) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("encode reading metrics: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO readings (id, subject_id, timestamp, metrics) VALUES (?, ?, ?, ?)`,
		r.ID, r.SubjectID, toNanos(r.Timestamp), string(metrics),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *SQLite) LoadWindow(ctx context.Context, subjectID string, policy model.WindowPolicy) ([]model.Reading, error) {
	const cols = "SELECT id, subject_id, timestamp, metrics FROM readings"
	var (
		rows *sql.Rows
		err  error
	)
	switch policy.Mode {
	case model.WindowByDuration:
		var newest sql.NullInt64
		if err := s.q.QueryRowContext(ctx,
			"SELECT MAX(timestamp) FROM readings WHERE subject_id = ?", subjectID,
		).Scan(&newest); err != nil {
			return nil, fmt.Errorf("find newest reading: %w", err)
		}
		if !newest.Valid {
			return nil, nil
		}
		cutoff := newest.Int64 - int64(policy.Span)
		rows, err = s.q.QueryContext(ctx,
			cols+" WHERE subject_id = ? AND timestamp >= ? ORDER BY timestamp DESC, rowid DESC",
			subjectID, cutoff)
	default:
		rows, err = s.q.QueryContext(ctx,
			cols+" WHERE subject_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?",
			subjectID, policy.Size)
	}
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var (
			r       model.Reading
			ts      int64
			metrics string
		)
		if err := rows.Scan(&r.ID, &r.SubjectID, &ts, &metrics); err != nil {
			return nil, fmt.Errorf("scan reading row: %w", err)
		}
		if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
			return nil, fmt.Errorf("decode reading %s metrics: %w", r.ID, err)
		}
		r.Timestamp = fromNanos(ts)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	// Rows arrive newest first.
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings, nil
}

func (s *SQLite) AppendAlert(ctx context.Context, a *model.AlertRecord) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO alerts (id, subject_id, kind, metric, message, severity, dedupe_key, created_at, acknowledged, acknowledged_at, acknowledged_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dedupe_key) DO NOTHING`,
		a.ID, a.SubjectID, string(a.Kind), a.Metric, a.Message, int(a.Severity), a.DedupeKey,
		toNanos(a.CreatedAt), a.Acknowledged, nullableNanos(a.AcknowledgedAt), a.AcknowledgedBy,
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

const alertColumns = `SELECT id, subject_id, kind, metric, message, severity, dedupe_key, created_at, acknowledged, acknowledged_at, acknowledged_by FROM alerts`

func (s *SQLite) GetAlert(ctx context.Context, id string) (*model.AlertRecord, error) {
	a, err := scanAlert(s.q.QueryRowContext(ctx, alertColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *SQLite) AcknowledgeAlert(ctx context.Context, id, actor string, at time.Time) (*model.AlertRecord, error) {
	_, err := s.q.ExecContext(ctx,
		`UPDATE alerts SET acknowledged = 1, acknowledged_at = ?, acknowledged_by = ?
		 WHERE id = ? AND acknowledged = 0`,
		toNanos(at), actor, id,
	)
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}
	return s.GetAlert(ctx, id)
}

func (s *SQLite) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.AlertRecord, error) {
	var conditions []string
	var args []any
	if filter.SubjectID != "" {
		conditions = append(conditions, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.OpenOnly {
		conditions = append(conditions, "acknowledged = 0")
	}
	if filter.MinSeverity > model.SeverityNone {
		conditions = append(conditions, "severity >= ?")
		args = append(args, int(filter.MinSeverity))
	}
	query := alertColumns
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.AlertRecord
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.AlertRecord, error) {
	var (
		a         model.AlertRecord
		kind      string
		severity  int
		createdAt int64
		ackAt     sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.SubjectID, &kind, &a.Metric, &a.Message, &severity,
		&a.DedupeKey, &createdAt, &a.Acknowledged, &ackAt, &a.AcknowledgedBy); err != nil {
		return nil, err
	}
	a.Kind = model.InsightKind(kind)
	a.Severity = model.Severity(severity)
	a.CreatedAt = fromNanos(createdAt)
	if ackAt.Valid {
		t := fromNanos(ackAt.Int64)
		a.AcknowledgedAt = &t
	}
	return &a, nil
}

func (s *SQLite) LoadPreferences(ctx context.Context, subjectID string) (*model.NotificationPreference, error) {
	p := model.NotificationPreference{SubjectID: subjectID}
	err := s.q.QueryRowContext(ctx,
		`SELECT email, phone, email_enabled, sms_enabled, quiet_start, quiet_end
		 FROM notification_preferences WHERE subject_id = ?`, subjectID,
	).Scan(&p.Email, &p.Phone, &p.EmailEnabled, &p.SMSEnabled, &p.QuietHours.Start, &p.QuietHours.End)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preferences for %q: %w", subjectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return &p, nil
}

func (s *SQLite) SetPreferences(ctx context.Context, p *model.NotificationPreference) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO notification_preferences (subject_id, email, phone, email_enabled, sms_enabled, quiet_start, quiet_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET
		   email = excluded.email,
		   phone = excluded.phone,
		   email_enabled = excluded.email_enabled,
		   sms_enabled = excluded.sms_enabled,
		   quiet_start = excluded.quiet_start,
		   quiet_end = excluded.quiet_end`,
		p.SubjectID, p.Email, p.Phone, p.EmailEnabled, p.SMSEnabled, p.QuietHours.Start, p.QuietHours.End,
	)
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}

func (s *SQLite) ListEmergencyContacts(ctx context.Context, subjectID string) ([]model.EmergencyContact, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, subject_id, name, relationship, phone, email, created_at
		 FROM emergency_contacts WHERE subject_id = ? ORDER BY created_at, id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list emergency contacts: %w", err)
	}
	defer rows.Close()

	var contacts []model.EmergencyContact
	for rows.Next() {
		var c model.EmergencyContact
		var created int64
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.Name, &c.Relationship, &c.Phone, &c.Email, &created); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		c.CreatedAt = fromNanos(created)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *SQLite) AddEmergencyContact(ctx context.Context, c *model.EmergencyContact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO emergency_contacts (id, subject_id, name, relationship, phone, email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SubjectID, c.Name, c.Relationship, c.Phone, c.Email, toNanos(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert emergency contact: %w", err)
	}
	return nil
}

func (s *SQLite) AppendNotificationAttempt(ctx context.Context, a *model.NotificationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO notification_log (id, subject_id, alert_id, channel, target, audience, success, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SubjectID, a.AlertID, string(a.Channel), a.Target, string(a.Audience), a.Success, a.Error, toNanos(a.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert notification attempt: %w", err)
	}
	return nil
}

func (s *SQLite) ListNotificationAttempts(ctx context.Context, subjectID string) ([]model.NotificationAttempt, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, subject_id, alert_id, channel, target, audience, success, error, timestamp
		 FROM notification_log WHERE subject_id = ? ORDER BY timestamp, rowid`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list notification attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.NotificationAttempt
	for rows.Next() {
		var (
			a                 model.NotificationAttempt
			channel, audience string
			ts                int64
		)
		if err := rows.Scan(&a.ID, &a.SubjectID, &a.AlertID, &channel, &a.Target, &audience,
			&a.Success, &a.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		a.Channel = model.Channel(channel)
		a.Audience = model.Audience(audience)
		a.Timestamp = fromNanos(ts)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *SQLite) AddMedication(ctx context.Context, m *model.Medication) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.StartDate.IsZero() {
		m.StartDate = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO medications (id, subject_id, name, dosage, frequency, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SubjectID, m.Name, m.Dosage, string(m.Frequency), toNanos(m.StartDate), nullableNanos(m.EndDate),
	)
	if err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	return nil
}

func (s *SQLite) ListActiveMedications(ctx context.Context, subjectID string, day time.Time) ([]model.Medication, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, subject_id, name, dosage, frequency, start_date, end_date
		 FROM medications WHERE subject_id = ? ORDER BY name, id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []model.Medication
	for rows.Next() {
		var (
			m         model.Medication
			frequency string
			start     int64
			end       sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.SubjectID, &m.Name, &m.Dosage, &frequency, &start, &end); err != nil {
			return nil, fmt.Errorf("scan medication row: %w", err)
		}
		m.Frequency = model.Frequency(frequency)
		m.StartDate = fromNanos(start)
		if end.Valid {
			t := fromNanos(end.Int64)
			m.EndDate = &t
		}
		if m.ActiveOn(day) {
			meds = append(meds, m)
		}
	}
	return meds, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toNanos(*t)
}
