package storage

import (
	"database/sql"
	"fmt"
)

// Timestamps are stored as INTEGER unix nanoseconds (UTC).
var migrations = []string{
	// Migration 1: readings and alerts
	`CREATE TABLE IF NOT EXISTS readings (
		id         TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		timestamp  INTEGER NOT NULL,
		metrics    TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_readings_subject_ts ON readings(subject_id, timestamp);

	CREATE TABLE IF NOT EXISTS alerts (
		id              TEXT PRIMARY KEY,
		subject_id      TEXT NOT NULL,
		kind            TEXT NOT NULL CHECK(kind IN ('range', 'anomaly', 'trend', 'forecast')),
		metric          TEXT NOT NULL DEFAULT '',
		message         TEXT NOT NULL DEFAULT '',
		severity        INTEGER NOT NULL,
		dedupe_key      TEXT NOT NULL UNIQUE,
		created_at      INTEGER NOT NULL,
		acknowledged    INTEGER NOT NULL DEFAULT 0,
		acknowledged_at INTEGER,
		acknowledged_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_subject ON alerts(subject_id, created_at);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,

	// Migration 2: delivery settings and audit log
	`CREATE TABLE IF NOT EXISTS notification_preferences (
		subject_id    TEXT PRIMARY KEY,
		email         TEXT NOT NULL DEFAULT '',
		phone         TEXT NOT NULL DEFAULT '',
		email_enabled INTEGER NOT NULL DEFAULT 0,
		sms_enabled   INTEGER NOT NULL DEFAULT 0,
		quiet_start   TEXT NOT NULL DEFAULT '',
		quiet_end     TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS emergency_contacts (
		id           TEXT PRIMARY KEY,
		subject_id   TEXT NOT NULL,
		name         TEXT NOT NULL,
		relationship TEXT NOT NULL DEFAULT '',
		phone        TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contacts_subject ON emergency_contacts(subject_id);

	CREATE TABLE IF NOT EXISTS notification_log (
		id         TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		alert_id   TEXT NOT NULL DEFAULT '',
		channel    TEXT NOT NULL CHECK(channel IN ('in_app', 'email', 'sms')),
		target     TEXT NOT NULL,
		audience   TEXT NOT NULL,
		success    INTEGER NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		timestamp  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notification_log_subject ON notification_log(subject_id, timestamp);`,

	// Migration 3: medications
	`CREATE TABLE IF NOT EXISTS medications (
		id         TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		dosage     TEXT NOT NULL DEFAULT '',
		frequency  TEXT NOT NULL,
		start_date INTEGER NOT NULL,
		end_date   INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_medications_subject ON medications(subject_id);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}
