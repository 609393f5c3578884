package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store defines the persistence layer for readings, alerts, delivery settings and
// the notification audit log.
type Store interface {
	// LoadWindow returns a subject's most recent readings bounded by the policy,
	// oldest first.
	LoadWindow(ctx context.Context, subjectID string, policy model.WindowPolicy) ([]model.Reading, error)

	// AppendReading persists a single reading.
	AppendReading(ctx context.Context, r *model.Reading) error

	// AppendAlert inserts an alert unless one with the same dedupe key exists.
	// It reports whether a new row was created.
	AppendAlert(ctx context.Context, a *model.AlertRecord) (bool, error)

	// GetAlert retrieves an alert by id.
	GetAlert(ctx context.Context, id string) (*model.AlertRecord, error)

	// AcknowledgeAlert marks an open alert acknowledged and returns the stored
	// record. Already acknowledged alerts are returned unchanged.
	AcknowledgeAlert(ctx context.Context, id, actor string, at time.Time) (*model.AlertRecord, error)

	// ListAlerts returns alerts matching the filter, newest first.
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.AlertRecord, error)

	// LoadPreferences retrieves a subject's notification preferences.
	LoadPreferences(ctx context.Context, subjectID string) (*model.NotificationPreference, error)

	// SetPreferences creates or replaces a subject's notification preferences.
	SetPreferences(ctx context.Context, p *model.NotificationPreference) error

	// ListEmergencyContacts returns a subject's emergency contacts.
	ListEmergencyContacts(ctx context.Context, subjectID string) ([]model.EmergencyContact, error)

	// AddEmergencyContact persists a new emergency contact.
	AddEmergencyContact(ctx context.Context, c *model.EmergencyContact) error

	// AppendNotificationAttempt appends to the notification audit log.
	AppendNotificationAttempt(ctx context.Context, a *model.NotificationAttempt) error

	// ListNotificationAttempts returns a subject's logged attempts, oldest first.
	ListNotificationAttempts(ctx context.Context, subjectID string) ([]model.NotificationAttempt, error)

	// AddMedication persists a medication schedule.
	AddMedication(ctx context.Context, m *model.Medication) error

	// ListActiveMedications returns a subject's medications prescribed on the given day.
	ListActiveMedications(ctx context.Context, subjectID string, day time.Time) ([]model.Medication, error)

	// WithinTx runs fn against a Store whose writes commit together, or not at all
	// if fn returns an error.
	WithinTx(ctx context.Context, fn func(Store) error) error

	// Close releases resources.
	Close() error
}
