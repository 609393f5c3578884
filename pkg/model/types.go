package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Well-known metric names.
const (
	MetricHeartRate        = "heart_rate"
	MetricSystolic         = "blood_pressure_systolic"
	MetricDiastolic        = "blood_pressure_diastolic"
	MetricTemperature      = "temperature"
	MetricOxygenSaturation = "oxygen_saturation"
)

// Reading is a single timestamped set of physiological measurements for a subject.
// Absent metrics are simply missing from Metrics.
type Reading struct {
	ID        string             `json:"id" db:"id"`
	SubjectID string             `json:"subject_id" db:"subject_id"`
	Timestamp time.Time          `json:"timestamp" db:"timestamp"`
	Metrics   map[string]float64 `json:"metrics" db:"metrics"`
}

// NewReading builds a reading from raw input, dropping nil (absent) metrics.
// The input map is copied.
func NewReading(id, subjectID string, metrics map[string]*float64, ts time.Time) Reading {
	m := make(map[string]float64, len(metrics))
	for name, v := range metrics {
		if v == nil {
			continue
		}
		m[name] = *v
	}
	return Reading{ID: id, SubjectID: subjectID, Timestamp: ts.UTC(), Metrics: m}
}

// Value returns a metric value and whether it was present.
func (r Reading) Value(metric string) (float64, bool) {
	v, ok := r.Metrics[metric]
	return v, ok
}

// MetricNames returns the present metric names in sorted order.
func (r Reading) MetricNames() []string {
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the reading.
func (r Reading) Clone() Reading {
	m := make(map[string]float64, len(r.Metrics))
	for k, v := range r.Metrics {
		m[k] = v
	}
	r.Metrics = m
	return r
}

// WindowMode selects how a history window is bounded.
type WindowMode string

const (
	WindowByCount    WindowMode = "count"
	WindowByDuration WindowMode = "duration"
)

// WindowPolicy bounds a subject's reading history.
type WindowPolicy struct {
	Mode WindowMode    `json:"mode" mapstructure:"mode"`
	Size int           `json:"size" mapstructure:"size"`
	Span time.Duration `json:"span" mapstructure:"span"`
}

// Validate checks the policy is usable.
func (p WindowPolicy) Validate() error {
	switch p.Mode {
	case WindowByCount:
		if p.Size <= 0 {
			return fmt.Errorf("window size must be positive, got %d", p.Size)
		}
	case WindowByDuration:
		if p.Span <= 0 {
			return fmt.Errorf("window span must be positive, got %s", p.Span)
		}
	default:
		return fmt.Errorf("unknown window mode %q", p.Mode)
	}
	return nil
}

// InsightKind tags the variant carried by an Insight.
type InsightKind string

const (
	KindRange    InsightKind = "range"
	KindAnomaly  InsightKind = "anomaly"
	KindTrend    InsightKind = "trend"
	KindForecast InsightKind = "forecast"
	KindSOS      InsightKind = "sos"
)

// Directions used by range and trend insights.
const (
	DirectionLow        = "low"
	DirectionHigh       = "high"
	DirectionIncreasing = "increasing"
	DirectionDecreasing = "decreasing"
)

// Insight is one finding produced by an analysis. Which of the optional fields are
// populated depends on Kind.
type Insight struct {
	Kind      InsightKind `json:"kind"`
	Metric    string      `json:"metric"`
	Message   string      `json:"message"`
	Severity  Severity    `json:"severity"`
	Timestamp time.Time   `json:"timestamp"`

	Direction     string  `json:"direction,omitempty"`
	Value         float64 `json:"value,omitempty"`
	Bound         float64 `json:"bound,omitempty"`
	ExpectedLow   float64 `json:"expected_low,omitempty"`
	ExpectedHigh  float64 `json:"expected_high,omitempty"`
	Slope         float64 `json:"slope,omitempty"`
	PercentChange float64 `json:"percent_change,omitempty"`
}

// AlertRecord is a durable alert raised for a subject.
type AlertRecord struct {
	ID             string      `json:"id" db:"id"`
	SubjectID      string      `json:"subject_id" db:"subject_id"`
	Kind           InsightKind `json:"kind" db:"kind"`
	Metric         string      `json:"metric" db:"metric"`
	Message        string      `json:"message" db:"message"`
	Severity       Severity    `json:"severity" db:"severity"`
	DedupeKey      string      `json:"dedupe_key" db:"dedupe_key"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	Acknowledged   bool        `json:"acknowledged" db:"acknowledged"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
}

// AlertFilter controls which alerts are listed.
type AlertFilter struct {
	SubjectID   string   `json:"subject_id,omitempty"`
	OpenOnly    bool     `json:"open_only,omitempty"`
	MinSeverity Severity `json:"min_severity,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// NotificationPreference holds a subject's own delivery settings.
type NotificationPreference struct {
	SubjectID    string     `json:"subject_id" db:"subject_id"`
	Email        string     `json:"email,omitempty" db:"email"`
	Phone        string     `json:"phone,omitempty" db:"phone"`
	EmailEnabled bool       `json:"email_enabled" db:"email_enabled"`
	SMSEnabled   bool       `json:"sms_enabled" db:"sms_enabled"`
	QuietHours   QuietHours `json:"quiet_hours" db:"quiet_hours"`
}

// EmergencyContact is a person escalated to on critical events.
type EmergencyContact struct {
	ID           string    `json:"id" db:"id"`
	SubjectID    string    `json:"subject_id" db:"subject_id"`
	Name         string    `json:"name" db:"name"`
	Relationship string    `json:"relationship,omitempty" db:"relationship"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	Email        string    `json:"email,omitempty" db:"email"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Audience identifies who a notification attempt was addressed to.
type Audience string

const (
	AudienceSubject          Audience = "subject"
	AudienceEmergencyContact Audience = "emergency_contact"
)

// NotificationAttempt is an append-only log entry for one delivery attempt.
type NotificationAttempt struct {
	ID        string    `json:"id" db:"id"`
	SubjectID string    `json:"subject_id" db:"subject_id"`
	AlertID   string    `json:"alert_id,omitempty" db:"alert_id"`
	Channel   Channel   `json:"channel" db:"channel"`
	Target    string    `json:"target" db:"target"`
	Audience  Audience  `json:"audience" db:"audience"`
	Success   bool      `json:"success" db:"success"`
	Error     string    `json:"error,omitempty" db:"error"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// EvaluationResult is returned for every submitted reading. Late is set when
// the reading is older than the newest reading already in the window; only its
// own range check is evaluated then.
type EvaluationResult struct {
	SubjectID         string                `json:"subject_id"`
	ReadingID         string                `json:"reading_id"`
	Status            Status                `json:"status"`
	Insights          []Insight             `json:"insights"`
	AlertsCreated     []AlertRecord         `json:"alerts_created"`
	NotificationsSent []NotificationAttempt `json:"notifications_sent"`
	InsufficientData  bool                  `json:"insufficient_data,omitempty"`
	Late              bool                  `json:"late,omitempty"`
}

// SOSResult is returned for a manual emergency escalation.
type SOSResult struct {
	SubjectID         string                `json:"subject_id"`
	Alert             AlertRecord           `json:"alert"`
	NotificationsSent []NotificationAttempt `json:"notifications_sent"`
}

// Frequency is how often a medication is taken.
type Frequency string

const (
	FrequencyOnceDaily       Frequency = "once_daily"
	FrequencyTwiceDaily      Frequency = "twice_daily"
	FrequencyThreeTimesDaily Frequency = "three_times_daily"
	FrequencyFourTimesDaily  Frequency = "four_times_daily"
	FrequencyWeekly          Frequency = "weekly"
	FrequencyMonthly         Frequency = "monthly"
)

// ParseFrequency normalises a frequency name.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FrequencyOnceDaily, FrequencyTwiceDaily, FrequencyThreeTimesDaily,
		FrequencyFourTimesDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown medication frequency %q", s)
}

// Medication is a scheduled prescription for a subject.
type Medication struct {
	ID        string     `json:"id" db:"id"`
	SubjectID string     `json:"subject_id" db:"subject_id"`
	Name      string     `json:"name" db:"name"`
	Dosage    string     `json:"dosage" db:"dosage"`
	Frequency Frequency  `json:"frequency" db:"frequency"`
	StartDate time.Time  `json:"start_date" db:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty" db:"end_date"`
}

// ActiveOn reports whether the medication is prescribed on the calendar day of
// t in t's own location. StartDate and EndDate are calendar dates held at UTC
// midnight.
func (m Medication) ActiveOn(t time.Time) bool {
	day := calendarDay(t)
	if day.Before(calendarDay(m.StartDate.UTC())) {
		return false
	}
	if m.EndDate != nil && day.After(calendarDay(m.EndDate.UTC())) {
		return false
	}
	return true
}

// Reminder is a medication dose that is due.
type Reminder struct {
	Medication Medication `json:"medication"`
	DueAt      time.Time  `json:"due_at"`
}

// calendarDay returns t's date, as read in t's location, at UTC midnight.
func calendarDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// BucketStart returns the start of the fixed-size bucket containing t.
func BucketStart(t time.Time, size time.Duration) time.Time {
	if size <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(size)
}
