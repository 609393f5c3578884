package model

import (
	"fmt"
	"time"
)

// QuietHours is a daily time-of-day interval during which non-critical email and
// SMS are suppressed. Times are "HH:MM". An interval whose start is after its end
// wraps midnight. Empty Start or End disables quiet hours.
type QuietHours struct {
	Start string `json:"start,omitempty" mapstructure:"start"`
	End   string `json:"end,omitempty" mapstructure:"end"`
}

// Enabled reports whether both bounds are set.
func (q QuietHours) Enabled() bool {
	return q.Start != "" && q.End != ""
}

// Validate checks both bounds parse as HH:MM.
func (q QuietHours) Validate() error {
	if q.Start == "" && q.End == "" {
		return nil
	}
	if _, err := parseClock(q.Start); err != nil {
		return fmt.Errorf("quiet hours start: %w", err)
	}
	if _, err := parseClock(q.End); err != nil {
		return fmt.Errorf("quiet hours end: %w", err)
	}
	return nil
}

// Contains reports whether t (evaluated in its own location) falls inside the interval.
// Malformed bounds never match.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled() {
		return false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false
	}
	now := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	if start == end {
		return false
	}
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
