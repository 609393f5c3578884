package model

import (
	"fmt"
	"strings"
)

// Severity is a totally ordered alert tier. The zero value means no severity.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityNone:     "none",
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity converts a tier name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for sev, n := range severityNames {
		if n == name {
			return sev, nil
		}
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MaxSeverity returns the highest of the given tiers.
func MaxSeverity(levels ...Severity) Severity {
	max := SeverityNone
	for _, l := range levels {
		if l > max {
			max = l
		}
	}
	return max
}

// Status is the overall outcome of an evaluation.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusInfo     Status = "info"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// StatusFor maps an overall severity to an evaluation status.
func StatusFor(s Severity) Status {
	switch {
	case s >= SeverityCritical:
		return StatusCritical
	case s == SeverityWarning:
		return StatusWarning
	case s == SeverityInfo:
		return StatusInfo
	default:
		return StatusNormal
	}
}
