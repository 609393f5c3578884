package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// Notification titles.
const (
	TitleAbnormal = "Abnormal Vital Signs Detected"
	TitleTrend    = "Vital Signs Trend Alert"
	TitleForecast = "Vital Signs Forecast"
	TitleReminder = "Medication Reminder"
	TitleSOS      = "SOS Emergency Alert"
)

// TitleFor picks the title for a batch of insights. Range and anomaly findings
// take precedence over trends, and trends over forecasts.
func TitleFor(insights []model.Insight) string {
	var trend, forecast bool
	for _, in := range insights {
		switch in.Kind {
		case model.KindRange, model.KindAnomaly:
			return TitleAbnormal
		case model.KindTrend:
			trend = true
		case model.KindForecast:
			forecast = true
		}
	}
	switch {
	case trend:
		return TitleTrend
	case forecast:
		return TitleForecast
	}
	return TitleAbnormal
}

// AlertMessage builds the subject-facing message for an evaluation. Each
// insight becomes one body line.
func AlertMessage(subjectID, alertID string, sev model.Severity, insights []model.Insight, at time.Time) Message {
	return Message{
		SubjectID: subjectID,
		AlertID:   alertID,
		Severity:  sev,
		Title:     TitleFor(insights),
		Body:      insightLines(insights),
		Timestamp: at.UTC(),
	}
}

// EmergencyMessage builds the urgent message sent to emergency contacts.
func EmergencyMessage(subjectID, alertID string, insights []model.Insight, at time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "URGENT: Health Alert for %s\n\n", subjectID)
	b.WriteString(TitleFor(insights))
	b.WriteString("\n")
	b.WriteString(insightLines(insights))
	fmt.Fprintf(&b, "\n\nTime: %s\n\n", at.UTC().Format(time.RFC3339))
	b.WriteString("Please check on them as soon as possible.")
	return Message{
		SubjectID: subjectID,
		AlertID:   alertID,
		Severity:  model.SeverityCritical,
		Title:     "URGENT: Health Alert for " + subjectID,
		Body:      b.String(),
		Urgent:    true,
		Timestamp: at.UTC(),
	}
}

// SOSMessage builds the urgent message for a manual escalation. The subject's
// note and latest reading are included when present.
func SOSMessage(subjectID, alertID, note string, latest *model.Reading, at time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "EMERGENCY ALERT for %s\n", subjectID)
	if note != "" {
		fmt.Fprintf(&b, "Message: %s\n", note)
	}
	if latest != nil && len(latest.Metrics) > 0 {
		names := make([]string, 0, len(latest.Metrics))
		for name := range latest.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "\nLatest vital signs (%s):\n", latest.Timestamp.UTC().Format(time.RFC3339))
		for _, name := range names {
			fmt.Fprintf(&b, "%s: %g\n", strings.ReplaceAll(name, "_", " "), latest.Metrics[name])
		}
	}
	fmt.Fprintf(&b, "\nTime: %s\n\n", at.UTC().Format(time.RFC3339))
	b.WriteString("Please respond immediately!")
	return Message{
		SubjectID: subjectID,
		AlertID:   alertID,
		Severity:  model.SeverityCritical,
		Title:     TitleSOS,
		Body:      b.String(),
		Urgent:    true,
		Timestamp: at.UTC(),
	}
}

// ReminderMessage builds the in-app message for a due medication dose.
func ReminderMessage(r model.Reminder) Message {
	body := "Time to take " + r.Medication.Name
	if r.Medication.Dosage != "" {
		body += " - " + r.Medication.Dosage
	}
	return Message{
		SubjectID: r.Medication.SubjectID,
		Severity:  model.SeverityInfo,
		Title:     TitleReminder,
		Body:      body,
		Timestamp: r.DueAt.UTC(),
	}
}

func insightLines(insights []model.Insight) string {
	lines := make([]string, 0, len(insights))
	for _, in := range insights {
		lines = append(lines, in.Message)
	}
	return strings.Join(lines, "\n")
}
