package notify

import (
	"context"
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// Message is the channel-independent content of a notification.
type Message struct {
	SubjectID string         `json:"subject_id"`
	AlertID   string         `json:"alert_id,omitempty"`
	Severity  model.Severity `json:"severity"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Urgent    bool           `json:"urgent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sender delivers messages over one channel.
type Sender interface {
	// Channel returns the channel this sender delivers on.
	Channel() model.Channel

	// Send delivers msg to target (a subject id, email address or phone number).
	// Implementations must be safe for concurrent use and honour ctx.
	Send(ctx context.Context, target string, msg Message) error
}

// AttemptLog is the append-only audit log for delivery attempts.
type AttemptLog interface {
	AppendNotificationAttempt(ctx context.Context, a *model.NotificationAttempt) error
}
