package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/storage"
)

// Lifecycle turns warning and critical insights into durable, deduplicated alert
// records and moves them from open to acknowledged.
type Lifecycle struct {
	store  Store
	bucket time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewLifecycle creates a lifecycle manager. A non-positive bucket means DefaultBucket.
func NewLifecycle(store Store, bucket time.Duration, logger *slog.Logger) *Lifecycle {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return &Lifecycle{
		store:  store,
		bucket: bucket,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithStore returns a copy of the lifecycle that writes through s.
func (l *Lifecycle) WithStore(s Store) *Lifecycle {
	cp := *l
	cp.store = s
	return &cp
}

// SetClock replaces the wall clock used to stamp records.
func (l *Lifecycle) SetClock(now func() time.Time) {
	l.now = now
}

// DedupeKey identifies an alert for a subject, insight kind and metric within
// the bucket starting at bucketStart.
func DedupeKey(subjectID string, kind model.InsightKind, metric string, bucketStart time.Time) string {
	return strings.Join([]string{subjectID, string(kind), metric, bucketStart.UTC().Format(time.RFC3339)}, "|")
}

// Evaluate records an alert for the insight if it is warning or above and no
// alert with the same key exists in the bucket containing at. It returns the
// new record, or nil when nothing was created.
func (l *Lifecycle) Evaluate(ctx context.Context, subjectID string, in model.Insight, at time.Time) (*model.AlertRecord, error) {
	if in.Severity < model.SeverityWarning {
		return nil, nil
	}
	rec := &model.AlertRecord{
		SubjectID: subjectID,
		Kind:      in.Kind,
		Metric:    in.Metric,
		Message:   in.Message,
		Severity:  in.Severity,
		DedupeKey: DedupeKey(subjectID, in.Kind, in.Metric, model.BucketStart(at, l.bucket)),
		CreatedAt: l.now(),
	}
	created, err := l.store.AppendAlert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("record alert %s: %w", rec.DedupeKey, err)
	}
	if !created {
		l.logger.Debug("alert deduplicated", "subject", subjectID, "key", rec.DedupeKey)
		return nil, nil
	}
	l.logger.Warn("alert raised",
		"subject", subjectID,
		"alert_id", rec.ID,
		"kind", rec.Kind,
		"metric", rec.Metric,
		"severity", rec.Severity,
	)
	return rec, nil
}

// Raise records an alert for the insight without deduplication. Every call
// creates a new open record; it is used for manual escalations.
func (l *Lifecycle) Raise(ctx context.Context, subjectID string, in model.Insight) (*model.AlertRecord, error) {
	id := uuid.New().String()
	rec := &model.AlertRecord{
		ID:        id,
		SubjectID: subjectID,
		Kind:      in.Kind,
		Metric:    in.Metric,
		Message:   in.Message,
		Severity:  in.Severity,
		DedupeKey: strings.Join([]string{subjectID, string(in.Kind), id}, "|"),
		CreatedAt: l.now(),
	}
	if _, err := l.store.AppendAlert(ctx, rec); err != nil {
		return nil, fmt.Errorf("record alert %s: %w", rec.DedupeKey, err)
	}
	l.logger.Warn("alert raised",
		"subject", subjectID,
		"alert_id", rec.ID,
		"kind", rec.Kind,
		"severity", rec.Severity,
	)
	return rec, nil
}

// Acknowledge moves an open alert to acknowledged, stamping the time and actor.
// Acknowledging an already acknowledged alert succeeds without changing it.
// An unknown id reports false.
func (l *Lifecycle) Acknowledge(ctx context.Context, alertID, actor string) (bool, error) {
	rec, err := l.store.AcknowledgeAlert(ctx, alertID, actor, l.now())
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acknowledge alert %s: %w", alertID, err)
	}
	l.logger.Info("alert acknowledged", "alert_id", rec.ID, "by", rec.AcknowledgedBy)
	return true, nil
}
