package alerts

import (
	"context"
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// Store is the persistence the lifecycle needs. storage.Store satisfies it,
// as does the transactional view passed to storage.Store.WithinTx.
type Store interface {
	// AppendAlert inserts an alert unless its dedupe key exists; it reports
	// whether a row was created.
	AppendAlert(ctx context.Context, a *model.AlertRecord) (bool, error)

	// AcknowledgeAlert stamps an open alert and returns the stored record.
	AcknowledgeAlert(ctx context.Context, id, actor string, at time.Time) (*model.AlertRecord, error)
}

// DefaultBucket is the dedupe window used when none is configured.
const DefaultBucket = time.Hour
