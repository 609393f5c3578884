package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/storage"
)

func newMockStore(t *testing.T) (*storage.SQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewSQLStore(db), mock
}

func TestWithinTx_RollsBackWhenAlertInsertFails(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO readings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO alerts").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.WithinTx(ctx, func(tx storage.Store) error {
		if err := tx.AppendReading(ctx, &model.Reading{SubjectID: "s1", Metrics: map[string]float64{"heart_rate": 150}}); err != nil {
			return err
		}
		_, err := tx.AppendAlert(ctx, &model.AlertRecord{SubjectID: "s1", Kind: model.KindRange, Severity: model.SeverityCritical, DedupeKey: "k"})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert alert")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_CommitFailure(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO readings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err := store.WithinTx(ctx, func(tx storage.Store) error {
		return tx.AppendReading(ctx, &model.Reading{SubjectID: "s1", Metrics: map[string]float64{}})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAlert_ReportsDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO alerts (.+) ON CONFLICT\\(dedupe_key\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.AppendAlert(context.Background(), &model.AlertRecord{SubjectID: "s1", Kind: model.KindAnomaly, DedupeKey: "k"})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert_QueryErrorIsNotNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM alerts WHERE id = \\?").
		WithArgs("a1").
		WillReturnError(errors.New("connection reset"))

	_, err := store.GetAlert(context.Background(), "a1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, storage.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadWindow_QueryFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, subject_id, timestamp, metrics FROM readings").
		WillReturnError(errors.New("no such table: readings"))

	_, err := store.LoadWindow(context.Background(), "s1", model.WindowPolicy{Mode: model.WindowByCount, Size: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load window")
	require.NoError(t, mock.ExpectationsWereMet())
}
