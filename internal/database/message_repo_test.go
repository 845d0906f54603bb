package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/mailwatch/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "journal", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestMigrateIsVersioned(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	version, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	require.NoError(t, db.Migrate(ctx))
	version, err = db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestJournalPragmas(t *testing.T) {
	db := newTestDB(t)

	var mode string
	require.NoError(t, db.Get(&mode, `PRAGMA journal_mode`))
	assert.Equal(t, "wal", mode)

	var sync int
	require.NoError(t, db.Get(&sync, `PRAGMA synchronous`))
	assert.Equal(t, 1, sync) // NORMAL
}

func TestCloseKeepsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.SaveMessage(ctx, &models.MessageRecord{
		Account:  "watcher@example.com",
		UID:      1,
		FromAddr: "a@example.com",
		Outcome:  models.OutcomeRead,
	}))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveAndGetMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := &models.MessageRecord{
		Account:    "watcher@example.com",
		UID:        7,
		MessageID:  "abc@example.com",
		FromAddr:   "boss@example.com",
		FromName:   "Boss",
		Subject:    "/movie",
		Preview:    "/search dune",
		Verb:       "search",
		Argument:   "dune",
		Outcome:    models.OutcomeDispatched,
		ReceivedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.SaveMessage(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.ProcessedAt.IsZero())

	got, err := db.GetMessageByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got.UID)
	assert.Equal(t, "dune", got.Argument)
	assert.Equal(t, models.OutcomeDispatched, got.Outcome)

	_, err = db.GetMessageByID(ctx, rec.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecentMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.SaveMessage(ctx, &models.MessageRecord{
			Account:     "watcher@example.com",
			UID:         uint32(i + 1),
			FromAddr:    "a@example.com",
			Outcome:     models.OutcomeRead,
			ProcessedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, err := db.RecentMessages(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, uint32(5), recs[0].UID)
	assert.Equal(t, uint32(3), recs[2].UID)

	n, err := db.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
