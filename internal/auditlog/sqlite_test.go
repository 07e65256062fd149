package auditlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []*Entry{
		{Username: "alice", Kind: "BLOCK", LabwareCount: 2, Outcome: OutcomeRegistered},
		{Username: "bob", Kind: "SECTION", LabwareCount: 1, Outcome: OutcomeRejected,
			Problems: []string{"Missing donor identifier."}},
		{Username: "alice", Kind: "BLOCK", LabwareCount: 0, Outcome: OutcomeEmpty},
	}
	for _, entry := range entries {
		require.NoError(t, store.Record(ctx, entry))
		assert.NotEmpty(t, entry.ID)
		assert.False(t, entry.CreatedAt.IsZero())
	}

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	byID := make(map[string]*Entry)
	for _, entry := range recent {
		byID[entry.ID] = entry
	}
	rejected := byID[entries[1].ID]
	require.NotNil(t, rejected)
	assert.Equal(t, "bob", rejected.Username)
	assert.Equal(t, OutcomeRejected, rejected.Outcome)
	assert.Equal(t, []string{"Missing donor identifier."}, rejected.Problems)
}

func TestSQLiteStoreRecentLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, &Entry{
			Username: "alice", Kind: "BLOCK", Outcome: OutcomeRegistered,
		}))
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	// A non-positive limit falls back to the default.
	recent, err = store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 5)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, &Entry{Username: "alice", Kind: "BLOCK", Outcome: OutcomeClash}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	recent, err := reopened.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, OutcomeClash, recent[0].Outcome)
}

func TestRecordInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO registration_attempts").
		WillReturnError(assert.AnError)

	store := &SQLiteStore{db: db}
	err = store.Record(context.Background(), &Entry{Username: "alice", Kind: "BLOCK", Outcome: OutcomeError})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
