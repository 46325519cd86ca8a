package complaints

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civiq/internal/storage"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Config{
		Kind:       storage.KindSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "civiq.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db.SQLite())
	require.NoError(t, err)
	return store
}

func testComplaint(id, citizenID string, status Status, created time.Time) *Complaint {
	return &Complaint{
		ID:        id,
		Reference: "CIV-2026-" + id,
		Title:     "title " + id,
		Category:  "roads",
		Status:    status,
		Priority:  PriorityNormal,
		CitizenID: citizenID,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestSQLiteStoreCRUD(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	c := testComplaint("c1", "citizen-1", StatusOpen, now)
	c.Description = "big pothole"
	c.Location = "Main St"
	require.NoError(t, store.Create(ctx, c))

	got, err := store.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "big pothole", got.Description)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Equal(t, "citizen-1", got.CitizenID)

	got.Status = StatusTriaged
	got.AssigneeID = "staff-1"
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.Update(ctx, got))

	got, err = store.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusTriaged, got.Status)
	assert.Equal(t, "staff-1", got.AssigneeID)
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Update(context.Background(), testComplaint("nope", "x", StatusOpen, time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreListFilters(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, testComplaint("c1", "alice", StatusOpen, base)))
	require.NoError(t, store.Create(ctx, testComplaint("c2", "alice", StatusTriaged, base.Add(time.Second))))
	require.NoError(t, store.Create(ctx, testComplaint("c3", "bob", StatusOpen, base.Add(2*time.Second))))

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first
	assert.Equal(t, "c3", all[0].ID)

	byStatus, err := store.List(ctx, Filter{Status: StatusOpen})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	byCitizen, err := store.List(ctx, Filter{CitizenID: "alice"})
	require.NoError(t, err)
	assert.Len(t, byCitizen, 2)

	paged, err := store.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "c2", paged[0].ID)
}

func TestSQLiteStoreNotes(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, testComplaint("c1", "alice", StatusOpen, now)))

	require.NoError(t, store.AddNote(ctx, &Note{
		ID: "n1", ComplaintID: "c1", AuthorID: "alice", Body: "public", CreatedAt: now,
	}))
	require.NoError(t, store.AddNote(ctx, &Note{
		ID: "n2", ComplaintID: "c1", AuthorID: "staff-1", Body: "internal", Internal: true, CreatedAt: now.Add(time.Second),
	}))

	visible, err := store.ListNotes(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "public", visible[0].Body)

	all, err := store.ListNotes(ctx, "c1", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Oldest first
	assert.Equal(t, "n1", all[0].ID)
}
