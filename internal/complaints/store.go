package complaints

import (
	"context"
	"fmt"

	"civiq/internal/storage"
)

// Store persists complaints and notes. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create inserts a new complaint.
	Create(ctx context.Context, c *Complaint) error

	// GetByID returns the complaint with the given ID, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Complaint, error)

	// List returns complaints matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Complaint, error)

	// Update rewrites a complaint's mutable fields, or ErrNotFound.
	Update(ctx context.Context, c *Complaint) error

	// AddNote attaches a note to a complaint.
	AddNote(ctx context.Context, n *Note) error

	// ListNotes returns a complaint's notes, oldest first. When
	// includeInternal is false, staff-only notes are filtered out.
	ListNotes(ctx context.Context, complaintID string, includeInternal bool) ([]*Note, error)
}

// NewStore creates the store matching the shared storage backend.
func NewStore(db *storage.DB) (Store, error) {
	switch db.Kind() {
	case storage.KindSQLite:
		return NewSQLiteStore(db.SQLite())
	case storage.KindPostgres:
		return NewPostgresStore(context.Background(), db.Pool())
	default:
		return nil, fmt.Errorf("unsupported storage kind: %s", db.Kind())
	}
}
