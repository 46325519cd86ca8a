package complaints

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed complaint store, creating the
// schema if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS complaints (
			id TEXT PRIMARY KEY,
			reference TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			citizen_id TEXT NOT NULL,
			assignee_id TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_complaints_status ON complaints(status);
		CREATE INDEX IF NOT EXISTS idx_complaints_citizen ON complaints(citizen_id);
		CREATE TABLE IF NOT EXISTS complaint_notes (
			id TEXT PRIMARY KEY,
			complaint_id TEXT NOT NULL REFERENCES complaints(id),
			author_id TEXT NOT NULL,
			body TEXT NOT NULL,
			internal INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notes_complaint ON complaint_notes(complaint_id);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create complaints schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const sqliteComplaintColumns = `id, reference, title, description, category, status, priority, citizen_id, assignee_id, location, created_at, updated_at`

// Create inserts a new complaint.
func (s *SQLiteStore) Create(ctx context.Context, c *Complaint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO complaints (`+sqliteComplaintColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Reference, c.Title, c.Description, c.Category, string(c.Status),
		string(c.Priority), c.CitizenID, c.AssigneeID, c.Location, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert complaint: %w", err)
	}
	return nil
}

// GetByID returns the complaint with the given ID.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Complaint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteComplaintColumns+` FROM complaints WHERE id = ?`, id)
	return scanComplaint(row)
}

// List returns complaints matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]*Complaint, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.CitizenID != "" {
		where = append(where, "citizen_id = ?")
		args = append(args, f.CitizenID)
	}
	if f.AssigneeID != "" {
		where = append(where, "assignee_id = ?")
		args = append(args, f.AssigneeID)
	}

	query := `SELECT ` + sqliteComplaintColumns + ` FROM complaints`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	query += " LIMIT ? OFFSET ?"
	args = append(args, listLimit(f.Limit), f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}
	defer rows.Close()

	var out []*Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update rewrites a complaint's mutable fields.
func (s *SQLiteStore) Update(ctx context.Context, c *Complaint) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE complaints SET status = ?, priority = ?, assignee_id = ?, updated_at = ? WHERE id = ?`,
		string(c.Status), string(c.Priority), c.AssigneeID, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update complaint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddNote attaches a note to a complaint.
func (s *SQLiteStore) AddNote(ctx context.Context, n *Note) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO complaint_notes (id, complaint_id, author_id, body, internal, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.ComplaintID, n.AuthorID, n.Body, boolToInt(n.Internal), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// ListNotes returns a complaint's notes, oldest first.
func (s *SQLiteStore) ListNotes(ctx context.Context, complaintID string, includeInternal bool) ([]*Note, error) {
	query := `SELECT id, complaint_id, author_id, body, internal, created_at FROM complaint_notes WHERE complaint_id = ?`
	args := []interface{}{complaintID}
	if !includeInternal {
		query += ` AND internal = 0`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var out []*Note
	for rows.Next() {
		var (
			n        Note
			internal int
			created  time.Time
		)
		if err := rows.Scan(&n.ID, &n.ComplaintID, &n.AuthorID, &n.Body, &internal, &created); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.Internal = internal != 0
		n.CreatedAt = created.UTC()
		out = append(out, &n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanComplaint(row rowScanner) (*Complaint, error) {
	var (
		c                Complaint
		status, priority string
		created, updated time.Time
	)
	err := row.Scan(&c.ID, &c.Reference, &c.Title, &c.Description, &c.Category,
		&status, &priority, &c.CitizenID, &c.AssigneeID, &c.Location, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan complaint: %w", err)
	}
	c.Status = Status(status)
	c.Priority = Priority(priority)
	c.CreatedAt = created.UTC()
	c.UpdatedAt = updated.UTC()
	return &c, nil
}

func listLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
