package complaints

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store for PostgreSQL via a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed complaint store, creating the
// schema if it doesn't exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
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
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_complaints_status ON complaints(status);
		CREATE INDEX IF NOT EXISTS idx_complaints_citizen ON complaints(citizen_id);
		CREATE TABLE IF NOT EXISTS complaint_notes (
			id TEXT PRIMARY KEY,
			complaint_id TEXT NOT NULL REFERENCES complaints(id),
			author_id TEXT NOT NULL,
			body TEXT NOT NULL,
			internal BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notes_complaint ON complaint_notes(complaint_id);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create complaints schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

const pgComplaintColumns = `id, reference, title, description, category, status, priority, citizen_id, assignee_id, location, created_at, updated_at`

// Create inserts a new complaint.
func (s *PostgresStore) Create(ctx context.Context, c *Complaint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO complaints (`+pgComplaintColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Reference, c.Title, c.Description, c.Category, string(c.Status),
		string(c.Priority), c.CitizenID, c.AssigneeID, c.Location, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert complaint: %w", err)
	}
	return nil
}

// GetByID returns the complaint with the given ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Complaint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgComplaintColumns+` FROM complaints WHERE id = $1`, id)
	c, err := scanPgComplaint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns complaints matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Complaint, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Category != "" {
		where = append(where, "category = "+arg(f.Category))
	}
	if f.CitizenID != "" {
		where = append(where, "citizen_id = "+arg(f.CitizenID))
	}
	if f.AssigneeID != "" {
		where = append(where, "assignee_id = "+arg(f.AssigneeID))
	}

	query := `SELECT ` + pgComplaintColumns + ` FROM complaints`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	query += " LIMIT " + arg(listLimit(f.Limit)) + " OFFSET " + arg(f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}
	defer rows.Close()

	var out []*Complaint
	for rows.Next() {
		c, err := scanPgComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update rewrites a complaint's mutable fields.
func (s *PostgresStore) Update(ctx context.Context, c *Complaint) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE complaints SET status = $1, priority = $2, assignee_id = $3, updated_at = $4 WHERE id = $5`,
		string(c.Status), string(c.Priority), c.AssigneeID, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update complaint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddNote attaches a note to a complaint.
func (s *PostgresStore) AddNote(ctx context.Context, n *Note) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO complaint_notes (id, complaint_id, author_id, body, internal, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.ComplaintID, n.AuthorID, n.Body, n.Internal, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// ListNotes returns a complaint's notes, oldest first.
func (s *PostgresStore) ListNotes(ctx context.Context, complaintID string, includeInternal bool) ([]*Note, error) {
	query := `SELECT id, complaint_id, author_id, body, internal, created_at FROM complaint_notes WHERE complaint_id = $1`
	if !includeInternal {
		query += ` AND internal = FALSE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, complaintID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var out []*Note
	for rows.Next() {
		var (
			n       Note
			created time.Time
		)
		if err := rows.Scan(&n.ID, &n.ComplaintID, &n.AuthorID, &n.Body, &n.Internal, &created); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.CreatedAt = created.UTC()
		out = append(out, &n)
	}
	return out, rows.Err()
}

func scanPgComplaint(row pgx.Row) (*Complaint, error) {
	var (
		c                Complaint
		status, priority string
		created, updated time.Time
	)
	err := row.Scan(&c.ID, &c.Reference, &c.Title, &c.Description, &c.Category,
		&status, &priority, &c.CitizenID, &c.AssigneeID, &c.Location, &created, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan complaint: %w", err)
	}
	c.Status = Status(status)
	c.Priority = Priority(priority)
	c.CreatedAt = created.UTC()
	c.UpdatedAt = updated.UTC()
	return &c, nil
}
