// Package storage opens the database behind the complaint store. It is the
// durable system of record the cached reads front; the coordination layer
// never touches it directly.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Kind identifies the database backend.
type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgresql"
)

// Config selects and configures the backend.
type Config struct {
	Kind Kind

	// SQLitePath is the database file path; the directory is created if
	// missing. Defaults to data/civiq.db.
	SQLitePath string

	// PostgresURL is the pgx connection string.
	PostgresURL string

	// PostgresMaxConns bounds the pool size; defaults to 10.
	PostgresMaxConns int
}

// DB is an open connection to one backend. Exactly one of SQLite or Pool is
// set, matching Kind.
type DB struct {
	kind   Kind
	sqlite *sql.DB
	pool   *pgxpool.Pool
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	switch cfg.Kind {
	case KindSQLite:
		return openSQLite(cfg)
	case KindPostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage kind %q (valid: sqlite, postgresql)", cfg.Kind)
	}
}

func openSQLite(cfg Config) (*DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "data/civiq.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	// WAL allows readers while a write is in flight; the busy timeout covers
	// writer contention since SQLite permits one writer at a time.
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &DB{kind: KindSQLite, sqlite: db}, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres URL: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.PostgresMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.PostgresMaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{kind: KindPostgres, pool: pool}, nil
}

// Kind returns the backend this connection uses.
func (d *DB) Kind() Kind { return d.kind }

// SQLite returns the sql.DB handle, or nil for non-SQLite backends.
func (d *DB) SQLite() *sql.DB { return d.sqlite }

// Pool returns the pgx pool, or nil for non-Postgres backends.
func (d *DB) Pool() *pgxpool.Pool { return d.pool }

// Close releases the underlying connection.
func (d *DB) Close() error {
	if d.sqlite != nil {
		return d.sqlite.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}
