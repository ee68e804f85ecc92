// Package postgres implements the PostgreSQL persistence layer for applications,
// progress reports and the program directory.
// Every status-dependent write is a single conditional statement, so
// concurrent callers never both observe and act on the same state.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

var (
	// ErrConnectionClosed is returned after Close.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrInvalidURL marks a DATABASE_URL that no retry can fix.
	ErrInvalidURL = errors.New("postgres: invalid database URL")

	// ErrPoolExhausted fails readiness while every connection is checked out.
	ErrPoolExhausted = errors.New("postgres: connection pool exhausted")
)

// DB is the statement surface the repositories run on. *Connection
// satisfies it; tests substitute a recorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION POOL
// ══════════════════════════════════════════════════════════════════════════════

// PoolOptions sizes the pool from DB_* settings. Zero values keep pgxpool's
// own defaults.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connection is a pgxpool.Pool that refuses work after Close.
type Connection struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// Open parses databaseURL, applies opts and pings once.
func Open(ctx context.Context, databaseURL string, opts PoolOptions) (*Connection, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Close is idempotent.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.pool.Close()
	}
}

// Health is the readiness check: the server answers and the pool still has
// a connection to hand out.
func (c *Connection) Health(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	st := c.pool.Stat()
	return poolPressure(st.AcquiredConns(), st.MaxConns())
}

func poolPressure(acquired, max int32) error {
	if max > 0 && acquired >= max {
		return fmt.Errorf("%w: %d/%d in use", ErrPoolExhausted, acquired, max)
	}
	return nil
}

func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if c.closed.Load() {
		return pgconn.CommandTag{}, ErrConnectionClosed
	}
	return c.pool.Exec(ctx, sql, args...)
}

func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return c.pool.Query(ctx, sql, args...)
}

func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	// A closed pool makes Scan fail with its own error.
	return c.pool.QueryRow(ctx, sql, args...)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one forward schema step.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator applies GetMigrations in version order, each in its own
// transaction together with its schema_migrations row.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

const (
	createMigrationsTable = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`

	// Serializes replicas that start at the same time.
	lockMigrations = `SELECT pg_advisory_xact_lock(727301)`
)

// Migrate applies pending migrations and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if _, err := m.conn.Exec(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("postgres: create schema_migrations: %w", err)
	}

	applied := 0
	for _, mig := range m.migrations {
		ran, err := m.apply(ctx, mig)
		if err != nil {
			return applied, fmt.Errorf("postgres: migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		if ran {
			applied++
		}
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) (ran bool, err error) {
	if m.conn.closed.Load() {
		return false, ErrConnectionClosed
	}
	tx, err := m.conn.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, lockMigrations); err != nil {
		return false, err
	}
	var done bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, mig.Version).Scan(&done)
	if err != nil {
		return false, err
	}
	if done {
		return false, tx.Commit(ctx)
	}

	if _, err = tx.Exec(ctx, mig.UpSQL); err != nil {
		return false, err
	}
	if _, err = tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// GetMigrations returns the embedded schema, oldest first. DownSQL is kept
// for manual rollback and is never run by the service.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_directory", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_applications", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_progress_reports", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports SQLSTATE 23505.
func IsUniqueViolation(err error) bool { return pgCode(err) == "23505" }

// IsForeignKeyViolation reports SQLSTATE 23503.
func IsForeignKeyViolation(err error) bool { return pgCode(err) == "23503" }

// IsCheckViolation reports SQLSTATE 23514.
func IsCheckViolation(err error) bool { return pgCode(err) == "23514" }

func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// storageError converts a driver error into the domain storage kind.
func storageError(domain, op string, err error) error {
	return shared.StorageError(domain, op, err)
}
