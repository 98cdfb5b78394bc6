package bunx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // SQLite driver
)

// DatabaseType represents the type of database
type DatabaseType string

const (
	DatabaseTypePostgreSQL DatabaseType = "postgres"
	DatabaseTypeSQLite     DatabaseType = "sqlite"
)

// Options tunes the connection pool and startup connectivity check.
type Options struct {
	// MaxOpenConns applies to PostgreSQL only; SQLite always uses a single connection.
	MaxOpenConns int

	// PingAttempts is the number of connectivity checks before giving up (default 5).
	PingAttempts uint64

	// PingBackoff is the initial delay between attempts, doubled each time (default 200ms).
	PingBackoff time.Duration
}

// DetectDatabaseType determines the database type from a DSN string
func DetectDatabaseType(dsn string) DatabaseType {
	if strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.HasPrefix(dsn, "unix://") {
		return DatabaseTypePostgreSQL
	}
	// SQLite patterns: file:, :memory:, or plain file path
	return DatabaseTypeSQLite
}

// NewDB creates a new Bun database instance for PostgreSQL or SQLite based on DSN
func NewDB(ctx context.Context, dsn string, opts Options) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)

	switch DetectDatabaseType(dsn) {
	case DatabaseTypePostgreSQL:
		db = newPostgreSQLDB(dsn, opts)
	default:
		db, err = newSQLiteDB(ctx, dsn)
		if err != nil {
			return nil, err
		}
	}

	if err := ping(ctx, db, opts); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newPostgreSQLDB(dsn string, opts Options) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 25
	}
	sqldb.SetMaxOpenConns(maxConns)
	sqldb.SetMaxIdleConns(maxConns)

	return bun.NewDB(sqldb, pgdialect.New())
}

// newSQLiteDB creates a SQLite connection using modernc.org/sqlite driver
func newSQLiteDB(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single writer connection; this also keeps shared in-memory databases alive.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

// ping verifies connectivity, retrying with exponential backoff so the server
// can start alongside a database container that is still booting.
func ping(ctx context.Context, db *bun.DB, opts Options) error {
	attempts := opts.PingAttempts
	if attempts == 0 {
		attempts = 5
	}
	base := opts.PingBackoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}

	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the database connection
func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
