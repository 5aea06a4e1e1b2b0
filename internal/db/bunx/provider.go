// Package bunx builds the single *bun.DB handle iamctl's serve and db
// commands share, picking the pgdialect/pgdriver or sqlitedialect/
// modernc.org/sqlite stack by sniffing the DSN scheme.
package bunx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

// DatabaseType is the detected backend a DSN resolves to.
type DatabaseType string

const (
	DatabaseTypePostgreSQL DatabaseType = "postgres"
	DatabaseTypeSQLite     DatabaseType = "sqlite"
)

// DetectDatabaseType classifies dsn by scheme: postgres://, postgresql://
// select PostgreSQL, anything else (file path, :memory:, file:) is SQLite.
func DetectDatabaseType(dsn string) DatabaseType {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DatabaseTypePostgreSQL
	}
	return DatabaseTypeSQLite
}

// NewDB opens dsn against the detected backend and pings it before
// returning. maxOpenConns bounds the pool for PostgreSQL (Config.
// MaxDBConnections); SQLite ignores it and keeps the single-writer pool
// its driver requires regardless of what's configured.
func NewDB(dsn string, maxOpenConns int) (*bun.DB, error) {
	switch DetectDatabaseType(dsn) {
	case DatabaseTypePostgreSQL:
		return newPostgreSQLDB(dsn, maxOpenConns)
	case DatabaseTypeSQLite:
		return newSQLiteDB(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type for DSN: %s", dsn)
	}
}

func newPostgreSQLDB(dsn string, maxOpenConns int) (*bun.DB, error) {
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}

	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(maxOpenConns)
	sqldb.SetMaxIdleConns(maxOpenConns)

	db := bun.NewDB(sqldb, pgdialect.New())

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// newSQLiteDB opens dsn against modernc.org/sqlite. The connection pool is
// pinned to a single writer regardless of configuration: SQLite serializes
// writes at the file level, and an in-memory dsn (":memory:" or
// "mode=memory") is destroyed the moment its one connection closes, so the
// pool must never shrink to zero.
func newSQLiteDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqldb.SetMaxOpenConns(1)
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		sqldb.SetMaxIdleConns(1)
		sqldb.SetConnMaxLifetime(0)
	} else {
		sqldb.SetMaxIdleConns(2)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close is a nil-safe wrapper around (*bun.DB).Close, so deferring it in a
// command whose earlier NewDB call failed is always safe.
func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
