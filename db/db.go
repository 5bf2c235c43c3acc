// Package db is the optional Postgres archive of repositories and commits
// seen by commit listings. It is write-mostly: tools never read from it.
package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"githubactivity/logger"
)

// Archive errors
var (
	ErrNoCommitsFound     = fmt.Errorf("no commits found")
	ErrRepositoryNotFound = fmt.Errorf("repository not found")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrDatabaseConnection = fmt.Errorf("database connection error")
	ErrTransactionFailed  = fmt.Errorf("transaction failed")
)

// Options configures the connection pool.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB represents a database connection
type DB struct {
	conn *sqlx.DB
	// Prepared statements cache
	stmtCache struct {
		sync.RWMutex
		statements map[string]*sqlx.Stmt
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	id                SERIAL PRIMARY KEY,
	owner             TEXT NOT NULL,
	name              TEXT NOT NULL,
	url               TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	language          TEXT NOT NULL DEFAULT '',
	forks_count       INTEGER NOT NULL DEFAULT 0,
	stars_count       INTEGER NOT NULL DEFAULT 0,
	open_issues_count INTEGER NOT NULL DEFAULT 0,
	watchers_count    INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (owner, name)
);

CREATE TABLE IF NOT EXISTS commits (
	sha           TEXT NOT NULL,
	repository_id INTEGER NOT NULL REFERENCES repositories (id) ON DELETE CASCADE,
	author        TEXT NOT NULL DEFAULT '',
	author_email  TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL DEFAULT '',
	date          TIMESTAMPTZ NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	additions     BIGINT NOT NULL DEFAULT 0,
	deletions     BIGINT NOT NULL DEFAULT 0,
	files_changed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (repository_id, sha)
);

CREATE INDEX IF NOT EXISTS commits_repository_date_idx ON commits (repository_id, date DESC);
`

// New creates a new database connection
func New(ctx context.Context, opts Options) (*DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("%w: empty DSN", ErrDatabaseConnection)
	}

	conn, err := sqlx.ConnectContext(ctx, "postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	logger.Info("Database connection established",
		zap.Int("max_open_conns", opts.MaxOpenConns),
		zap.Int("max_idle_conns", opts.MaxIdleConns),
		zap.Duration("conn_max_lifetime", opts.ConnMaxLifetime))
	return newDB(conn), nil
}

func newDB(conn *sqlx.DB) *DB {
	database := &DB{conn: conn}
	database.stmtCache.statements = make(map[string]*sqlx.Stmt)
	return database
}

// Migrate creates the archive tables when missing.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// getStmt returns a prepared statement from cache or creates a new one
func (db *DB) getStmt(ctx context.Context, query string) (*sqlx.Stmt, error) {
	db.stmtCache.RLock()
	stmt, exists := db.stmtCache.statements[query]
	db.stmtCache.RUnlock()

	if exists {
		return stmt, nil
	}

	db.stmtCache.Lock()
	defer db.stmtCache.Unlock()

	if stmt, exists = db.stmtCache.statements[query]; exists {
		return stmt, nil
	}

	stmt, err := db.conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	db.stmtCache.statements[query] = stmt
	return stmt, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.stmtCache.Lock()
	for _, stmt := range db.stmtCache.statements {
		stmt.Close()
	}
	db.stmtCache.statements = map[string]*sqlx.Stmt{}
	db.stmtCache.Unlock()

	return db.conn.Close()
}
