// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      : a connection pool
//   - sql.Tx      : a transaction, wrapped here as a repository.Scope
//   - sql.Row(s)  : query results (Rows must be closed)
//
// Every repository type in this package (UserDB, MarketDB, PurchaseDB, ...)
// runs its SQL through a querier, which is either the pool or an open
// transaction. The same code therefore serves both plain reads and the
// statements issued inside a unit of work.
//
// CONCURRENCY:
// The pool is capped at a single connection. SQLite allows one writer at a
// time anyway; with one connection every scope is serialised, so the
// read-modify-write steps of a purchase cannot interleave. Balance updates
// are additionally guarded in SQL and purchase rows carry a version column,
// which keeps the invariants intact on a pool with more connections.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the pure-Go "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/recshare/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// querier is the subset of *sql.DB and *sql.Tx the repositories need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and hands out repositories.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/recshare.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: an in-memory database lives and dies with its
	// connection, and writers are serialised (see package doc).
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// wrap adopts an already-open pool without migrating it. Tests use it to
// drive the store with go-sqlmock.
func wrap(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() repository.UserRepository { return &UserDB{q: db.conn} }

func (db *DB) Market() repository.MarketRepository { return &MarketDB{q: db.conn} }

func (db *DB) Purchases() repository.PurchaseRepository { return &PurchaseDB{q: db.conn} }

func (db *DB) Tokens() repository.TokenRepository { return &TokenDB{q: db.conn} }

func (db *DB) Notifications() repository.NotificationRepository {
	return &NotificationDB{q: db.conn}
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			role       TEXT NOT NULL DEFAULT 'user',
			balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			avatar     TEXT NOT NULL DEFAULT '',
			title      TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Titles are unique regardless of case or enabled state; consumable
	// kinds are unique among consumable items only.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS market_items (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			price           INTEGER NOT NULL CHECK (price > 0),
			enabled         INTEGER NOT NULL DEFAULT 1,
			variant         TEXT NOT NULL,
			icon            TEXT NOT NULL DEFAULT '',
			label           TEXT NOT NULL DEFAULT '',
			consumable_kind TEXT NOT NULL DEFAULT '',
			provider        TEXT NOT NULL DEFAULT '',
			tags_json       TEXT NOT NULL DEFAULT '[]',
			created_by      TEXT NOT NULL DEFAULT '',
			modified_by     TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_market_items_title
			ON market_items(title COLLATE NOCASE);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_market_items_consumable_kind
			ON market_items(consumable_kind) WHERE variant = 'consumable';
		CREATE INDEX IF NOT EXISTS idx_market_items_variant ON market_items(variant);
	`)
	if err != nil {
		return fmt.Errorf("creating market_items table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS purchases (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL REFERENCES users(id),
			item_id         TEXT NOT NULL REFERENCES market_items(id),
			item_title      TEXT NOT NULL DEFAULT '',
			quantity        INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			price           INTEGER NOT NULL,
			purchased_at    DATETIME NOT NULL,
			payment_details TEXT NOT NULL DEFAULT '',
			variant         TEXT NOT NULL,
			icon            TEXT NOT NULL DEFAULT '',
			label           TEXT NOT NULL DEFAULT '',
			consumable_kind TEXT NOT NULL DEFAULT '',
			provider        TEXT NOT NULL DEFAULT '',
			used            INTEGER NOT NULL DEFAULT 0,
			used_at         DATETIME,
			version         INTEGER NOT NULL DEFAULT 1,
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, item_id)
		);
		CREATE INDEX IF NOT EXISTS idx_purchases_user_purchased_at
			ON purchases(user_id, purchased_at DESC);
		CREATE INDEX IF NOT EXISTS idx_purchases_user_kind
			ON purchases(user_id, consumable_kind) WHERE variant = 'consumable_purchase';
	`)
	if err != nil {
		return fmt.Errorf("creating purchases table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS account_tokens (
			id          TEXT PRIMARY KEY,
			created_by  TEXT NOT NULL REFERENCES users(id),
			secret_hash TEXT NOT NULL,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			used_by     TEXT NOT NULL DEFAULT '',
			used_at     DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_account_tokens_created_by ON account_tokens(created_by);

		CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			to_user    TEXT NOT NULL,
			from_user  TEXT NOT NULL DEFAULT '',
			type       TEXT NOT NULL,
			amount     INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_to_user ON notifications(to_user, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating token and notification tables: %w", err)
	}

	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// likePattern turns a user query into a LIKE pattern matching it as a
// substring. The wildcards % and _ in the query are escaped with '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}
