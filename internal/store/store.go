// Package store persists ideas, tags, upvotes and the tagging quota in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// driverName is go-sqlite3 with fold() registered on every connection.
// SQLite's built-in lower() only maps ASCII, so search folds with Go instead.
const driverName = "sqlite3_ideas"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ideas (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT,
	published   INTEGER NOT NULL DEFAULT 0,
	youtube_url TEXT,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS idea_tags (
	id         TEXT PRIMARY KEY,
	idea_id    TEXT NOT NULL REFERENCES ideas(id) ON DELETE CASCADE,
	tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	UNIQUE(idea_id, tag_id)
);

CREATE TABLE IF NOT EXISTS upvotes (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	idea_id    TEXT NOT NULL REFERENCES ideas(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	UNIQUE(user_id, idea_id)
);

CREATE TABLE IF NOT EXISTS tagging_quota (
	id         TEXT PRIMARY KEY CHECK (id = 'singleton'),
	calls      INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT OR IGNORE INTO tagging_quota (id, calls) VALUES ('singleton', 0);

CREATE INDEX IF NOT EXISTS idx_ideas_published ON ideas(published);
CREATE INDEX IF NOT EXISTS idx_idea_tags_tag ON idea_tags(tag_id);
CREATE INDEX IF NOT EXISTS idx_upvotes_idea ON upvotes(idea_id);
`

// DB wraps a sql.DB with idea board operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Write transactions take the database lock up front so concurrent upserts
// queue on the busy timeout instead of failing on lock upgrade.
func Open(path string) (*DB, error) {
	conn, err := sql.Open(driverName, path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
