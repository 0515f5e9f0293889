// Package testutil provides a throwaway SQL store for package tests.  It
// runs the production queries against an on-disk SQLite database so the
// version-checked writes behave like they do on MySQL.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iliyamo/event-ticketing/internal/database"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'USER',
		created_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT NOT NULL,
		description TEXT NOT NULL,
		city        TEXT NOT NULL,
		venue       TEXT NOT NULL,
		type        TEXT NOT NULL,
		date_time   DATETIME NOT NULL,
		total_seats INTEGER NOT NULL,
		price_cents INTEGER NOT NULL,
		version     INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id    INTEGER NOT NULL REFERENCES events(id),
		username    TEXT NOT NULL,
		quantity    INTEGER NOT NULL,
		price_cents INTEGER NOT NULL,
		created_at  DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id  INTEGER NOT NULL REFERENCES events(id),
		row_label TEXT NOT NULL,
		number    INTEGER NOT NULL,
		sold      BOOLEAN NOT NULL DEFAULT 0,
		ticket_id INTEGER NULL REFERENCES tickets(id),
		version   INTEGER NOT NULL DEFAULT 0,
		UNIQUE (event_id, row_label, number)
	)`,
}

// OpenDB returns a migrated SQLite database living in t.TempDir().  The
// pool is capped at one connection so concurrent transactions serialise
// instead of failing with SQLITE_BUSY.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticketing.db")
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db, sqliteSchema); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
