package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// pragmas mirror a conventional single-writer SQLite setup: WAL for
// concurrent readers during a writer's transaction, a busy timeout so
// cross-process contention on the store file retries instead of failing
// outright, and foreign-key enforcement on, though the schema below
// declares no foreign keys.
const pragmas = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

const schema = `
CREATE TABLE IF NOT EXISTS docs (
	id   TEXT PRIMARY KEY,
	rev  TEXT NOT NULL,
	doc  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS changes (
	seq  INTEGER PRIMARY KEY AUTOINCREMENT,
	id   TEXT NOT NULL,
	rev  TEXT NOT NULL,
	doc  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_id ON changes(id);

CREATE TABLE IF NOT EXISTS history (
	id     TEXT NOT NULL,
	rev_n  INTEGER NOT NULL,
	doc    TEXT NOT NULL,
	PRIMARY KEY (id, rev_n)
);

CREATE TABLE IF NOT EXISTS local_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func openDB(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	db.SetMaxOpenConns(1) // single writer; SQLite serializes anyway
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	return db, nil
}

// historyRetention bounds how many prior revisions per id are kept for
// GetPreviousRev; beyond this, the engine treats the answer as "prev
// unknown" rather than an error.
const historyRetention = 20
