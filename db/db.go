// Package db is the SQLite index of logging sessions and their rows.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	file        TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	stopped_at  TEXT DEFAULT NULL,
	row_count   INTEGER NOT NULL DEFAULT 0,
	stop_reason TEXT DEFAULT NULL
);

CREATE TABLE IF NOT EXISTS log_rows (
	session_id  INTEGER NOT NULL REFERENCES sessions(id),
	recorded_at TEXT NOT NULL,
	setpoint    REAL NOT NULL,
	duty        TEXT NOT NULL,
	air         TEXT NOT NULL,
	min_temp    TEXT NOT NULL,
	max_temp    TEXT NOT NULL,
	channels    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS log_rows_session ON log_rows(session_id);
`

// Store wraps the session database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and brings its schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases and write ordering sane
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate brings databases created before stop_reason existed up to date.
func migrate(db *sql.DB) error {
	has, err := hasColumn(db, "sessions", "stop_reason")
	if err != nil {
		return err
	}
	if !has {
		if _, err := db.Exec(`ALTER TABLE sessions ADD COLUMN stop_reason TEXT DEFAULT NULL`); err != nil {
			return fmt.Errorf("add sessions.stop_reason: %w", err)
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("read %s columns: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notNull bool
		var defaultValue *string
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, fmt.Errorf("scan %s columns: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
