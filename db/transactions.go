package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thatsimonsguy/propagator/internal/datalog"
	"github.com/thatsimonsguy/propagator/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// ChannelValue is one channel's entry in a stored row.
type ChannelValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Begin records a new session and returns its id.
func (s *Store) Begin(file string, started time.Time) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO sessions (file, started_at) VALUES (?, ?)`, file, started.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// Append stores a row and bumps the session's row count.
func (s *Store) Append(id int64, row datalog.LogRow) error {
	tx, err := StartTransaction(s.db)
	if err != nil {
		return err
	}

	channels := make([]ChannelValue, len(row.Channels))
	for i, r := range row.Channels {
		channels[i].Value = r.String()
		if i < len(row.Names) {
			channels[i].Name = row.Names[i]
		}
	}

	rec := row.Record()
	n := len(rec)
	_, err = tx.Exec(`INSERT INTO log_rows (session_id, recorded_at, setpoint, duty, air, min_temp, max_temp, channels) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, row.Time.Format(time.RFC3339), row.Setpoint, row.Duty.String(), rec[n-3], rec[n-2], rec[n-1], marshalJSON(channels))
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("insert row for session %d: %w", id, err)
	}

	if _, err = tx.Exec(`UPDATE sessions SET row_count = row_count + 1 WHERE id = ?`, id); err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("update session %d row count: %w", id, err)
	}
	return CommitTransaction(tx)
}

// End marks a session finished.
func (s *Store) End(id int64, stopped time.Time, reason string) error {
	res, err := s.db.Exec(`UPDATE sessions SET stopped_at = ?, stop_reason = ? WHERE id = ?`, stopped.Format(time.RFC3339), reason, id)
	if err != nil {
		return fmt.Errorf("end session %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %d: no such session", id)
	}
	return nil
}

// CloseDangling ends sessions left open by a process that did not shut down
// cleanly. It returns how many were closed.
func (s *Store) CloseDangling(now time.Time) (int64, error) {
	res, err := s.db.Exec(`UPDATE sessions SET stopped_at = ?, stop_reason = 'interrupted' WHERE stopped_at IS NULL`, now.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("close dangling sessions: %w", err)
	}
	return res.RowsAffected()
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.db.Query(`SELECT id, file, started_at, stopped_at, row_count, stop_reason FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession returns one session, or an error wrapping sql.ErrNoRows.
func (s *Store) GetSession(id int64) (*model.Session, error) {
	row := s.db.QueryRow(`SELECT id, file, started_at, stopped_at, row_count, stop_reason FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// StoredRow is a row as kept in the index.
type StoredRow struct {
	RecordedAt time.Time
	Setpoint   float64
	Duty       string
	Air        string
	Min        string
	Max        string
	Channels   []ChannelValue
}

func (s *Store) SessionRows(id int64) ([]StoredRow, error) {
	rows, err := s.db.Query(`SELECT recorded_at, setpoint, duty, air, min_temp, max_temp, channels FROM log_rows WHERE session_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows for session %d: %w", id, err)
	}
	defer rows.Close()

	var out []StoredRow
	for rows.Next() {
		var r StoredRow
		var recordedAt, channels string
		if err := rows.Scan(&recordedAt, &r.Setpoint, &r.Duty, &r.Air, &r.Min, &r.Max, &channels); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		if err := json.Unmarshal([]byte(channels), &r.Channels); err != nil {
			return nil, fmt.Errorf("failed to decode channels: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(sc scanner) (model.Session, error) {
	var sess model.Session
	var startedAt string
	var stoppedAt, reason sql.NullString
	if err := sc.Scan(&sess.ID, &sess.File, &startedAt, &stoppedAt, &sess.Rows, &reason); err != nil {
		return sess, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if stoppedAt.Valid {
		sess.StoppedAt, _ = time.Parse(time.RFC3339, stoppedAt.String)
	}
	sess.StopReason = reason.String
	return sess, nil
}
