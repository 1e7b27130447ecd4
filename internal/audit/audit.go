// Package audit persists a non-authoritative job-event history to SQLite
// in WAL mode. Status resolution (internal/jobmanager) never reads this
// log — it exists purely for operators to reconstruct "what happened."
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no CGO required
)

// Log wraps a SQLite connection holding the job_events table.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database at dir/audit.db.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	dbPath := filepath.Join(dir, "audit.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return l, nil
}

// Close shuts down the underlying connection.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS job_events (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id  TEXT NOT NULL,
		event   TEXT NOT NULL,
		detail  TEXT NOT NULL DEFAULT '',
		at      INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(`CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events(job_id)`)
	return err
}

// Append records one lifecycle event. Callers treat write failures as
// non-fatal: the audit trail must never affect correctness of job state.
func (l *Log) Append(jobID, event, detail string) error {
	_, err := l.db.Exec(
		`INSERT INTO job_events (job_id, event, detail, at) VALUES (?, ?, ?, ?)`,
		jobID, event, detail, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Event is one row of job history, returned by History for display.
type Event struct {
	JobID  string
	Event  string
	Detail string
	At     int64
}

// History returns every recorded event for jobID, oldest first.
func (l *Log) History(jobID string) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT job_id, event, detail, at FROM job_events WHERE job_id = ? ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.JobID, &e.Event, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
