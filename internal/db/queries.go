package db

import (
	"fmt"
	"time"
)

// Run event names.
const (
	EventRunStarted     = "run_started"
	EventRunResumed     = "run_resumed"
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFailed    = "stage_failed"
	EventWarning        = "warning"
	EventRunFinished    = "run_finished"
)

// TimestampFormat is how event times are stored.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID         int64  `json:"id"`
	RunID      string `json:"run_id"`
	Event      string `json:"event"`
	Stage      string `json:"stage,omitempty"`
	Finding    string `json:"finding,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// LogRunEvent inserts a run event. A zero Timestamp is stamped with now.
func (d *DB) LogRunEvent(e RunEvent) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	_, err := d.conn.Exec(
		d.Rebind(`INSERT INTO run_events (run_id, event, stage, finding, duration_ms, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.RunID, e.Event, e.Stage, e.Finding, e.DurationMs, e.Detail, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// RunEvents returns all events for a run in insertion order.
func (d *DB) RunEvents(runID string) ([]RunEvent, error) {
	return d.queryEvents(
		`SELECT id, run_id, event, stage, finding, duration_ms, detail, timestamp
		 FROM run_events WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
}

// RecentEvents returns the newest events across all runs, newest first.
func (d *DB) RecentEvents(limit int) ([]RunEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryEvents(
		`SELECT id, run_id, event, stage, finding, duration_ms, detail, timestamp
		 FROM run_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

func (d *DB) queryEvents(query string, args ...any) ([]RunEvent, error) {
	rows, err := d.conn.Query(d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &e.Stage, &e.Finding, &e.DurationMs, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
