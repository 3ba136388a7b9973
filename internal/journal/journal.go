// Package journal persists an audit trail of arming cycles and evidence
// captures in a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS arming_cycles (
	id           TEXT PRIMARY KEY,
	camera_id    INTEGER NOT NULL,
	armed_at     TIMESTAMP NOT NULL,
	triggered_at TIMESTAMP,
	trigger_kind TEXT,
	ended_at     TIMESTAMP,
	end_reason   TEXT
);
CREATE TABLE IF NOT EXISTS captures (
	id         TEXT PRIMARY KEY,
	cycle_id   TEXT NOT NULL REFERENCES arming_cycles(id),
	path       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS captures_cycle ON captures(cycle_id);
`

// End reasons recorded on a cycle.
const (
	EndReasonDisarmed  = "disarmed"
	EndReasonTriggered = "triggered"
	EndReasonUnlocked  = "session_unlocked"
)

// Capture is one persisted evidence photo.
type Capture struct {
	ID        string    `json:"id"`
	CycleID   string    `json:"cycleId"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

// Journal is safe for concurrent use; database/sql serializes access.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// modernc sqlite handles one writer at a time; a single connection
	// avoids SQLITE_BUSY under concurrent recording.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// BeginCycle records a new arming cycle with the camera pinned for it and
// returns the cycle id.
func (j *Journal) BeginCycle(ctx context.Context, cameraID int) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO arming_cycles (id, camera_id, armed_at) VALUES (?, ?, ?)`,
		id, cameraID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("record arming cycle: %w", err)
	}
	return id, nil
}

// RecordTrigger stamps the cycle with the intrusion event that fired it.
func (j *Journal) RecordTrigger(ctx context.Context, cycleID, kind string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE arming_cycles SET triggered_at = ?, trigger_kind = ? WHERE id = ?`,
		time.Now().UTC(), kind, cycleID)
	if err != nil {
		return fmt.Errorf("record trigger: %w", err)
	}
	return nil
}

// RecordCapture stores the path of an evidence photo taken during a cycle.
func (j *Journal) RecordCapture(ctx context.Context, cycleID, path string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO captures (id, cycle_id, path, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), cycleID, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record capture: %w", err)
	}
	return nil
}

// EndCycle closes the cycle with the given reason. Ending an already ended
// cycle is a no-op.
func (j *Journal) EndCycle(ctx context.Context, cycleID, reason string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE arming_cycles SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), reason, cycleID)
	if err != nil {
		return fmt.Errorf("end arming cycle: %w", err)
	}
	return nil
}

// RecentCaptures returns the newest captures, most recent first.
func (j *Journal) RecentCaptures(ctx context.Context, limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, cycle_id, path, created_at FROM captures ORDER BY created_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.ID, &c.CycleID, &c.Path, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
