package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when no run exists for an id.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted execution request and its lifecycle status.
type Run struct {
	ID        string            `json:"id"`
	Code      string            `json:"code"`
	RuntimeID string            `json:"runtime_id"`
	Status    string            `json:"status"`
	TimeoutMs int64             `json:"timeout_ms"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RunEvent is one ordered, timestamped entry in a run's event log.
type RunEvent struct {
	Seq       int64           `json:"seq"`
	RunID     string          `json:"run_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Run lifecycle statuses.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusTimedOut  = "timed_out"
)

// CreateRun stores a new run.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode run metadata: %w", err)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, code, runtime_id, status, timeout_ms, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Code, run.RuntimeID, run.Status, run.TimeoutMs, string(metadata),
		run.CreatedAt.UnixMilli(), run.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRunStatus transitions a run's status.
func (s *Store) UpdateRunStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, runtime_id, status, timeout_ms, metadata, created_at, updated_at
		FROM runs WHERE id = ?`, id)

	var run Run
	var metadata string
	var createdAt, updatedAt int64
	err := row.Scan(&run.ID, &run.Code, &run.RuntimeID, &run.Status, &run.TimeoutMs,
		&metadata, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &run.Metadata); err != nil {
		return nil, fmt.Errorf("run %s has corrupt metadata: %w", run.ID, err)
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &run, nil
}

// AppendEvent appends one event to a run's ordered log.
func (s *Store) AppendEvent(ctx context.Context, runID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		runID, eventType, string(body), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append run event: %w", err)
	}
	return nil
}

// ListEvents returns a run's events in append order.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, run_id, event_type, payload, created_at
		FROM run_events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var event RunEvent
		var payload string
		var createdAt int64
		if err := rows.Scan(&event.Seq, &event.RunID, &event.EventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		event.Payload = json.RawMessage(payload)
		event.CreatedAt = time.UnixMilli(createdAt).UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}
