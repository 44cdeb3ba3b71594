package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
)

// Create implements approval.RecordStore.
func (s *Store) Create(ctx context.Context, record *approval.Record) error {
	arguments, err := json.Marshal(record.Arguments)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, call_id, run_id, workspace_id, account_id, tool_path,
			arguments, status, reason, resolved_by, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.CallID, record.RunID, record.WorkspaceID, record.AccountID,
		record.ToolPath, string(arguments), record.Status, record.Reason, record.ResolvedBy,
		record.CreatedAt.UnixMilli(), record.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

// Get implements approval.RecordStore.
func (s *Store) Get(ctx context.Context, id string) (*approval.Record, error) {
	return s.scanApproval(s.db.QueryRowContext(ctx, selectApproval+` WHERE id = ?`, id))
}

// GetByCallID implements approval.RecordStore.
func (s *Store) GetByCallID(ctx context.Context, callID string) (*approval.Record, error) {
	return s.scanApproval(s.db.QueryRowContext(ctx, selectApproval+` WHERE call_id = ?`, callID))
}

// Resolve implements approval.RecordStore. The UPDATE is conditioned on
// the pending status, so concurrent resolutions pick exactly one winner.
func (s *Store) Resolve(ctx context.Context, id string, status approval.Status, reason, resolvedBy string, at time.Time) (*approval.Record, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE approvals SET status = ?, reason = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		status, reason, resolvedBy, at.UnixMilli(), id, approval.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve approval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.Get(ctx, id); errors.Is(err, approval.ErrNotFound) {
			return nil, approval.ErrNotFound
		}
		return nil, approval.ErrNotPending
	}
	return s.Get(ctx, id)
}

// ListPendingBefore implements approval.RecordStore.
func (s *Store) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*approval.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectApproval+` WHERE status = ? AND expires_at <= ?`,
		approval.StatusPending, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending approvals: %w", err)
	}
	defer rows.Close()

	var due []*approval.Record
	for rows.Next() {
		record, err := s.scanApproval(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, record)
	}
	return due, rows.Err()
}

const selectApproval = `
	SELECT id, call_id, run_id, workspace_id, account_id, tool_path,
		arguments, status, reason, resolved_by, created_at, expires_at, resolved_at
	FROM approvals`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanApproval(row rowScanner) (*approval.Record, error) {
	var record approval.Record
	var arguments string
	var createdAt, expiresAt int64
	var resolvedAt sql.NullInt64
	err := row.Scan(
		&record.ID, &record.CallID, &record.RunID, &record.WorkspaceID, &record.AccountID,
		&record.ToolPath, &arguments, &record.Status, &record.Reason, &record.ResolvedBy,
		&createdAt, &expiresAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}
	if err := json.Unmarshal([]byte(arguments), &record.Arguments); err != nil {
		return nil, fmt.Errorf("approval %s has corrupt arguments: %w", record.ID, err)
	}
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if resolvedAt.Valid {
		t := time.UnixMilli(resolvedAt.Int64).UTC()
		record.ResolvedAt = &t
	}
	return &record, nil
}
