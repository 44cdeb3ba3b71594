// Package approval coordinates human sign-off for tool calls that policy
// routes through a reviewer. Each gated call gets exactly one record; the
// record moves through a single terminal transition (approved, denied or
// expired) and every later attempt to resolve it fails.
package approval

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an approval record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusExpired
}

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("approval not found")

	// ErrNotPending is returned when a resolution races a record that has
	// already reached a terminal status.
	ErrNotPending = errors.New("approval already resolved")
)

// Record is one pending or resolved approval.
type Record struct {
	ID          string         `json:"id"`
	CallID      string         `json:"call_id"`
	RunID       string         `json:"run_id"`
	WorkspaceID string         `json:"workspace_id"`
	AccountID   string         `json:"account_id,omitempty"`
	ToolPath    string         `json:"tool_path"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Status      Status         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}
