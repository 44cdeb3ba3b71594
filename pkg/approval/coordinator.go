package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Forwarder pushes newly created approval requests to reviewers. A nil
// forwarder is allowed; records then wait for resolution through the API.
type Forwarder interface {
	ForwardApproval(ctx context.Context, record *Record) error
}

// Options tunes the coordinator.
type Options struct {
	// TTL is how long a request stays pending before the sweeper expires
	// it. Zero means DefaultTTL.
	TTL time.Duration

	// RetryAfter is the interval callers should wait before polling a
	// pending approval again. Zero means DefaultRetryAfter.
	RetryAfter time.Duration
}

const (
	DefaultTTL        = 15 * time.Minute
	DefaultRetryAfter = 2 * time.Second
)

// Coordinator owns the approval state machine. Requests are idempotent per
// call id: retrying a call that is still pending returns the existing
// record instead of minting a duplicate.
type Coordinator struct {
	store     RecordStore
	forwarder Forwarder
	ttl       time.Duration
	retry     time.Duration
	now       func() time.Time
}

// NewCoordinator creates a coordinator. forwarder may be nil.
func NewCoordinator(store RecordStore, forwarder Forwarder, opts Options) *Coordinator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = DefaultRetryAfter
	}
	return &Coordinator{
		store:     store,
		forwarder: forwarder,
		ttl:       opts.TTL,
		retry:     opts.RetryAfter,
		now:       time.Now,
	}
}

// RetryAfter is the polling interval handed to waiting callers.
func (c *Coordinator) RetryAfter() time.Duration { return c.retry }

// RequestInput describes the gated call.
type RequestInput struct {
	CallID      string
	RunID       string
	WorkspaceID string
	AccountID   string
	ToolPath    string
	Arguments   map[string]any
}

// Request returns the approval record for a call, creating one if none
// exists yet. The same call id always maps to the same record, so a
// retried call observes the original decision.
func (c *Coordinator) Request(ctx context.Context, input RequestInput) (*Record, error) {
	if input.CallID == "" {
		return nil, fmt.Errorf("call id cannot be empty")
	}

	if existing, err := c.store.GetByCallID(ctx, input.CallID); err == nil {
		return existing, nil
	} else if err != ErrNotFound {
		return nil, err
	}

	now := c.now()
	record := &Record{
		ID:          uuid.NewString(),
		CallID:      input.CallID,
		RunID:       input.RunID,
		WorkspaceID: input.WorkspaceID,
		AccountID:   input.AccountID,
		ToolPath:    input.ToolPath,
		Arguments:   input.Arguments,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}
	if err := c.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}

	log.Info().
		Str("approval_id", record.ID).
		Str("tool_path", record.ToolPath).
		Str("run_id", record.RunID).
		Msg("Approval requested")

	if c.forwarder != nil {
		if err := c.forwarder.ForwardApproval(ctx, record); err != nil {
			log.Warn().Err(err).Str("approval_id", record.ID).Msg("Failed to forward approval request")
		}
	}
	return record, nil
}

// Get returns the record for an approval id.
func (c *Coordinator) Get(ctx context.Context, id string) (*Record, error) {
	return c.store.Get(ctx, id)
}

// Approve resolves a pending record as approved.
func (c *Coordinator) Approve(ctx context.Context, id, resolvedBy string) (*Record, error) {
	return c.resolve(ctx, id, StatusApproved, "", resolvedBy)
}

// Deny resolves a pending record as denied with a reviewer-supplied
// reason. The reason travels back to the caller verbatim.
func (c *Coordinator) Deny(ctx context.Context, id, reason, resolvedBy string) (*Record, error) {
	return c.resolve(ctx, id, StatusDenied, reason, resolvedBy)
}

// Expire resolves a pending record as expired.
func (c *Coordinator) Expire(ctx context.Context, id string) (*Record, error) {
	return c.resolve(ctx, id, StatusExpired, "approval window elapsed", "")
}

func (c *Coordinator) resolve(ctx context.Context, id string, status Status, reason, resolvedBy string) (*Record, error) {
	record, err := c.store.Resolve(ctx, id, status, reason, resolvedBy, c.now())
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("approval_id", record.ID).
		Str("status", string(record.Status)).
		Str("resolved_by", resolvedBy).
		Msg("Approval resolved")
	return record, nil
}

// SweepExpired expires every pending record past its deadline. Records
// that lose a race with a concurrent resolution are skipped.
func (c *Coordinator) SweepExpired(ctx context.Context) (int, error) {
	due, err := c.store.ListPendingBefore(ctx, c.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, record := range due {
		if _, err := c.Expire(ctx, record.ID); err != nil {
			if err == ErrNotPending {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		log.Info().Int("count", expired).Msg("Expired stale approvals")
	}
	return expired, nil
}
