package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
	"github.com/RhysSullivan/assistant-sub002/pkg/policy"
	"github.com/RhysSullivan/assistant-sub002/pkg/provider"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// DefaultTimeout applies when a request carries no TimeoutMs.
const DefaultTimeout = 2 * time.Minute

// Options tunes the registry.
type Options struct {
	// DefaultTimeout applies to requests without a TimeoutMs. Zero means
	// the package default.
	DefaultTimeout time.Duration

	// MaxPendingRetries bounds pending-approval re-polls per call. Zero
	// leaves the execution deadline as the only bound.
	MaxPendingRetries int
}

// Registry dispatches executions to the adapter registered for a runtime
// kind. It is constructed once and passed to every call site.
type Registry struct {
	adapters  map[Kind]Adapter
	resolver  *policy.Resolver
	approvals *approval.Coordinator
	providers *provider.Registry
	opts      Options
}

// NewRegistry creates a registry over the authorization pipeline.
func NewRegistry(resolver *policy.Resolver, approvals *approval.Coordinator, providers *provider.Registry, opts Options) *Registry {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	return &Registry{
		adapters:  make(map[Kind]Adapter),
		resolver:  resolver,
		approvals: approvals,
		providers: providers,
		opts:      opts,
	}
}

// Register adds an adapter. One adapter serves one kind.
func (r *Registry) Register(adapter Adapter) error {
	if _, exists := r.adapters[adapter.Kind()]; exists {
		return fmt.Errorf("adapter already registered for kind %q", adapter.Kind())
	}
	r.adapters[adapter.Kind()] = adapter
	log.Info().Str("kind", string(adapter.Kind())).Msg("Runtime adapter registered")
	return nil
}

// NewBridge builds the invocation bridge for one execution. Exposed so the
// control plane can bridge remote callbacks for runs it is hosting.
func (r *Registry) NewBridge(req ExecutionRequest) *Bridge {
	return newBridge(r.resolver, r.approvals, r.providers, req, r.opts.MaxPendingRetries)
}

// Execute runs generated code in the selected adapter and returns its
// value or failure alongside the receipts of every tool call it made. An
// unregistered kind is a typed adapter error; a run past its deadline is
// reported as a timeout and records no further receipts.
func (r *Registry) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	adapter, ok := r.adapters[req.RuntimeKind]
	if !ok {
		return nil, &tool.AdapterError{
			RuntimeKind: string(req.RuntimeKind),
			Message:     "unregistered runtime kind",
		}
	}

	timeout := r.opts.DefaultTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bridge := r.NewBridge(req)
	started := time.Now()
	value, err := adapter.Execute(ctx, req, bridge)
	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = tool.ErrTimeout
		}
		if errors.Is(err, tool.ErrTimeout) {
			bridge.Seal()
		}
		log.Warn().
			Str("run_id", req.RunID).
			Str("kind", string(req.RuntimeKind)).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("Execution failed")
		return &ExecutionResult{OK: false, Err: err.Error(), Receipts: bridge.Receipts()}, err
	}

	log.Info().
		Str("run_id", req.RunID).
		Str("kind", string(req.RuntimeKind)).
		Dur("elapsed", elapsed).
		Int("receipts", len(bridge.Receipts())).
		Msg("Execution completed")
	return &ExecutionResult{OK: true, Value: value, Receipts: bridge.Receipts()}, nil
}
