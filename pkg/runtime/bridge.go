package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
	"github.com/RhysSullivan/assistant-sub002/pkg/policy"
	"github.com/RhysSullivan/assistant-sub002/pkg/provider"
	"github.com/RhysSullivan/assistant-sub002/pkg/signal"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// Bridge carries one execution's tool calls through policy, approval, and
// provider invocation. A bridge is created per execution and owns that
// execution's receipts.
type Bridge struct {
	resolver  *policy.Resolver
	approvals *approval.Coordinator
	providers *provider.Registry

	runID       string
	workspaceID string
	caller      policy.Caller
	bindings    map[string]ToolBinding

	// maxPendingRetries bounds how many times a pending approval is
	// re-polled before the call fails. Zero means the execution deadline
	// is the only bound.
	maxPendingRetries int

	mu       sync.Mutex
	sealed   bool
	receipts []tool.Receipt
}

// newBridge builds a bridge for one execution.
func newBridge(resolver *policy.Resolver, approvals *approval.Coordinator, providers *provider.Registry, req ExecutionRequest, maxPendingRetries int) *Bridge {
	bindings := make(map[string]ToolBinding, len(req.Tools))
	for _, binding := range req.Tools {
		bindings[binding.Path] = binding
	}
	return &Bridge{
		resolver:          resolver,
		approvals:         approvals,
		providers:         providers,
		runID:             req.RunID,
		workspaceID:       req.WorkspaceID,
		caller:            req.Caller,
		bindings:          bindings,
		maxPendingRetries: maxPendingRetries,
	}
}

// Bindings returns the tools exposed to this execution.
func (b *Bridge) Bindings() []ToolBinding {
	bindings := make([]ToolBinding, 0, len(b.bindings))
	for _, binding := range b.bindings {
		bindings = append(bindings, binding)
	}
	return bindings
}

// Call runs the full pipeline for one tool call and blocks through pending
// approvals: a pending result is re-polled after its retry interval until
// the approval resolves, the retry bound is hit, or ctx expires. The
// returned result is always terminal.
func (b *Bridge) Call(ctx context.Context, toolPath string, args map[string]any) signal.InvokeResult {
	callID := gonanoid.Must(16)
	retries := 0
	for {
		result := b.CallOnce(ctx, callID, toolPath, args)
		if result.Terminal() {
			return result
		}

		retries++
		if b.maxPendingRetries > 0 && retries > b.maxPendingRetries {
			b.record(callID, toolPath, tool.DecisionAuto, tool.ReceiptTimedOut, args)
			return signal.Failed(fmt.Errorf("approval %s unresolved after %d retries: %w", result.ApprovalID, retries-1, tool.ErrTimeout))
		}

		wait := result.RetryAfter
		if wait <= 0 {
			wait = b.approvals.RetryAfter()
		}
		select {
		case <-ctx.Done():
			b.record(callID, toolPath, tool.DecisionAuto, tool.ReceiptTimedOut, args)
			return signal.Failed(tool.ErrTimeout)
		case <-time.After(wait):
		}
	}
}

// CallOnce runs a single pass of the pipeline. A pending approval is
// returned as-is so remote executors can own their retry loop; terminal
// outcomes record a receipt. Calls retried with the same callID observe
// the original approval record.
func (b *Bridge) CallOnce(ctx context.Context, callID, toolPath string, args map[string]any) signal.InvokeResult {
	binding, ok := b.bindings[toolPath]
	if !ok {
		err := &tool.ValidationError{Field: "tool_path", Message: fmt.Sprintf("tool %q is not bound to this execution", toolPath)}
		b.record(callID, toolPath, tool.DecisionAuto, tool.ReceiptFailed, args)
		return signal.Failed(err)
	}

	evaluation, err := b.resolver.Resolve(ctx, toolPath, b.caller, args, binding.RequiresApproval)
	if err != nil {
		b.record(callID, toolPath, tool.DecisionAuto, tool.ReceiptFailed, args)
		return signal.Failed(fmt.Errorf("policy evaluation failed: %w", err))
	}

	decision := tool.DecisionAuto
	switch evaluation.Decision {
	case policy.DecisionDeny:
		reason := denyReason(evaluation.Rule)
		b.record(callID, toolPath, tool.DecisionDenied, tool.ReceiptDenied, args)
		return signal.Denied(reason)

	case policy.DecisionRequireApproval:
		record, err := b.approvals.Request(ctx, approval.RequestInput{
			CallID:      callID,
			RunID:       b.runID,
			WorkspaceID: b.workspaceID,
			AccountID:   b.caller.AccountID,
			ToolPath:    toolPath,
			Arguments:   args,
		})
		if err != nil {
			b.record(callID, toolPath, tool.DecisionAuto, tool.ReceiptFailed, args)
			return signal.Failed(fmt.Errorf("approval request failed: %w", err))
		}
		switch record.Status {
		case approval.StatusPending:
			return signal.Pending(record.ID, b.approvals.RetryAfter())
		case approval.StatusDenied:
			b.record(callID, toolPath, tool.DecisionDenied, tool.ReceiptDenied, args)
			return signal.Denied(record.Reason)
		case approval.StatusExpired:
			b.record(callID, toolPath, tool.DecisionExpired, tool.ReceiptDenied, args)
			return signal.Denied(record.Reason)
		case approval.StatusApproved:
			decision = tool.DecisionApproved
		}
	}

	result, err := b.providers.Invoke(ctx, binding.Source, binding.Descriptor, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			b.record(callID, toolPath, decision, tool.ReceiptTimedOut, args)
			return signal.Failed(tool.ErrTimeout)
		}
		b.record(callID, toolPath, decision, tool.ReceiptFailed, args)
		return signal.Failed(err)
	}
	if result.IsError {
		b.record(callID, toolPath, decision, tool.ReceiptFailed, args)
		return signal.Failed(fmt.Errorf("tool %s failed: %s", toolPath, renderOutput(result.Output)))
	}

	b.record(callID, toolPath, decision, tool.ReceiptSucceeded, args)
	return signal.OK(result.Output)
}

// record appends a receipt for a terminal call outcome. A sealed bridge
// (execution already timed out) drops the receipt; receipts observed
// before the cutoff are never un-recorded.
func (b *Bridge) record(callID, toolPath string, decision tool.ApprovalDecision, status tool.ReceiptStatus, args map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		log.Debug().
			Str("call_id", callID).
			Str("tool_path", toolPath).
			Msg("Receipt dropped after execution cutoff")
		return
	}
	mode := tool.ModeWrite
	if binding, ok := b.bindings[toolPath]; ok {
		mode = binding.Descriptor.InvocationMode
	}
	b.receipts = append(b.receipts, tool.Receipt{
		CallID:       callID,
		ToolPath:     toolPath,
		Kind:         mode,
		Decision:     decision,
		Status:       status,
		Timestamp:    time.Now(),
		InputPreview: tool.PreviewInput(args),
	})
}

// Seal stops receipt recording. Called by the registry once the execution
// reaches its hard cutoff.
func (b *Bridge) Seal() {
	b.mu.Lock()
	b.sealed = true
	b.mu.Unlock()
}

// Receipts returns the receipts recorded so far, in completion order.
func (b *Bridge) Receipts() []tool.Receipt {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]tool.Receipt, len(b.receipts))
	copy(out, b.receipts)
	return out
}

// DeterministicCallID derives a stable call id for boundaries whose wire
// contract carries no caller-chosen id. Identical retried calls map to the
// same id, so the approval created for the first attempt is the one every
// retry observes.
func DeterministicCallID(runID, toolPath string, args map[string]any) string {
	payload, err := json.Marshal(args)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256([]byte(runID + "\x00" + toolPath + "\x00" + string(payload)))
	return hex.EncodeToString(sum[:16])
}

// denyReason renders the reason a denied call surfaces to the caller.
func denyReason(rule *policy.Rule) string {
	if rule == nil {
		return "denied by policy"
	}
	return fmt.Sprintf("denied by policy rule %s", rule.ID)
}

// renderOutput flattens a provider error output for the failure channel.
func renderOutput(output any) string {
	switch v := output.(type) {
	case string:
		return v
	case nil:
		return "unknown error"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
