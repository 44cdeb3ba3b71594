package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
	"github.com/RhysSullivan/assistant-sub002/pkg/policy"
	"github.com/RhysSullivan/assistant-sub002/pkg/provider"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// testHarness wires a full pipeline over in-memory stores.
type testHarness struct {
	registry  *Registry
	approvals *approval.Coordinator
	store     *approval.MemoryStore
	rules     *policy.StaticSource
	memory    *provider.MemoryProvider
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	rules := policy.NewStaticSource()
	resolver := policy.NewResolver(rules)

	store := approval.NewMemoryStore()
	approvals := approval.NewCoordinator(store, nil, approval.Options{
		TTL:        time.Minute,
		RetryAfter: 10 * time.Millisecond,
	})

	memory := provider.NewMemoryProvider()
	providers := provider.NewRegistry()
	require.NoError(t, providers.Register(memory))

	registry := NewRegistry(resolver, approvals, providers, Options{})
	require.NoError(t, registry.Register(NewInProcessAdapter()))
	require.NoError(t, registry.Register(NewWorkerAdapter()))

	return &testHarness{
		registry:  registry,
		approvals: approvals,
		store:     store,
		rules:     rules,
		memory:    memory,
	}
}

// registerEcho registers an in-memory tool returning its own arguments.
func (h *testHarness) registerEcho(t *testing.T, toolID string, mode tool.InvocationMode) ToolBinding {
	t.Helper()
	require.NoError(t, h.memory.RegisterTool(provider.Definition{
		ToolID: toolID,
		Mode:   mode,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	}))
	return ToolBinding{
		Path: toolID,
		Descriptor: tool.CanonicalToolDescriptor{
			ProviderKind:   tool.ProviderMemory,
			ToolID:         toolID,
			Name:           toolID,
			InvocationMode: mode,
			Availability:   tool.AvailabilityEnabled,
		},
		Source: tool.Source{ID: "src_mem", Kind: tool.ProviderMemory},
	}
}

// gateRules builds a workspace rule requiring approval for a pattern.
func gateRules(pattern string) []policy.Rule {
	return []policy.Rule{{
		ID:              "rule_gate",
		ScopeType:       policy.ScopeWorkspace,
		ResourcePattern: pattern,
		MatchType:       policy.MatchGlob,
		Effect:          policy.EffectAllow,
		ApprovalMode:    policy.ApprovalRequired,
	}}
}

// resolveWhenPending waits for a pending record and resolves it.
func (h *testHarness) resolveWhenPending(t *testing.T, approve bool, reason string) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			pending, err := h.store.ListPendingBefore(context.Background(), time.Now().Add(time.Hour))
			if err == nil && len(pending) > 0 {
				if approve {
					h.approvals.Approve(context.Background(), pending[0].ID, "reviewer_1")
				} else {
					h.approvals.Deny(context.Background(), pending[0].ID, reason, "reviewer_1")
				}
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}
