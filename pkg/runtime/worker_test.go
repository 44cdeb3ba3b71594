package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhysSullivan/assistant-sub002/pkg/provider"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// TestWorker_ConcurrentCallsMatchedByID tests that responses completing
// out of request order reach the call that issued them. The first-issued
// call is the slowest, so replies arrive in reverse.
func TestWorker_ConcurrentCallsMatchedByID(t *testing.T) {
	h := newHarness(t)

	delays := map[string]time.Duration{
		"env.slow":   120 * time.Millisecond,
		"env.medium": 60 * time.Millisecond,
		"env.fast":   5 * time.Millisecond,
	}
	var bindings []ToolBinding
	for toolID, delay := range delays {
		toolID, delay := toolID, delay
		require.NoError(t, h.memory.RegisterTool(provider.Definition{
			ToolID: toolID,
			Mode:   tool.ModeRead,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				time.Sleep(delay)
				return toolID, nil
			},
		}))
		bindings = append(bindings, ToolBinding{
			Path: toolID,
			Descriptor: tool.CanonicalToolDescriptor{
				ProviderKind:   tool.ProviderMemory,
				ToolID:         toolID,
				Name:           toolID,
				InvocationMode: tool.ModeRead,
				Availability:   tool.AvailabilityEnabled,
			},
			Source: tool.Source{ID: "src_mem", Kind: tool.ProviderMemory},
		})
	}

	program := func(ctx context.Context, tools ToolCaller) (any, error) {
		var wg sync.WaitGroup
		results := make(map[string]any)
		var mu sync.Mutex
		for _, path := range []string{"env.slow", "env.medium", "env.fast"} {
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				value, err := tools.Call(ctx, path, nil)
				mu.Lock()
				if err != nil {
					results[path] = err.Error()
				} else {
					results[path] = value
				}
				mu.Unlock()
			}(path)
		}
		wg.Wait()
		return results, nil
	}

	result, err := h.registry.Execute(context.Background(), ExecutionRequest{
		RuntimeKind: KindWorker,
		Program:     program,
		Tools:       bindings,
		TimeoutMs:   5000,
	})
	require.NoError(t, err)
	require.True(t, result.OK)

	values, ok := result.Value.(map[string]any)
	require.True(t, ok)
	// Each call got its own tool's answer, not another's.
	assert.Equal(t, "env.slow", values["env.slow"])
	assert.Equal(t, "env.medium", values["env.medium"])
	assert.Equal(t, "env.fast", values["env.fast"])
	assert.Len(t, result.Receipts, 3)
}

// TestWorker_DeniedSignalSurvivesBoundary tests that a denial crossing the
// message boundary arrives with its reason intact, not as a generic
// failure.
func TestWorker_DeniedSignalSurvivesBoundary(t *testing.T) {
	h := newHarness(t)
	gated := h.registerEcho(t, "payments.send", tool.ModeWrite)
	h.rules.Replace(gateRules("payments.*"))
	h.resolveWhenPending(t, false, "insufficient funds")

	result, err := h.registry.Execute(context.Background(), ExecutionRequest{
		RuntimeKind: KindWorker,
		Program: func(ctx context.Context, tools ToolCaller) (any, error) {
			_, err := tools.Call(ctx, "payments.send", map[string]any{"amount": 5})
			return nil, err
		},
		Tools:     []ToolBinding{gated},
		TimeoutMs: 5000,
	})
	require.Error(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "insufficient funds", result.Err)
}

// TestWorker_TimeoutTearsDownContext tests the hard cutoff for worker
// executions.
func TestWorker_TimeoutTearsDownContext(t *testing.T) {
	h := newHarness(t)
	result, err := h.registry.Execute(context.Background(), ExecutionRequest{
		RuntimeKind: KindWorker,
		Program: func(ctx context.Context, tools ToolCaller) (any, error) {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return "too late", nil
		},
		TimeoutMs: 50,
	})
	require.ErrorIs(t, err, tool.ErrTimeout)
	assert.False(t, result.OK)
}
