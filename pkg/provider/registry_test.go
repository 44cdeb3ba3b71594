package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// stubProvider is a minimal provider without discovery.
type stubProvider struct {
	kind   tool.ProviderKind
	result *Result
	err    error
	panics bool
}

func (s *stubProvider) Kind() tool.ProviderKind { return s.kind }

func (s *stubProvider) Invoke(ctx context.Context, source tool.Source, descriptor tool.CanonicalToolDescriptor, args map[string]any) (*Result, error) {
	if s.panics {
		panic("provider exploded")
	}
	return s.result, s.err
}

// TestRegistry_RegisterDuplicateKind tests the one-provider-per-kind rule.
func TestRegistry_RegisterDuplicateKind(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubProvider{kind: tool.ProviderHTTP}))
	assert.Error(t, registry.Register(&stubProvider{kind: tool.ProviderHTTP}))
}

// TestRegistry_InvokeDispatchesOnDescriptorKind tests that invocation
// follows the descriptor's provider kind, not the source's.
func TestRegistry_InvokeDispatchesOnDescriptorKind(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubProvider{kind: tool.ProviderMemory, result: &Result{Output: "mem"}}))
	require.NoError(t, registry.Register(&stubProvider{kind: tool.ProviderHTTP, result: &Result{Output: "http"}}))

	// Source is HTTP-kind, but the descriptor says memory.
	source := tool.Source{ID: "s", Kind: tool.ProviderHTTP}
	descriptor := tool.CanonicalToolDescriptor{ProviderKind: tool.ProviderMemory, ToolID: "t", Name: "t", InvocationMode: tool.ModeRead}

	result, err := registry.Invoke(context.Background(), source, descriptor, nil)
	require.NoError(t, err)
	assert.Equal(t, "mem", result.Output)
}

// TestRegistry_InvokeUnregisteredKind tests the typed error.
func TestRegistry_InvokeUnregisteredKind(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Invoke(context.Background(), tool.Source{}, tool.CanonicalToolDescriptor{ProviderKind: tool.ProviderGraph}, nil)
	var perr *tool.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, tool.ProviderGraph, perr.Provider)
}

// TestRegistry_DiscoverWithoutDiscovery tests the typed error for
// providers lacking discovery.
func TestRegistry_DiscoverWithoutDiscovery(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubProvider{kind: tool.ProviderHTTP}))

	_, err := registry.DiscoverFromSource(context.Background(), tool.Source{Kind: tool.ProviderHTTP})
	var perr *tool.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "discover", perr.Op)
}

// TestRegistry_InvokeNormalizesPanics tests that a panicking provider
// becomes a ProviderError rather than crossing the boundary.
func TestRegistry_InvokeNormalizesPanics(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&stubProvider{kind: tool.ProviderHTTP, panics: true}))

	_, err := registry.Invoke(context.Background(), tool.Source{}, tool.CanonicalToolDescriptor{ProviderKind: tool.ProviderHTTP}, nil)
	var perr *tool.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "provider panic")
}

// TestRegistry_InvokeWrapsProviderErrors tests failure normalization.
func TestRegistry_InvokeWrapsProviderErrors(t *testing.T) {
	registry := NewRegistry()
	cause := errors.New("connection refused")
	require.NoError(t, registry.Register(&stubProvider{kind: tool.ProviderHTTP, err: cause}))

	_, err := registry.Invoke(context.Background(), tool.Source{}, tool.CanonicalToolDescriptor{ProviderKind: tool.ProviderHTTP}, nil)
	var perr *tool.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, cause)
}
