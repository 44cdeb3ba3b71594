// Package provider routes tool discovery and invocation to the backend
// implementation matching a descriptor's provider kind.
package provider

import (
	"context"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// Result is the normalized outcome of one provider invocation. Non-2xx
// responses and protocol-level errors surface as IsError with the raw
// output attached, not as Go errors; a Go error means the provider
// itself failed.
type Result struct {
	IsError bool `json:"is_error"`
	Output  any  `json:"output"`
}

// Provider invokes tools of one kind.
type Provider interface {
	Kind() tool.ProviderKind
	Invoke(ctx context.Context, source tool.Source, descriptor tool.CanonicalToolDescriptor, args map[string]any) (*Result, error)
}

// Discoverer is implemented by providers that can enumerate a source's
// tools. Providers without discovery (in-memory handlers registered
// directly) simply don't implement it.
type Discoverer interface {
	Discover(ctx context.Context, source tool.Source) (*tool.ToolManifest, error)
}
