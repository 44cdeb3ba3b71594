package provider

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// Registry routes discovery and invocation to the provider registered for
// a kind. It is an explicit value constructed once and passed to every
// call site; there is no package-level registry.
type Registry struct {
	providers map[tool.ProviderKind]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[tool.ProviderKind]Provider)}
}

// Register adds a provider. Exactly one provider may serve a kind.
func (r *Registry) Register(p Provider) error {
	if _, exists := r.providers[p.Kind()]; exists {
		return fmt.Errorf("provider already registered for kind %q", p.Kind())
	}
	r.providers[p.Kind()] = p
	log.Info().Str("kind", string(p.Kind())).Msg("Tool provider registered")
	return nil
}

// Provider returns the provider for a kind, or nil.
func (r *Registry) Provider(kind tool.ProviderKind) Provider {
	return r.providers[kind]
}

// DiscoverFromSource enumerates a source's tools, dispatching on the
// source's kind.
func (r *Registry) DiscoverFromSource(ctx context.Context, source tool.Source) (*tool.ToolManifest, error) {
	p, ok := r.providers[source.Kind]
	if !ok {
		return nil, &tool.ProviderError{Provider: source.Kind, Op: "discover", Err: fmt.Errorf("no provider registered")}
	}
	d, ok := p.(Discoverer)
	if !ok {
		return nil, &tool.ProviderError{Provider: source.Kind, Op: "discover", Err: fmt.Errorf("provider does not support discovery")}
	}
	manifest, err := d.Discover(ctx, source)
	if err != nil {
		return nil, &tool.ProviderError{Provider: source.Kind, Op: "discover", Err: err}
	}
	return manifest, nil
}

// Invoke dispatches on the descriptor's provider kind, not the source's,
// so one source may serve tools backed by different provider kinds.
// Provider failures (including panics) are caught here and normalized;
// raw exceptions never cross the sandbox boundary.
func (r *Registry) Invoke(ctx context.Context, source tool.Source, descriptor tool.CanonicalToolDescriptor, args map[string]any) (result *Result, err error) {
	p, ok := r.providers[descriptor.ProviderKind]
	if !ok {
		return nil, &tool.ProviderError{Provider: descriptor.ProviderKind, Op: "invoke", Err: fmt.Errorf("no provider registered")}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("kind", string(descriptor.ProviderKind)).
				Str("tool_id", descriptor.ToolID).
				Interface("panic", rec).
				Msg("Provider panicked during invocation")
			result = nil
			err = &tool.ProviderError{Provider: descriptor.ProviderKind, Op: "invoke", Err: fmt.Errorf("provider panic: %v", rec)}
		}
	}()

	result, invokeErr := p.Invoke(ctx, source, descriptor, args)
	if invokeErr != nil {
		return nil, &tool.ProviderError{Provider: descriptor.ProviderKind, Op: "invoke", Err: invokeErr}
	}
	return result, nil
}
