// Package secrets defines the credential-resolver collaborator contract.
// The core consumes only the flat key/value result to build provider auth
// headers; vault internals, storage, and issuance live elsewhere. Raw
// secret values are never logged or persisted by this core.
package secrets

import (
	"context"
	"sync"
)

// Request identifies the secret material one provider call needs.
type Request struct {
	SourceKey string
	Scope     string
	ActorID   string
}

// Resolver resolves a request to a flat secret map, or nil when no
// material exists for the source.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (map[string]string, error)
}

// StaticResolver serves secrets from an in-memory map keyed by source key.
// Used in tests and single-process deployments.
type StaticResolver struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{secrets: make(map[string]map[string]string)}
}

// Set stores the secret map for a source key.
func (r *StaticResolver) Set(sourceKey string, values map[string]string) {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	r.mu.Lock()
	r.secrets[sourceKey] = cp
	r.mu.Unlock()
}

// Resolve returns a copy of the stored map, or nil when absent.
func (r *StaticResolver) Resolve(ctx context.Context, req Request) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values, ok := r.secrets[req.SourceKey]
	if !ok {
		return nil, nil
	}
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return cp, nil
}
