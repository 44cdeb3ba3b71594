package openapi

import (
	"context"
	"sort"
	"sync"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

func sortStrings(s []string) { sort.Strings(s) }

// MemoryArtifactStore is an in-memory ArtifactStore, used in tests and for
// ephemeral deployments without a database.
type MemoryArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[string]*tool.ToolArtifact
}

// NewMemoryArtifactStore creates an empty store.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{artifacts: make(map[string]*tool.ToolArtifact)}
}

func artifactKey(workspaceID, sourceID string) string {
	return workspaceID + "\x00" + sourceID
}

// GetArtifact returns the artifact for a (workspace, source) pair.
func (s *MemoryArtifactStore) GetArtifact(ctx context.Context, workspaceID, sourceID string) (*tool.ToolArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[artifactKey(workspaceID, sourceID)]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	cp := *artifact
	return &cp, nil
}

// UpsertArtifact stores an artifact keyed by (workspace, source).
func (s *MemoryArtifactStore) UpsertArtifact(ctx context.Context, artifact *tool.ToolArtifact) error {
	cp := *artifact
	s.mu.Lock()
	s.artifacts[artifactKey(artifact.WorkspaceID, artifact.SourceID)] = &cp
	s.mu.Unlock()
	return nil
}
