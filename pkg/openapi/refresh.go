package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// ErrArtifactNotFound is returned by stores when no artifact exists for a
// (workspace, source) pair.
var ErrArtifactNotFound = errors.New("tool artifact not found")

// ArtifactStore persists extraction results keyed by (workspace, source).
type ArtifactStore interface {
	GetArtifact(ctx context.Context, workspaceID, sourceID string) (*tool.ToolArtifact, error)
	UpsertArtifact(ctx context.Context, artifact *tool.ToolArtifact) error
}

// Diff lists tool ids by how they changed between two extractions.
type Diff struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Changed   []string `json:"changed"`
	Unchanged []string `json:"unchanged"`
}

// RefreshResult is the outcome of one refresh: the current artifact,
// whether the stored one was reused, and the per-tool diff.
type RefreshResult struct {
	Artifact *tool.ToolArtifact
	Reused   bool
	Diff     Diff
}

// RefreshArtifact keeps the cached extraction for a source fresh. When the
// stored artifact's source hash matches the spec, the stored artifact is
// returned unchanged. Otherwise a new manifest is computed, diffed by
// operation hash against the prior one, and upserted.
func (e *Extractor) RefreshArtifact(ctx context.Context, source tool.Source, spec []byte, store ArtifactStore) (*RefreshResult, error) {
	extraction, err := e.Extract(source, spec)
	if err != nil {
		return nil, err
	}

	stored, err := store.GetArtifact(ctx, source.WorkspaceID, source.ID)
	if err != nil && !errors.Is(err, ErrArtifactNotFound) {
		return nil, fmt.Errorf("failed to load stored artifact: %w", err)
	}

	if stored != nil && stored.SourceHash == extraction.Manifest.SourceHash {
		var prior Extraction
		if err := json.Unmarshal(stored.ManifestJSON, &prior); err != nil {
			return nil, fmt.Errorf("stored manifest is corrupt: %w", err)
		}
		diff := Diff{}
		for _, d := range prior.Manifest.Tools {
			diff.Unchanged = append(diff.Unchanged, d.ToolID)
		}
		return &RefreshResult{Artifact: stored, Reused: true, Diff: diff}, nil
	}

	manifestJSON, err := json.Marshal(extraction)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction: %w", err)
	}

	now := time.Now().UTC()
	artifact := &tool.ToolArtifact{
		ID:           uuid.NewString(),
		WorkspaceID:  source.WorkspaceID,
		SourceID:     source.ID,
		SourceHash:   extraction.Manifest.SourceHash,
		ToolCount:    len(extraction.Manifest.Tools),
		ManifestJSON: manifestJSON,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var diff Diff
	if stored != nil {
		artifact.ID = stored.ID
		artifact.CreatedAt = stored.CreatedAt

		var prior Extraction
		if err := json.Unmarshal(stored.ManifestJSON, &prior); err != nil {
			return nil, fmt.Errorf("stored manifest is corrupt: %w", err)
		}
		diff = diffExtractions(&prior, extraction)
	} else {
		for _, d := range extraction.Manifest.Tools {
			diff.Added = append(diff.Added, d.ToolID)
		}
	}

	if err := store.UpsertArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to upsert artifact: %w", err)
	}

	log.Info().
		Str("source_id", source.ID).
		Str("workspace_id", source.WorkspaceID).
		Int("added", len(diff.Added)).
		Int("removed", len(diff.Removed)).
		Int("changed", len(diff.Changed)).
		Msg("Tool artifact refreshed")

	return &RefreshResult{Artifact: artifact, Reused: false, Diff: diff}, nil
}

// diffExtractions compares two extractions by operation hash.
func diffExtractions(prior, current *Extraction) Diff {
	var diff Diff
	for id, hash := range current.OperationHashes {
		priorHash, existed := prior.OperationHashes[id]
		switch {
		case !existed:
			diff.Added = append(diff.Added, id)
		case priorHash != hash:
			diff.Changed = append(diff.Changed, id)
		default:
			diff.Unchanged = append(diff.Unchanged, id)
		}
	}
	for id := range prior.OperationHashes {
		if _, exists := current.OperationHashes[id]; !exists {
			diff.Removed = append(diff.Removed, id)
		}
	}
	sortDiff(&diff)
	return diff
}

func sortDiff(d *Diff) {
	for _, list := range [][]string{d.Added, d.Removed, d.Changed, d.Unchanged} {
		sortStrings(list)
	}
}
