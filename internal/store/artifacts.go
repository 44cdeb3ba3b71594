package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RhysSullivan/assistant-sub002/pkg/openapi"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// GetArtifact implements openapi.ArtifactStore.
func (s *Store) GetArtifact(ctx context.Context, workspaceID, sourceID string) (*tool.ToolArtifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, source_id, source_hash, tool_count, manifest_json, created_at, updated_at
		FROM tool_artifacts WHERE workspace_id = ? AND source_id = ?`,
		workspaceID, sourceID)

	var artifact tool.ToolArtifact
	var createdAt, updatedAt int64
	err := row.Scan(
		&artifact.ID, &artifact.WorkspaceID, &artifact.SourceID, &artifact.SourceHash,
		&artifact.ToolCount, &artifact.ManifestJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, openapi.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	artifact.CreatedAt = time.UnixMilli(createdAt).UTC()
	artifact.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &artifact, nil
}

// UpsertArtifact implements openapi.ArtifactStore, keyed by the
// (workspace, source) pair.
func (s *Store) UpsertArtifact(ctx context.Context, artifact *tool.ToolArtifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_artifacts (id, workspace_id, source_id, source_hash, tool_count, manifest_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, source_id) DO UPDATE SET
			source_hash = excluded.source_hash,
			tool_count = excluded.tool_count,
			manifest_json = excluded.manifest_json,
			updated_at = excluded.updated_at`,
		artifact.ID, artifact.WorkspaceID, artifact.SourceID, artifact.SourceHash,
		artifact.ToolCount, artifact.ManifestJSON,
		artifact.CreatedAt.UnixMilli(), artifact.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return nil
}
