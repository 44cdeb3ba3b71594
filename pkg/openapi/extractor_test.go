package openapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

const usersSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Users API", "version": "1.0.0"},
  "paths": {
    "/users/{id}": {
      "parameters": [
        {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
      ],
      "get": {
        "summary": "Fetch a user",
        "responses": {"200": {"description": "ok"}}
      },
      "post": {
        "parameters": [
          {"name": "X-Request-Id", "in": "header", "schema": {"type": "string"}}
        ],
        "requestBody": {
          "content": {"application/json": {"schema": {"type": "object"}}}
        },
        "responses": {"200": {"description": "ok"}}
      }
    }
  }
}`

const calendarSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Calendar", "version": "1.0.0"},
  "paths": {
    "/events": {
      "get": {
        "operationId": "listEvents",
        "responses": {"200": {"description": "ok"}}
      },
      "post": {
        "operationId": "createEvent",
        "responses": {"200": {"description": "ok"}}
      }
    }
  }
}`

// reorderedCalendarSpec is calendarSpec with its keys in a different
// order; it must hash identically.
const reorderedCalendarSpec = `{
  "paths": {
    "/events": {
      "post": {
        "responses": {"200": {"description": "ok"}},
        "operationId": "createEvent"
      },
      "get": {
        "responses": {"200": {"description": "ok"}},
        "operationId": "listEvents"
      }
    }
  },
  "info": {"version": "1.0.0", "title": "Calendar"},
  "openapi": "3.0.0"
}`

func unmarshalPayload(data []byte, v any) error { return json.Unmarshal(data, v) }

func testSource() tool.Source {
	return tool.Source{ID: "src_1", WorkspaceID: "ws_1", Kind: tool.ProviderHTTP}
}

// TestExtract_SynthesizedToolIDs tests that GET and POST on the same
// templated path yield distinct synthesized tool ids.
func TestExtract_SynthesizedToolIDs(t *testing.T) {
	extraction, err := NewExtractor().Extract(testSource(), []byte(usersSpec))
	require.NoError(t, err)

	ids := make([]string, 0, len(extraction.Manifest.Tools))
	for _, d := range extraction.Manifest.Tools {
		ids = append(ids, d.ToolID)
	}
	assert.Equal(t, []string{"get_users_id", "post_users_id"}, ids)
}

// TestExtract_OperationIDsAndModes tests operationId-derived ids and the
// read/write classification.
func TestExtract_OperationIDsAndModes(t *testing.T) {
	extraction, err := NewExtractor().Extract(testSource(), []byte(calendarSpec))
	require.NoError(t, err)
	require.Len(t, extraction.Manifest.Tools, 2)

	byID := make(map[string]tool.CanonicalToolDescriptor)
	for _, d := range extraction.Manifest.Tools {
		byID[d.ToolID] = d
	}

	listTool, ok := byID["listEvents"]
	require.True(t, ok)
	assert.Equal(t, tool.ModeRead, listTool.InvocationMode)

	createTool, ok := byID["createEvent"]
	require.True(t, ok)
	assert.Equal(t, tool.ModeWrite, createTool.InvocationMode)
}

// TestExtract_ParameterMerge tests that path-item and operation
// parameters merge keyed by {location, name}.
func TestExtract_ParameterMerge(t *testing.T) {
	extraction, err := NewExtractor().Extract(testSource(), []byte(usersSpec))
	require.NoError(t, err)

	post := extraction.Manifest.Lookup("post_users_id")
	require.NotNil(t, post)

	var template tool.InvocationTemplate
	require.NoError(t, unmarshalPayload(post.ProviderPayload, &template))

	require.Len(t, template.Parameters, 2)
	assert.Equal(t, tool.ParameterSpec{Name: "X-Request-Id", In: "header"}, template.Parameters[0])
	assert.Equal(t, tool.ParameterSpec{Name: "id", In: "path", Required: true}, template.Parameters[1])
	assert.Equal(t, []string{"application/json"}, template.ContentTypes)
}

// TestExtract_Deterministic tests that byte-identical input yields
// identical source hash and manifest.
func TestExtract_Deterministic(t *testing.T) {
	first, err := NewExtractor().Extract(testSource(), []byte(calendarSpec))
	require.NoError(t, err)
	second, err := NewExtractor().Extract(testSource(), []byte(calendarSpec))
	require.NoError(t, err)

	assert.Equal(t, first.Manifest.SourceHash, second.Manifest.SourceHash)
	assert.Equal(t, first.Manifest, second.Manifest)
	assert.Equal(t, first.OperationHashes, second.OperationHashes)
}

// TestExtract_ReorderedSpecHashesIdentically tests key-order independence
// of the source hash.
func TestExtract_ReorderedSpecHashesIdentically(t *testing.T) {
	first, err := NewExtractor().Extract(testSource(), []byte(calendarSpec))
	require.NoError(t, err)
	second, err := NewExtractor().Extract(testSource(), []byte(reorderedCalendarSpec))
	require.NoError(t, err)

	assert.Equal(t, first.Manifest.SourceHash, second.Manifest.SourceHash)
}

// TestExtract_DuplicateToolID tests that a duplicate tool id is a hard
// validation failure.
func TestExtract_DuplicateToolID(t *testing.T) {
	const dupSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Dup", "version": "1.0.0"},
  "paths": {
    "/a": {"get": {"operationId": "same", "responses": {"200": {"description": "ok"}}}},
    "/b": {"get": {"operationId": "same", "responses": {"200": {"description": "ok"}}}}
  }
}`
	_, err := NewExtractor().Extract(testSource(), []byte(dupSpec))
	require.Error(t, err)
	var verr *tool.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// TestRefreshArtifact_ReuseOnUnchangedSpec tests that a second refresh on
// an unchanged spec reuses the stored artifact without touching it.
func TestRefreshArtifact_ReuseOnUnchangedSpec(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryArtifactStore()
	extractor := NewExtractor()

	first, err := extractor.RefreshArtifact(ctx, testSource(), []byte(calendarSpec), store)
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.ElementsMatch(t, []string{"listEvents", "createEvent"}, first.Diff.Added)

	second, err := extractor.RefreshArtifact(ctx, testSource(), []byte(calendarSpec), store)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Empty(t, second.Diff.Added)
	assert.Empty(t, second.Diff.Changed)
	assert.ElementsMatch(t, []string{"listEvents", "createEvent"}, second.Diff.Unchanged)
	assert.Equal(t, first.Artifact.UpdatedAt, second.Artifact.UpdatedAt, "updated_at must not change on reuse")
}

// TestRefreshArtifact_DiffOnChange tests the per-tool diff when a spec
// gains, loses, and keeps operations.
func TestRefreshArtifact_DiffOnChange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryArtifactStore()
	extractor := NewExtractor()

	_, err := extractor.RefreshArtifact(ctx, testSource(), []byte(calendarSpec), store)
	require.NoError(t, err)

	const changedSpec = `{
  "openapi": "3.0.0",
  "info": {"title": "Calendar", "version": "1.0.0"},
  "paths": {
    "/events": {
      "get": {
        "operationId": "listEvents",
        "summary": "Changed summary",
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/events/{id}": {
      "delete": {
        "operationId": "deleteEvent",
        "responses": {"200": {"description": "ok"}}
      }
    }
  }
}`
	result, err := extractor.RefreshArtifact(ctx, testSource(), []byte(changedSpec), store)
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.Equal(t, []string{"deleteEvent"}, result.Diff.Added)
	assert.Equal(t, []string{"createEvent"}, result.Diff.Removed)
	assert.Equal(t, []string{"listEvents"}, result.Diff.Changed)
	assert.Empty(t, result.Diff.Unchanged)
}

// TestRefreshArtifact_KeepsIdentity tests that upserts keep the artifact
// id and creation time across refreshes.
func TestRefreshArtifact_KeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryArtifactStore()
	extractor := NewExtractor()

	first, err := extractor.RefreshArtifact(ctx, testSource(), []byte(calendarSpec), store)
	require.NoError(t, err)

	second, err := extractor.RefreshArtifact(ctx, testSource(), []byte(usersSpec), store)
	require.NoError(t, err)

	assert.Equal(t, first.Artifact.ID, second.Artifact.ID)
	assert.Equal(t, first.Artifact.CreatedAt, second.Artifact.CreatedAt)
	assert.NotEqual(t, first.Artifact.SourceHash, second.Artifact.SourceHash)
}

// TestStableHash_KeyOrderIndependence tests the canonical hash directly.
func TestStableHash_KeyOrderIndependence(t *testing.T) {
	a, err := StableHash(map[string]any{"x": 1, "y": map[string]any{"b": 2, "a": 3}})
	require.NoError(t, err)
	b, err := StableHash(map[string]any{"y": map[string]any{"a": 3, "b": 2}, "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
