package tool

import (
	"fmt"
	"sort"
	"time"
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// ToolManifest is a versioned, content-hashed snapshot of the tools
// extracted from one capability source. Tools are always sorted by ToolID
// so byte-identical inputs produce byte-identical manifests.
type ToolManifest struct {
	Version    int                       `json:"version"`
	SourceHash string                    `json:"source_hash"`
	Tools      []CanonicalToolDescriptor `json:"tools"`
}

// Sort orders the manifest's tools deterministically by ToolID.
func (m *ToolManifest) Sort() {
	sort.Slice(m.Tools, func(i, j int) bool {
		return m.Tools[i].ToolID < m.Tools[j].ToolID
	})
}

// Validate checks every descriptor and rejects duplicate tool ids within
// the manifest. A duplicate is a hard validation failure.
func (m *ToolManifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Tools))
	for i := range m.Tools {
		d := &m.Tools[i]
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := seen[d.ToolID]; dup {
			return &ValidationError{
				Field:   "tool_id",
				Message: fmt.Sprintf("duplicate tool id %q in manifest", d.ToolID),
			}
		}
		seen[d.ToolID] = struct{}{}
	}
	return nil
}

// Lookup returns the descriptor for a tool id, or nil.
func (m *ToolManifest) Lookup(toolID string) *CanonicalToolDescriptor {
	for i := range m.Tools {
		if m.Tools[i].ToolID == toolID {
			return &m.Tools[i]
		}
	}
	return nil
}

// Grouped computes a namespace → descriptors view on demand. The manifest
// itself stays a flat list; grouping is derived, never stored.
func (m *ToolManifest) Grouped() map[string][]CanonicalToolDescriptor {
	groups := make(map[string][]CanonicalToolDescriptor)
	for _, d := range m.Tools {
		ns := Namespace(d.ToolID)
		groups[ns] = append(groups[ns], d)
	}
	return groups
}

// ToolArtifact is the cached, content-addressed result of one extraction.
// It is replaced only when the source hash changes.
type ToolArtifact struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspace_id"`
	SourceID     string    `json:"source_id"`
	SourceHash   string    `json:"source_hash"`
	ToolCount    int       `json:"tool_count"`
	ManifestJSON []byte    `json:"manifest_json"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
