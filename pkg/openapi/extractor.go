// Package openapi turns OpenAPI documents into deterministic,
// content-hashed manifests of canonical tool descriptors.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// Extraction is one extractor run: the manifest plus a per-tool operation
// hash used to diff successive extractions of the same source.
type Extraction struct {
	Manifest        tool.ToolManifest `json:"manifest"`
	OperationHashes map[string]string `json:"operation_hashes"`
}

// Extractor builds tool manifests from OpenAPI documents.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract walks the spec's paths and verbs and builds one tool per
// operation. Tools are sorted by tool id; a duplicate tool id within one
// spec is a hard validation failure.
func (e *Extractor) Extract(source tool.Source, spec []byte) (*Extraction, error) {
	sourceHash, err := hashSpecDocument(spec)
	if err != nil {
		return nil, &tool.ValidationError{Field: "spec", Message: err.Error()}
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, &tool.ValidationError{Field: "spec", Message: fmt.Sprintf("failed to parse OpenAPI document: %v", err)}
	}
	if doc.Paths == nil {
		return nil, &tool.ValidationError{Field: "paths", Message: "spec has no paths"}
	}

	extraction := &Extraction{
		Manifest: tool.ToolManifest{
			Version:    tool.ManifestVersion,
			SourceHash: sourceHash,
		},
		OperationHashes: make(map[string]string),
	}

	pathMap := doc.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for p := range pathMap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := pathMap[path]
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, method := range methods {
			op := ops[method]
			descriptor, opHash, err := e.buildTool(source, method, path, item, op)
			if err != nil {
				return nil, err
			}
			if _, dup := extraction.OperationHashes[descriptor.ToolID]; dup {
				return nil, &tool.ValidationError{
					Field:   "tool_id",
					Message: fmt.Sprintf("duplicate tool id %q for %s %s", descriptor.ToolID, method, path),
				}
			}
			extraction.Manifest.Tools = append(extraction.Manifest.Tools, *descriptor)
			extraction.OperationHashes[descriptor.ToolID] = opHash
		}
	}

	extraction.Manifest.Sort()
	if err := extraction.Manifest.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("source_id", source.ID).
		Int("tools", len(extraction.Manifest.Tools)).
		Str("source_hash", sourceHash).
		Msg("Extracted tool manifest")

	return extraction, nil
}

// buildTool builds one canonical descriptor from one operation.
func (e *Extractor) buildTool(source tool.Source, method, path string, item *openapi3.PathItem, op *openapi3.Operation) (*tool.CanonicalToolDescriptor, string, error) {
	toolID := op.OperationID
	if toolID == "" {
		toolID = fmt.Sprintf("%s_%s", strings.ToLower(method), normalizePath(path))
	}

	name := op.Summary
	if name == "" {
		name = op.OperationID
	}
	if name == "" {
		name = fmt.Sprintf("%s %s", method, path)
	}
	description := op.Description
	if description == "" {
		description = op.Summary
	}

	template := tool.InvocationTemplate{
		Method:     method,
		Path:       path,
		Parameters: mergeParameters(item.Parameters, op.Parameters),
	}
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		for contentType := range op.RequestBody.Value.Content {
			template.ContentTypes = append(template.ContentTypes, contentType)
		}
		sort.Strings(template.ContentTypes)
	}

	payload, err := json.Marshal(template)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal invocation template: %w", err)
	}

	opHash, err := StableHash(map[string]any{
		"method":              method,
		"path":                path,
		"operation":           op,
		"invocation_template": template,
	})
	if err != nil {
		return nil, "", err
	}

	descriptor := &tool.CanonicalToolDescriptor{
		ProviderKind:    tool.ProviderHTTP,
		SourceID:        source.ID,
		WorkspaceID:     source.WorkspaceID,
		ToolID:          toolID,
		Name:            name,
		Description:     description,
		InvocationMode:  invocationModeFor(method),
		Availability:    tool.AvailabilityEnabled,
		ProviderPayload: payload,
	}
	return descriptor, opHash, nil
}

// mergeParameters merges path-item and operation parameters keyed by
// {location, name}; operation-level parameters win.
func mergeParameters(shared, own openapi3.Parameters) []tool.ParameterSpec {
	type key struct{ in, name string }
	merged := make(map[key]tool.ParameterSpec)
	for _, refs := range [][]*openapi3.ParameterRef{shared, own} {
		for _, ref := range refs {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			merged[key{p.In, p.Name}] = tool.ParameterSpec{
				Name:     p.Name,
				In:       p.In,
				Required: p.Required,
			}
		}
	}

	out := make([]tool.ParameterSpec, 0, len(merged))
	for _, spec := range merged {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].In != out[j].In {
			return out[i].In < out[j].In
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// invocationModeFor classifies an HTTP method for audit receipts.
func invocationModeFor(method string) tool.InvocationMode {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS":
		return tool.ModeRead
	default:
		return tool.ModeWrite
	}
}

// normalizePath turns "/users/{id}" into "users_id" for synthesized tool
// ids.
func normalizePath(path string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(path) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '/':
			b.WriteRune('_')
		default:
			// brace characters and other punctuation are dropped
		}
	}
	return strings.Trim(collapseUnderscores(b.String()), "_")
}

func collapseUnderscores(s string) string {
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}
