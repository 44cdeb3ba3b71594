package tool

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProviderKind identifies the backend implementation a tool is served by.
type ProviderKind string

const (
	// ProviderHTTP serves tools described by an HTTP invocation template.
	ProviderHTTP ProviderKind = "http"
	// ProviderMCP serves tools exposed by an MCP protocol server.
	ProviderMCP ProviderKind = "mcp"
	// ProviderGraph serves tools backed by a graph-query endpoint.
	ProviderGraph ProviderKind = "graph"
	// ProviderMemory serves tools registered in-process.
	ProviderMemory ProviderKind = "memory"
)

// InvocationMode classifies a tool call for auditing purposes.
type InvocationMode string

const (
	ModeRead  InvocationMode = "read"
	ModeWrite InvocationMode = "write"
)

// Availability controls whether a tool is offered to executions.
type Availability string

const (
	AvailabilityEnabled  Availability = "enabled"
	AvailabilityDisabled Availability = "disabled"
)

// CanonicalToolDescriptor is provider-agnostic metadata for one tool.
// Policy and approval decisions operate on this shape regardless of the
// backing provider.
type CanonicalToolDescriptor struct {
	ProviderKind    ProviderKind    `json:"provider_kind"`
	SourceID        string          `json:"source_id,omitempty"`
	WorkspaceID     string          `json:"workspace_id,omitempty"`
	ToolID          string          `json:"tool_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	InvocationMode  InvocationMode  `json:"invocation_mode"`
	Availability    Availability    `json:"availability"`
	ProviderPayload json.RawMessage `json:"provider_payload,omitempty"`
}

// Validate checks the descriptor's required fields.
func (d *CanonicalToolDescriptor) Validate() error {
	if d.ToolID == "" {
		return &ValidationError{Field: "tool_id", Message: "tool id cannot be empty"}
	}
	if d.Name == "" {
		return &ValidationError{Field: "name", Message: "tool name cannot be empty"}
	}
	switch d.InvocationMode {
	case ModeRead, ModeWrite:
	default:
		return &ValidationError{Field: "invocation_mode", Message: fmt.Sprintf("invalid invocation mode %q", d.InvocationMode)}
	}
	return nil
}

// Source describes one capability source that tools were extracted from.
type Source struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Kind        ProviderKind    `json:"kind"`
	Name        string          `json:"name,omitempty"`
	BaseURL     string          `json:"base_url,omitempty"`
	SecretKey   string          `json:"secret_key,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Namespace returns the dotted namespace of a tool path, or "" when the
// path has no namespace segment.
func Namespace(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// JoinPath builds a dotted tool path from a namespace and a tool id.
func JoinPath(namespace, toolID string) string {
	if namespace == "" {
		return toolID
	}
	return namespace + "." + toolID
}
