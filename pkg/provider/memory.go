package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// Handler executes one in-memory tool.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Parameter declares one input of an in-memory tool; a JSON schema is
// generated from the declarations and every call is validated against it.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Definition registers one in-memory tool.
type Definition struct {
	ToolID      string
	Name        string
	Description string
	Mode        tool.InvocationMode
	Parameters  []Parameter
	Handler     Handler
}

// MemoryProvider serves tools implemented as in-process Go handlers.
type MemoryProvider struct {
	mu      sync.RWMutex
	tools   map[string]Definition
	schemas map[string]*gojsonschema.Schema
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		tools:   make(map[string]Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Kind implements Provider.
func (p *MemoryProvider) Kind() tool.ProviderKind { return tool.ProviderMemory }

// RegisterTool validates and registers a handler-backed tool.
func (p *MemoryProvider) RegisterTool(def Definition) error {
	if def.ToolID == "" {
		return &tool.ValidationError{Field: "tool_id", Message: "tool id cannot be empty"}
	}
	if def.Handler == nil {
		return &tool.ValidationError{Field: "handler", Message: fmt.Sprintf("tool %s has no handler", def.ToolID)}
	}
	if def.Name == "" {
		def.Name = def.ToolID
	}
	if def.Mode == "" {
		def.Mode = tool.ModeWrite
	}

	schema, err := buildSchema(def.Parameters)
	if err != nil {
		return fmt.Errorf("failed to build schema for %s: %w", def.ToolID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.tools[def.ToolID]; exists {
		return &tool.ValidationError{Field: "tool_id", Message: fmt.Sprintf("duplicate tool id %q", def.ToolID)}
	}
	p.tools[def.ToolID] = def
	p.schemas[def.ToolID] = schema

	log.Info().Str("tool", def.ToolID).Msg("In-memory tool registered")
	return nil
}

// Discover lists the registered tools as a manifest.
func (p *MemoryProvider) Discover(ctx context.Context, source tool.Source) (*tool.ToolManifest, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	manifest := &tool.ToolManifest{Version: tool.ManifestVersion}
	for _, def := range p.tools {
		manifest.Tools = append(manifest.Tools, tool.CanonicalToolDescriptor{
			ProviderKind:   tool.ProviderMemory,
			SourceID:       source.ID,
			WorkspaceID:    source.WorkspaceID,
			ToolID:         def.ToolID,
			Name:           def.Name,
			Description:    def.Description,
			InvocationMode: def.Mode,
			Availability:   tool.AvailabilityEnabled,
		})
	}
	manifest.Sort()
	return manifest, nil
}

// Invoke validates the arguments against the tool's schema and runs its
// handler.
func (p *MemoryProvider) Invoke(ctx context.Context, source tool.Source, descriptor tool.CanonicalToolDescriptor, args map[string]any) (*Result, error) {
	p.mu.RLock()
	def, ok := p.tools[descriptor.ToolID]
	schema := p.schemas[descriptor.ToolID]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tool not found: %s", descriptor.ToolID)
	}

	if schema != nil {
		if args == nil {
			args = map[string]any{}
		}
		result, err := schema.Validate(gojsonschema.NewGoLoader(args))
		if err != nil {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}
		if !result.Valid() {
			var messages []string
			for _, e := range result.Errors() {
				messages = append(messages, e.String())
			}
			return &Result{IsError: true, Output: messages}, nil
		}
	}

	value, err := def.Handler(ctx, args)
	if err != nil {
		return &Result{IsError: true, Output: err.Error()}, nil
	}
	return &Result{Output: value}, nil
}

// buildSchema generates a JSON schema from parameter declarations.
func buildSchema(params []Parameter) (*gojsonschema.Schema, error) {
	properties := make(map[string]any, len(params))
	var required []string
	for _, param := range params {
		properties[param.Name] = map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}
