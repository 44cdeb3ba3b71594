package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RhysSullivan/assistant-sub002/internal/secrets"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// graphPayload is the provider payload for one graph-query tool: a fixed
// query document whose variables come from the call's arguments.
type graphPayload struct {
	Query         string `json:"query"`
	OperationName string `json:"operation_name,omitempty"`
}

// graphRequest is the standard GraphQL POST body.
type graphRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// graphResponse is the standard GraphQL response envelope.
type graphResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphProvider invokes tools backed by a graph-query endpoint. The
// endpoint is the source's base URL; each tool carries its own query
// document.
type GraphProvider struct {
	client  *http.Client
	secrets secrets.Resolver
}

// NewGraphProvider creates the provider.
func NewGraphProvider(resolver secrets.Resolver) *GraphProvider {
	return &GraphProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		secrets: resolver,
	}
}

// Kind implements Provider.
func (p *GraphProvider) Kind() tool.ProviderKind { return tool.ProviderGraph }

// Invoke posts the tool's query with the call arguments as variables.
func (p *GraphProvider) Invoke(ctx context.Context, source tool.Source, descriptor tool.CanonicalToolDescriptor, args map[string]any) (*Result, error) {
	var payload graphPayload
	if err := json.Unmarshal(descriptor.ProviderPayload, &payload); err != nil {
		return nil, fmt.Errorf("invalid graph payload for %s: %w", descriptor.ToolID, err)
	}
	if payload.Query == "" {
		return nil, fmt.Errorf("graph tool %s has no query", descriptor.ToolID)
	}

	body, err := json.Marshal(graphRequest{
		Query:         payload.Query,
		OperationName: payload.OperationName,
		Variables:     args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, source.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if p.secrets != nil && source.SecretKey != "" {
		values, err := p.secrets.Resolve(ctx, secrets.Request{SourceKey: source.SecretKey, Scope: source.WorkspaceID})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credentials: %w", err)
		}
		for name, value := range values {
			req.Header.Set(name, value)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read graph response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Result{IsError: true, Output: string(raw)}, nil
	}

	var envelope graphResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("invalid graph response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return &Result{IsError: true, Output: messages}, nil
	}

	var data any
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid graph data: %w", err)
	}
	return &Result{Output: data}, nil
}
