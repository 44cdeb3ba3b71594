package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/internal/secrets"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// HTTPProvider invokes tools described by an HTTP invocation template. The
// request is built from the template's path plus per-location parameters;
// remaining arguments become the JSON request body. Non-2xx responses map
// to an error result carrying the response body.
type HTTPProvider struct {
	client  *http.Client
	secrets secrets.Resolver
}

// NewHTTPProvider creates the provider. resolver may be nil when no
// sources need credentials.
func NewHTTPProvider(resolver secrets.Resolver) *HTTPProvider {
	return &HTTPProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		secrets: resolver,
	}
}

// Kind implements Provider.
func (p *HTTPProvider) Kind() tool.ProviderKind { return tool.ProviderHTTP }

// Invoke builds and performs the HTTP request for one call.
func (p *HTTPProvider) Invoke(ctx context.Context, source tool.Source, descriptor tool.CanonicalToolDescriptor, args map[string]any) (*Result, error) {
	var template tool.InvocationTemplate
	if err := json.Unmarshal(descriptor.ProviderPayload, &template); err != nil {
		return nil, fmt.Errorf("invalid invocation template for %s: %w", descriptor.ToolID, err)
	}

	req, err := p.buildRequest(ctx, source, template, args)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	output := decodeBody(resp.Header.Get("Content-Type"), body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug().
			Str("tool_id", descriptor.ToolID).
			Int("status", resp.StatusCode).
			Msg("HTTP tool returned non-2xx status")
		return &Result{IsError: true, Output: output}, nil
	}
	return &Result{Output: output}, nil
}

// buildRequest fills the path template and distributes arguments to their
// declared locations. Arguments not claimed by a parameter form the JSON
// body for methods that take one.
func (p *HTTPProvider) buildRequest(ctx context.Context, source tool.Source, template tool.InvocationTemplate, args map[string]any) (*http.Request, error) {
	remaining := make(map[string]any, len(args))
	for k, v := range args {
		remaining[k] = v
	}

	path := template.Path
	query := url.Values{}
	headers := http.Header{}

	for _, param := range template.Parameters {
		raw, present := remaining[param.Name]
		if !present {
			if param.Required {
				return nil, fmt.Errorf("missing required parameter %q (%s)", param.Name, param.In)
			}
			continue
		}
		value := fmt.Sprintf("%v", raw)
		delete(remaining, param.Name)

		switch param.In {
		case tool.InPath:
			path = strings.ReplaceAll(path, "{"+param.Name+"}", url.PathEscape(value))
		case tool.InQuery:
			query.Set(param.Name, value)
		case tool.InHeader:
			headers.Set(param.Name, value)
		default:
			return nil, fmt.Errorf("unsupported parameter location %q for %q", param.In, param.Name)
		}
	}

	endpoint := strings.TrimRight(source.BaseURL, "/") + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var body io.Reader
	if len(remaining) > 0 && template.Method != http.MethodGet && template.Method != http.MethodHead {
		payload, err := json.Marshal(remaining)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
		headers.Set("Content-Type", "application/json")
	}

	req, err := http.NewRequestWithContext(ctx, template.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	if err := p.applyAuth(ctx, source, req); err != nil {
		return nil, err
	}
	return req, nil
}

// applyAuth resolves the source's secret map and applies it as request
// headers. The resolved map is flat header-name → value; the core never
// sees vault internals.
func (p *HTTPProvider) applyAuth(ctx context.Context, source tool.Source, req *http.Request) error {
	if p.secrets == nil || source.SecretKey == "" {
		return nil
	}
	values, err := p.secrets.Resolve(ctx, secrets.Request{SourceKey: source.SecretKey, Scope: source.WorkspaceID})
	if err != nil {
		return fmt.Errorf("failed to resolve credentials: %w", err)
	}
	for name, value := range values {
		req.Header.Set(name, value)
	}
	return nil
}

// decodeBody decodes JSON responses; anything else passes through as a
// string.
func decodeBody(contentType string, body []byte) any {
	if strings.Contains(contentType, "application/json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			return decoded
		}
	}
	return string(body)
}
