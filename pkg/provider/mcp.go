package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// mcpSourceConfig is the source-level connection description for an MCP
// protocol server: either a command to spawn (stdio transport) or a URL
// (SSE transport).
type mcpSourceConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// MCPProvider serves tools exposed by MCP protocol servers. Connections
// are cached per source id and re-established on demand.
type MCPProvider struct {
	clientName    string
	clientVersion string

	mu      sync.Mutex
	clients map[string]*client.Client
}

// NewMCPProvider creates the provider.
func NewMCPProvider() *MCPProvider {
	return &MCPProvider{
		clientName:    "assistant",
		clientVersion: "0.1.0",
		clients:       make(map[string]*client.Client),
	}
}

// Kind implements Provider.
func (p *MCPProvider) Kind() tool.ProviderKind { return tool.ProviderMCP }

// Discover connects to the source's MCP server and lists its tools.
func (p *MCPProvider) Discover(ctx context.Context, source tool.Source) (*tool.ToolManifest, error) {
	c, err := p.connect(ctx, source)
	if err != nil {
		return nil, err
	}

	toolsResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		p.drop(source.ID)
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	manifest := &tool.ToolManifest{Version: tool.ManifestVersion}
	for _, t := range toolsResult.Tools {
		payload, err := json.Marshal(map[string]string{"mcp_tool": t.Name})
		if err != nil {
			return nil, err
		}
		manifest.Tools = append(manifest.Tools, tool.CanonicalToolDescriptor{
			ProviderKind:    tool.ProviderMCP,
			SourceID:        source.ID,
			WorkspaceID:     source.WorkspaceID,
			ToolID:          t.Name,
			Name:            t.Name,
			Description:     t.Description,
			InvocationMode:  mcpInvocationMode(t),
			Availability:    tool.AvailabilityEnabled,
			ProviderPayload: payload,
		})
	}
	manifest.Sort()
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	log.Info().Str("source_id", source.ID).Int("tools", len(manifest.Tools)).Msg("Discovered MCP tools")
	return manifest, nil
}

// Invoke calls one MCP tool.
func (p *MCPProvider) Invoke(ctx context.Context, source tool.Source, descriptor tool.CanonicalToolDescriptor, args map[string]any) (*Result, error) {
	c, err := p.connect(ctx, source)
	if err != nil {
		return nil, err
	}

	request := mcp.CallToolRequest{}
	request.Params.Name = descriptor.ToolID
	request.Params.Arguments = args

	result, err := c.CallTool(ctx, request)
	if err != nil {
		p.drop(source.ID)
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	return &Result{IsError: result.IsError, Output: flattenMCPContent(result)}, nil
}

// connect returns a cached session or establishes a new one.
func (p *MCPProvider) connect(ctx context.Context, source tool.Source) (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[source.ID]; ok {
		return c, nil
	}

	var cfg mcpSourceConfig
	if len(source.Config) > 0 {
		if err := json.Unmarshal(source.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid MCP source config: %w", err)
		}
	}
	if cfg.URL == "" && source.BaseURL != "" {
		cfg.URL = source.BaseURL
	}

	mcpTransport, err := p.buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	c := client.NewClient(mcpTransport)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: p.clientName, Version: p.clientVersion}

	serverInfo, err := c.Initialize(ctx, initRequest)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}
	if serverInfo.Capabilities.Tools == nil {
		c.Close()
		return nil, fmt.Errorf("MCP server %s does not support tools", source.ID)
	}

	log.Info().
		Str("source_id", source.ID).
		Str("server", serverInfo.ServerInfo.Name).
		Str("version", serverInfo.ServerInfo.Version).
		Msg("Connected to MCP server")

	p.clients[source.ID] = c
	return c, nil
}

// buildTransport selects stdio or SSE based on the source config.
func (p *MCPProvider) buildTransport(cfg mcpSourceConfig) (transport.Interface, error) {
	switch {
	case cfg.Command != "":
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		return transport.NewStdio(cfg.Command, env, cfg.Args...), nil
	case cfg.URL != "":
		return transport.NewSSE(cfg.URL)
	default:
		return nil, fmt.Errorf("MCP source config needs a command or a url")
	}
}

// drop evicts a cached session after a failure so the next call
// reconnects.
func (p *MCPProvider) drop(sourceID string) {
	p.mu.Lock()
	if c, ok := p.clients[sourceID]; ok {
		c.Close()
		delete(p.clients, sourceID)
	}
	p.mu.Unlock()
}

// Close tears down every cached session.
func (p *MCPProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}

// flattenMCPContent reduces an MCP result's content blocks to a value the
// bridge can hand back: a single string when there is one text block, a
// list otherwise.
func flattenMCPContent(result *mcp.CallToolResult) any {
	var texts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, text.Text)
		}
	}
	switch len(texts) {
	case 0:
		return nil
	case 1:
		return texts[0]
	default:
		return strings.Join(texts, "\n")
	}
}

// mcpInvocationMode classifies an MCP tool for audit receipts. MCP does
// not carry a reliable read/write flag, so common read-style name prefixes
// are recognized and everything else is treated as a write.
func mcpInvocationMode(t mcp.Tool) tool.InvocationMode {
	for _, prefix := range []string{"list", "get", "read", "search", "describe"} {
		if strings.HasPrefix(strings.ToLower(t.Name), prefix) {
			return tool.ModeRead
		}
	}
	return tool.ModeWrite
}
