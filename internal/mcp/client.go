package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const clientName = "toolchat"

// ToolSpec describes a tool available from an MCP server.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Client wraps one MCP server connection.
type Client struct {
	name    string
	config  ServerConfig
	version string

	mu      sync.RWMutex
	session *mcp.ClientSession
	tools   []ToolSpec
}

func NewClient(name string, config ServerConfig, version string) *Client {
	if version == "" {
		version = "dev"
	}
	return &Client{name: name, config: config, version: version}
}

func (c *Client) Name() string { return c.name }

// Start launches or dials the server and fetches its tool list.
func (c *Client) Start(ctx context.Context) error {
	transport, err := c.transport()
	if err != nil {
		return err
	}
	return c.connect(ctx, transport)
}

func (c *Client) transport() (mcp.Transport, error) {
	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("MCP server %s: %w", c.name, err)
	}
	if c.config.TransportType() == "http" {
		return c.createHTTPTransport(), nil
	}
	return c.createStdioTransport(), nil
}

// createStdioTransport builds the server command. Configured env vars are
// layered over the parent environment; with none, the child inherits it.
func (c *Client) createStdioTransport() mcp.Transport {
	// The command outlives Start, so it is not bound to the start context.
	cmd := exec.Command(c.config.Command, c.config.Args...)
	if len(c.config.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.config.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, os.ExpandEnv(v)))
		}
	}
	return &mcp.CommandTransport{Command: cmd}
}

func (c *Client) createHTTPTransport() mcp.Transport {
	transport := &mcp.StreamableClientTransport{Endpoint: c.config.URL}
	if len(c.config.Headers) > 0 {
		headers := make(map[string]string, len(c.config.Headers))
		for k, v := range c.config.Headers {
			headers[k] = os.ExpandEnv(v)
		}
		transport.HTTPClient = &http.Client{Transport: headerTransport{headers: headers, base: http.DefaultTransport}}
	}
	return transport
}

// headerTransport adds fixed headers, e.g. Authorization, to every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func (c *Client) connect(ctx context.Context, transport mcp.Transport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}

	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: c.version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to MCP server %s: %w", c.name, err)
	}

	tools, err := listTools(ctx, session)
	if err != nil {
		session.Close()
		return fmt.Errorf("list tools from %s: %w", c.name, err)
	}
	c.session = session
	c.tools = tools
	return nil
}

func listTools(ctx context.Context, session *mcp.ClientSession) ([]ToolSpec, error) {
	var specs []ToolSpec
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		specs = append(specs, ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      schemaMap(tool.InputSchema),
		})
	}
	return specs, nil
}

// schemaMap normalises an input schema of any shape to a JSON object map.
func schemaMap(schema any) map[string]any {
	switch s := schema.(type) {
	case nil:
		return map[string]any{"type": "object", "properties": map[string]any{}}
	case map[string]any:
		return s
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// Stop closes the connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.tools = nil
	return err
}

// IsRunning reports whether the connection is open.
func (c *Client) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// Tools returns the tools the server advertised at connect time.
func (c *Client) Tools() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ToolSpec(nil), c.tools...)
}

// CallTool invokes a tool on the server. A result flagged IsError becomes an
// error carrying the server's text.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return "", fmt.Errorf("MCP server %s is not running", c.name)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	text := formatContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("%s: %s", name, text)
	}
	return text, nil
}

func formatContent(content []mcp.Content) string {
	var sb strings.Builder
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			sb.WriteString(v.Text)
		case *mcp.ImageContent:
			fmt.Fprintf(&sb, "[image %s, %d bytes]", v.MIMEType, len(v.Data))
		default:
			if data, err := json.Marshal(c); err == nil {
				sb.Write(data)
			}
		}
	}
	return sb.String()
}
