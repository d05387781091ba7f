package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/tools"
)

func TestCreateStdioTransport_InheritsEnv(t *testing.T) {
	t.Setenv("TEST_MCP_VAR", "original")
	client := NewClient("test", ServerConfig{
		Command: "echo",
		Args:    []string{"hello"},
		Env:     map[string]string{"CUSTOM_VAR": "custom_value", "TEST_MCP_VAR": "overridden"},
	}, "")

	ct, ok := client.createStdioTransport().(*sdkmcp.CommandTransport)
	require.True(t, ok)

	env := ct.Command.Env
	require.NotNil(t, env)
	var hasPath bool
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			hasPath = true
		}
	}
	assert.True(t, hasPath, "parent PATH inherited")
	assert.Contains(t, env, "CUSTOM_VAR=custom_value")
	// Last value wins in exec.Cmd.
	assert.Equal(t, "TEST_MCP_VAR=overridden", lastWith(env, "TEST_MCP_VAR="))
}

func lastWith(env []string, prefix string) string {
	found := ""
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			found = e
		}
	}
	return found
}

func TestCreateStdioTransport_NoEnvNil(t *testing.T) {
	for _, env := range []map[string]string{nil, {}} {
		client := NewClient("test", ServerConfig{Command: "echo", Env: env}, "")
		ct := client.createStdioTransport().(*sdkmcp.CommandTransport)
		assert.Nil(t, ct.Command.Env, "child inherits the parent environment")
	}
}

func TestCreateHTTPTransport(t *testing.T) {
	client := NewClient("remote", ServerConfig{URL: "https://example.com/mcp", Headers: map[string]string{"Authorization": "Bearer x"}}, "")
	transport, err := client.transport()
	require.NoError(t, err)
	ht, ok := transport.(*sdkmcp.StreamableClientTransport)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/mcp", ht.Endpoint)
	assert.NotNil(t, ht.HTTPClient)
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"stdio", ServerConfig{Command: "npx"}, false},
		{"http", ServerConfig{URL: "http://localhost:3000"}, false},
		{"http type without url", ServerConfig{Type: "http"}, true},
		{"empty", ServerConfig{}, true},
		{"both", ServerConfig{Command: "x", URL: "http://y"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "mcp.json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Servers)

	require.NoError(t, cfg.AddServer("files", ServerConfig{Command: "mcp-files", Args: []string{"--root", "."}}))
	require.NoError(t, cfg.AddServer("api", ServerConfig{URL: "http://localhost:9000/mcp"}))
	assert.Error(t, cfg.AddServer("bad", ServerConfig{}))
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "files"}, loaded.ServerNames())
	assert.Equal(t, []string{"--root", "."}, loaded.Servers["files"].Args)

	assert.True(t, loaded.RemoveServer("api"))
	assert.False(t, loaded.RemoveServer("api"))
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"servers":{"x":{}}}`), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

// startInMemory connects a client named name to an in-process server
// exposing echo and fail tools.
func startInMemory(t *testing.T, m *Manager, name string) {
	t.Helper()
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "test-server", Version: "test"}, nil)
	server.AddTool(&sdkmcp.Tool{
		Name:        "echo",
		Description: "Echo input",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		var payload map[string]string
		if err := json.Unmarshal(req.Params.Arguments, &payload); err != nil {
			return nil, err
		}
		return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "echo:" + payload["text"]}}}, nil
	})
	server.AddTool(&sdkmcp.Tool{
		Name:        "fail",
		Description: "Always fails",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		return &sdkmcp.CallToolResult{IsError: true, Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "boom"}}}, nil
	})

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	session, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		_ = session.Close()
	})

	client := NewClient(name, ServerConfig{Command: "in-memory"}, "test")
	require.NoError(t, m.startClient(ctx, client, clientTransport))
}

func TestManagerInMemory(t *testing.T) {
	m := NewManager(nil, "test", nil)
	startInMemory(t, m, "mem")
	t.Cleanup(m.StopAll)

	states := m.States()
	require.Len(t, states, 1)
	assert.Equal(t, StatusReady, states[0].Status)
	assert.Equal(t, 2, states[0].Tools)

	all := m.AllTools()
	require.Len(t, all, 2)
	assert.Equal(t, "mem__echo", all[0].Name)
	assert.Equal(t, "[mem] Echo input", all[0].Description)
	assert.Equal(t, "object", all[0].Schema["type"])

	out, err := m.CallTool(context.Background(), "mem__echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)

	_, err = m.CallTool(context.Background(), "mem__fail", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = m.CallTool(context.Background(), "other__echo", nil)
	assert.Error(t, err)
	_, err = m.CallTool(context.Background(), "noseparator", nil)
	assert.Error(t, err)
}

func TestRegisterToolsDrivesLoop(t *testing.T) {
	m := NewManager(nil, "test", nil)
	startInMemory(t, m, "mem")
	t.Cleanup(m.StopAll)

	registry := tools.NewRegistry(nil)
	n, err := RegisterTools(m, registry)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "(hi)", registry.Preview("mem__echo", json.RawMessage(`{"text":"hi"}`)))

	backend := llm.NewMockBackend("mock")
	backend.AddToolCalls(
		llm.ToolCall{Name: "mem__echo", Arguments: json.RawMessage(`{"text":"ping"}`)},
		llm.ToolCall{Name: "mem__fail", Arguments: json.RawMessage(`{}`)},
	)
	backend.AddTextResponse("ok")

	history, err := llm.NewEngine(backend, registry).Run(context.Background(), llm.NewHistory(llm.UserTurn("use tools"))).Wait()
	require.NoError(t, err)

	results := map[string]string{}
	for _, turn := range history {
		if turn.Role == llm.RoleTool {
			results[turn.ToolName] = turn.Text
		}
	}
	assert.Equal(t, "echo:ping", results["mem__echo"])
	assert.True(t, strings.HasPrefix(results["mem__fail"], "Tool Failed: "))
}

func TestRegisterToolsConflictThenStopAll(t *testing.T) {
	m := NewManager(nil, "test", nil)
	startInMemory(t, m, "mem")
	client := m.servers["mem"].client
	require.True(t, client.IsRunning())

	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register(NewTool(m, ToolSpec{Name: "mem__echo"})))
	_, err := RegisterTools(m, registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	// Startup aborts through StopAll, which must leave nothing connected.
	m.StopAll()
	assert.False(t, client.IsRunning())
	assert.Empty(t, m.States())
	_, err = m.CallTool(context.Background(), "mem__echo", json.RawMessage(`{"text":"hi"}`))
	assert.Error(t, err)
}

func TestManagerStartUnknown(t *testing.T) {
	m := NewManager(&Config{Servers: map[string]ServerConfig{}}, "", nil)
	err := m.Start(context.Background(), "ghost")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestSchemaMap(t *testing.T) {
	assert.Equal(t, "object", schemaMap(nil)["type"])
	assert.Equal(t, "string", schemaMap(map[string]any{"type": "string"})["type"])
	assert.Equal(t, "object", schemaMap(json.RawMessage(`{"type":"object","properties":{}}`))["type"])
}
