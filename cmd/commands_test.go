package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/toolchat/internal/config"
	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/mcp"
	"github.com/samsaffron/toolchat/internal/session"
	"github.com/samsaffron/toolchat/internal/ui"
)

func plainStyles() *ui.Styles {
	return ui.NewStyles(&bytes.Buffer{}, ui.DefaultTheme())
}

func TestPrintModels(t *testing.T) {
	models := []string{"claude-haiku-4-5", "claude-sonnet-4-5", "gpt-4.1"}

	tests := []struct {
		name    string
		filter  string
		want    []string
		notWant []string
	}{
		{name: "all", want: []string{"anthropic models:", "claude-haiku-4-5", "gpt-4.1"}},
		{name: "fuzzy", filter: "sonet", want: []string{"claude-sonnet-4-5"}, notWant: []string{"gpt-4.1", "haiku"}},
		{name: "no match", filter: "zzz", want: []string{`No anthropic models match "zzz"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printModels(&buf, plainStyles(), "anthropic", models, tt.filter, false))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestPrintModelsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printModels(&buf, plainStyles(), "debug", []string{"fast", "slow"}, "fa", true))

	var got struct {
		Provider string   `json:"provider"`
		Models   []string `json:"models"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "debug", got.Provider)
	assert.Equal(t, []string{"fast"}, got.Models)

	buf.Reset()
	require.NoError(t, printModels(&buf, plainStyles(), "debug", nil, "", true))
	assert.Contains(t, buf.String(), `"models": []`)
}

func seedStore(t *testing.T) session.Store {
	t.Helper()
	store, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	sess := &session.Session{ID: "abcd1234-0000", Provider: "debug", Model: "instant", Mode: session.ModeChat}
	require.NoError(t, store.Create(ctx, sess))
	args := json.RawMessage(`{"file_path":"main.go"}`)
	for _, turn := range []llm.Turn{
		llm.SystemTurn("system"),
		llm.UserTurn("what does main do"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{Name: "read_file", Arguments: args}}},
		llm.ToolResultTurn("package main", "read_file"),
		llm.AssistantTurn("It starts the CLI.", "", nil),
	} {
		require.NoError(t, store.AppendTurn(ctx, sess.ID, turn))
	}
	require.NoError(t, store.AddMetrics(ctx, sess.ID, session.Metrics{Rounds: 2, ToolCalls: 1, InputTokens: 1500, OutputTokens: 20}))
	require.NoError(t, store.UpdateStatus(ctx, sess.ID, session.StatusComplete))
	require.NoError(t, store.SetCurrent(ctx, sess.ID))
	return store
}

func TestListSessions(t *testing.T) {
	store := seedStore(t)
	var buf bytes.Buffer
	require.NoError(t, listSessions(context.Background(), &buf, store, session.ListOptions{}, time.Now()))

	out := buf.String()
	assert.Contains(t, out, "abcd1234")
	assert.Contains(t, out, "what does main do")
	assert.Contains(t, out, "1.5k/20")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "just now")

	buf.Reset()
	require.NoError(t, listSessions(context.Background(), &buf, store, session.ListOptions{Model: "other"}, time.Now()))
	assert.Equal(t, "No sessions found.\n", buf.String())
}

func TestShowSession(t *testing.T) {
	store := seedStore(t)
	var buf bytes.Buffer
	require.NoError(t, showSession(context.Background(), &buf, store, "last"))

	out := buf.String()
	assert.Contains(t, out, "Session: abcd1234-0000")
	assert.Contains(t, out, "Rounds: 2")
	assert.Contains(t, out, "> what does main do")
	assert.Contains(t, out, "  call read_file(main.go)")
	assert.Contains(t, out, "  read_file -> package main")
	assert.Contains(t, out, "assistant: It starts the CLI.")
	assert.NotContains(t, out, "system")

	assert.Error(t, showSession(context.Background(), &buf, store, "zzzz"))
}

func TestExportMarkdown(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	sess, err := store.Get(ctx, "abcd1234-0000")
	require.NoError(t, err)
	turns, err := store.Turns(ctx, sess.ID)
	require.NoError(t, err)

	md := exportMarkdown(sess, turns)
	assert.True(t, strings.HasPrefix(md, "# Chat Export\n"))
	assert.Contains(t, md, "## User\n\nwhat does main do")
	assert.Contains(t, md, "- `read_file(main.go)`")
	assert.Contains(t, md, "### Tool result: read_file\n\n```\npackage main\n```")
	assert.NotContains(t, md, "system")
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "2026-02-08"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRelativeTime(now.Add(-tt.ago), now))
	}
}

func TestFormatSessionTokens(t *testing.T) {
	assert.Equal(t, "-", formatSessionTokens(0, 0))
	assert.Equal(t, "999/1.0k", formatSessionTokens(999, 1000))
	assert.Equal(t, "2.5M/40", formatSessionTokens(2_500_000, 40))
}

func TestBuildServerConfig(t *testing.T) {
	stdio, err := buildServerConfig("", []string{"npx", "-y", "server"}, nil, []string{"TOKEN=abc=def"})
	require.NoError(t, err)
	assert.Equal(t, "npx", stdio.Command)
	assert.Equal(t, []string{"-y", "server"}, stdio.Args)
	assert.Equal(t, map[string]string{"TOKEN": "abc=def"}, stdio.Env)
	assert.Equal(t, "stdio", stdio.TransportType())

	http, err := buildServerConfig("https://example.com/mcp", nil, []string{"Authorization=Bearer x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http", http.TransportType())
	assert.Equal(t, "Bearer x", http.Headers["Authorization"])

	_, err = buildServerConfig("", nil, nil, nil)
	assert.Error(t, err, "neither url nor command")

	_, err = buildServerConfig("https://example.com", []string{"cmd"}, nil, nil)
	assert.Error(t, err, "both url and command")

	_, err = buildServerConfig("", []string{"cmd"}, nil, []string{"NOVALUE"})
	assert.ErrorContains(t, err, `invalid env "NOVALUE"`)
}

func TestPrintMCPServers(t *testing.T) {
	var buf bytes.Buffer
	printMCPServers(&buf, &mcp.Config{}, "/tmp/mcp.json")
	assert.Contains(t, buf.String(), "No MCP servers configured.")

	cfg := &mcp.Config{Servers: map[string]mcp.ServerConfig{
		"fs":   {Command: "npx", Args: []string{"server-fs", "."}},
		"docs": {URL: "https://example.com/mcp", Headers: map[string]string{"A": "b"}, Disabled: true},
	}}
	buf.Reset()
	printMCPServers(&buf, cfg, "/tmp/mcp.json")
	out := buf.String()
	assert.Contains(t, out, "Configured MCP servers (2):")
	assert.Contains(t, out, "  docs (disabled)\n    url: https://example.com/mcp\n    headers: 1")
	assert.Contains(t, out, "  fs\n    command: npx server-fs .")
	assert.Less(t, strings.Index(out, "docs"), strings.Index(out, "  fs"))
	assert.Contains(t, out, "Config file: /tmp/mcp.json")
}

func TestPrintMCPStates(t *testing.T) {
	var buf bytes.Buffer
	printMCPStates(&buf, plainStyles(), []mcp.ServerState{
		{Name: "docs", Status: mcp.StatusFailed, Error: errors.New("connection refused")},
		{Name: "fs", Status: mcp.StatusReady, Tools: 3},
	})
	assert.Equal(t, "✗ docs: connection refused\n✓ fs: 3 tools\n", buf.String())
}

func TestPrintConfigRedactsKeys(t *testing.T) {
	cfg := &config.Config{
		Provider:  "anthropic",
		Anthropic: config.AnthropicConfig{APIKey: "sk-ant-secret-value", Model: "claude-sonnet-4-5"},
	}
	var buf bytes.Buffer
	require.NoError(t, printConfig(&buf, cfg))
	assert.Contains(t, buf.String(), "provider: anthropic")
	assert.Contains(t, buf.String(), "claude-sonnet-4-5")
	assert.NotContains(t, buf.String(), "sk-ant-secret-value")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"chat", "ask", "models", "sessions", "mcp", "config", "version", "debug-log"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
