package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/toolchat/internal/config"
	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/testutil"
)

func TestNewBuiltinRegistry(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ToolsConfig
		want    []string
		wantErr bool
	}{
		{
			name: "defaults without shell patterns",
			cfg:  config.ToolsConfig{},
			want: []string{"glob", "read_file", "write_file"},
		},
		{
			name: "shell with patterns",
			cfg:  config.ToolsConfig{ShellAllow: []string{"ls*"}, ShellTimeout: time.Second},
			want: []string{"glob", "read_file", "shell", "write_file"},
		},
		{
			name: "explicit subset",
			cfg:  config.ToolsConfig{Enabled: []string{"read_file"}},
			want: []string{"read_file"},
		},
		{
			name:    "unknown tool",
			cfg:     config.ToolsConfig{Enabled: []string{"teleport"}},
			wantErr: true,
		},
		{
			name:    "bad shell pattern",
			cfg:     config.ToolsConfig{Enabled: []string{"shell"}, ShellAllow: []string{"[x"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewBuiltinRegistry(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Names())
		})
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(testutil.NewMockTool("b", "B")))
	require.NoError(t, r.Register(testutil.NewMockTool("a", "A")))
	assert.Error(t, r.Register(testutil.NewMockTool("a", "again")))
	assert.Error(t, r.Register(testutil.NewMockTool("", "nameless")))

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "b", specs[0].Name, "specs keep registration order")
	assert.Equal(t, "a", specs[1].Name)
}

func TestRegistryCall(t *testing.T) {
	r := NewRegistry(nil)
	echo := testutil.NewMockToolFunc("echo", func(ctx context.Context, args json.RawMessage) (string, error) {
		return string(args), nil
	})
	require.NoError(t, r.Register(echo))

	out, err := r.Call(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, out)
	assert.Equal(t, 1, echo.InvocationCount())

	_, err = r.Call(context.Background(), "missing", nil)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, ErrUnknownTool, toolErr.Type)
}

func TestRegistryRestrict(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(testutil.NewMockTool("read_file", "r")))
	require.NoError(t, r.Register(testutil.NewMockTool("shell", "s")))

	r.Restrict([]string{"read_file"})
	assert.Equal(t, []string{"read_file"}, r.Names())
	require.Len(t, r.Specs(), 1)

	_, err := r.Call(context.Background(), "shell", nil)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, ErrPermissionDenied, toolErr.Type)

	r.Restrict([]string{})
	assert.Empty(t, r.Names())
	assert.Empty(t, r.Specs())

	r.Restrict(nil)
	assert.Len(t, r.Names(), 2)
}

func TestRegistryTruncatesOutput(t *testing.T) {
	r, err := NewBuiltinRegistry(config.ToolsConfig{Enabled: []string{"read_file"}, MaxOutput: 8}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(testutil.NewMockTool("big", strings.Repeat("z", 100))))

	out, err := r.Call(context.Background(), "big", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "zzzzzzzz\n\n[Output truncated"))
}

func TestRegistryPreview(t *testing.T) {
	r, err := NewBuiltinRegistry(config.ToolsConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "main.go", r.Preview("read_file", json.RawMessage(`{"file_path":"main.go"}`)))
	assert.Equal(t, "", r.Preview("nope", nil))
}

// The registry serves the tool loop end to end: parallel calls, failures in
// band, and results correlated with their calls.
func TestRegistryDrivesLoop(t *testing.T) {
	r := NewRegistry(nil)
	var mu sync.Mutex
	seen := map[string]int{}
	require.NoError(t, r.Register(testutil.NewMockToolFunc("count", func(ctx context.Context, args json.RawMessage) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[string(args)]++
		return "counted " + string(args), nil
	})))

	backend := llm.NewMockBackend("mock")
	backend.AddToolCalls(
		llm.ToolCall{Name: "count", Arguments: json.RawMessage(`"a"`)},
		llm.ToolCall{Name: "count", Arguments: json.RawMessage(`"b"`)},
		llm.ToolCall{Name: "forbidden", Arguments: json.RawMessage(`{}`)},
	)
	backend.AddTextResponse("done")

	engine := llm.NewEngine(backend, r)
	require.Len(t, engine.Tools(), 1)

	history, err := engine.Run(context.Background(), llm.NewHistory(llm.UserTurn("go"))).Wait()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{`"a"`: 1, `"b"`: 1}, seen)

	var failures int
	for _, turn := range history {
		if turn.Role == llm.RoleTool && strings.HasPrefix(turn.Text, "Tool Failed: UNKNOWN_TOOL") {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, "done", history.LastAssistantText())
}
