package tools

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellArgs(t *testing.T, a ShellArgs) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	return data
}

func newTestShell(t *testing.T, allow ...string) *ShellTool {
	t.Helper()
	tool, err := NewShellTool(allow, 5*time.Second, DefaultOutputLimits())
	require.NoError(t, err)
	return tool
}

func TestShellTool_Spec(t *testing.T) {
	spec := newTestShell(t, "echo *").Spec()
	assert.Equal(t, ShellToolName, spec.Name)
	assert.Contains(t, spec.Description, "echo *")

	props, ok := spec.Schema["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, p := range []string{"command", "working_dir", "timeout_seconds"} {
		assert.Contains(t, props, p)
	}
	assert.Equal(t, []string{"command"}, spec.Schema["required"])
}

func TestShellTool_Preview(t *testing.T) {
	tool := newTestShell(t)
	tests := []struct {
		name     string
		args     json.RawMessage
		expected string
	}{
		{"short command", shellArgs(t, ShellArgs{Command: "echo hello"}), "echo hello"},
		{"long command is truncated", shellArgs(t, ShellArgs{Command: "echo this is a very long command that exceeds fifty characters limit here"}), "echo this is a very long command that exceeds f..."},
		{"empty command", shellArgs(t, ShellArgs{}), ""},
		{"invalid JSON", json.RawMessage(`{invalid}`), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tool.Preview(tt.args))
		})
	}
}

func TestShellTool_Allowed(t *testing.T) {
	tool := newTestShell(t, "git *", "go test ./...", "ls*")
	assert.True(t, tool.Allowed("git status"))
	assert.True(t, tool.Allowed("  git log -1 "))
	assert.True(t, tool.Allowed("go test ./..."))
	assert.True(t, tool.Allowed("ls"))
	assert.True(t, tool.Allowed("ls -la"))
	assert.False(t, tool.Allowed("go test ./... && rm -rf /"))
	assert.False(t, tool.Allowed("rm -rf /"))
	assert.False(t, newTestShell(t).Allowed("ls"))
}

func TestShellTool_InvalidPattern(t *testing.T) {
	_, err := NewShellTool([]string{"[unclosed"}, 0, DefaultOutputLimits())
	assert.Error(t, err)
}

func TestShellTool_Denied(t *testing.T) {
	tool := newTestShell(t, "echo *")
	_, err := tool.Execute(context.Background(), shellArgs(t, ShellArgs{Command: "rm -rf /tmp/x"}))

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, ErrPermissionDenied, toolErr.Type)
}

func TestShellTool_Execute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	tool := newTestShell(t, "echo *", "exit *", "sleep *")

	out, err := tool.Execute(context.Background(), shellArgs(t, ShellArgs{Command: "echo hello"}))
	require.NoError(t, err)
	assert.Contains(t, out, "stdout:\nhello\n")
	assert.Contains(t, out, "exit_code: 0")

	out, err = tool.Execute(context.Background(), json.RawMessage(`{"command":"echo hi","shell":"zsh"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "note: ignored unknown parameters: shell\n"))

	out, err = tool.Execute(context.Background(), shellArgs(t, ShellArgs{Command: "exit 3"}))
	require.NoError(t, err, "non-zero exit is reported in the output")
	assert.Contains(t, out, "exit_code: 3")

	out, err = tool.Execute(context.Background(), shellArgs(t, ShellArgs{Command: "sleep 5", TimeoutSeconds: 1}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "[Command timed out]"))
}

func TestShellTool_Cancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	tool := newTestShell(t, "sleep *")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := tool.Execute(ctx, shellArgs(t, ShellArgs{Command: "sleep 5"}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatShellResult(t *testing.T) {
	out := formatShellResult(ShellResult{Stdout: "0123456789", Stderr: "err", ExitCode: 1}, OutputLimits{MaxBytes: 4})
	assert.Contains(t, out, "stdout:\n0123\n")
	assert.Contains(t, out, "stderr:\nerr\n")
	assert.Contains(t, out, "exit_code: 1")
	assert.Contains(t, out, "[Output truncated due to size limit]")
}
