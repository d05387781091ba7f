package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/samsaffron/toolchat/internal/llm"
)

const defaultShellTimeout = 2 * time.Minute

// ShellTool implements the shell tool. Commands run only when they match one
// of the configured allow patterns.
type ShellTool struct {
	allow   []glob.Glob
	raw     []string
	timeout time.Duration
	limits  OutputLimits
}

// NewShellTool compiles the allow patterns. A pattern like "git *" matches
// any git invocation; "go test ./..." matches exactly.
func NewShellTool(allow []string, timeout time.Duration, limits OutputLimits) (*ShellTool, error) {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	t := &ShellTool{timeout: timeout, limits: limits}
	for _, pattern := range allow {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid shell_allow pattern %q: %w", pattern, err)
		}
		t.allow = append(t.allow, g)
		t.raw = append(t.raw, pattern)
	}
	return t, nil
}

// ShellArgs are the arguments for the shell tool.
type ShellArgs struct {
	Command        string `json:"command"`
	WorkingDir     string `json:"working_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ShellResult contains the result of a shell command.
type ShellResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

func (t *ShellTool) Spec() llm.ToolSpec {
	desc := "Execute a shell command. Returns stdout, stderr, and exit code."
	if len(t.raw) > 0 {
		desc += " Allowed command patterns: " + strings.Join(t.raw, ", ")
	}
	return llm.ToolSpec{
		Name:        ShellToolName,
		Description: desc,
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory (defaults to current directory)",
				},
				"timeout_seconds": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Command timeout in seconds (max: %d)", int(t.timeout.Seconds())),
				},
			},
			"required":             []string{"command"},
			"additionalProperties": false,
		},
	}
}

func (t *ShellTool) Preview(args json.RawMessage) string {
	var a ShellArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Command == "" {
		return ""
	}
	return truncateCommand(a.Command)
}

// Allowed reports whether command matches an allow pattern.
func (t *ShellTool) Allowed(command string) bool {
	command = strings.TrimSpace(command)
	for _, g := range t.allow {
		if g.Match(command) {
			return true
		}
	}
	return false
}

func (t *ShellTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ShellArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Command == "" {
		return "", NewToolError(ErrInvalidParams, "command is required")
	}
	if !t.Allowed(a.Command) {
		return "", NewToolErrorf(ErrPermissionDenied, "command not allowed: %s", truncateCommand(a.Command))
	}

	timeout := t.timeout
	if a.TimeoutSeconds > 0 {
		if requested := time.Duration(a.TimeoutSeconds) * time.Second; requested < timeout {
			timeout = requested
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, detectShell(), "-c", a.Command)
	cmd.Dir = a.WorkingDir
	// Grandchildren can hold the pipes open after the shell is killed.
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ShellResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		return formatShellResult(result, t.limits), nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", NewToolErrorf(ErrExecutionFailed, "command error: %v", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return ignoredParamsNote(args, "command", "working_dir", "timeout_seconds") + formatShellResult(result, t.limits), nil
}

func formatShellResult(result ShellResult, limits OutputLimits) string {
	var sb strings.Builder
	stdout, stderr := result.Stdout, result.Stderr
	truncated := false
	if limits.MaxBytes > 0 {
		if int64(len(stdout)) > limits.MaxBytes {
			stdout = stdout[:limits.MaxBytes]
			truncated = true
		}
		if int64(len(stderr)) > limits.MaxBytes {
			stderr = stderr[:limits.MaxBytes]
			truncated = true
		}
	}

	if result.TimedOut {
		sb.WriteString("[Command timed out]\n\n")
	}
	if stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			sb.WriteString("\n")
		}
	}
	if stderr != "" {
		if stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "\nexit_code: %d", result.ExitCode)
	if truncated {
		sb.WriteString("\n\n[Output truncated due to size limit]")
	}
	return sb.String()
}

func detectShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "sh"
}

func truncateCommand(cmd string) string {
	if len(cmd) > 50 {
		return cmd[:47] + "..."
	}
	return cmd
}
