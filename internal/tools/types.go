// Package tools provides the local tools offered to the model and the
// registry that executes them on behalf of the tool loop.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samsaffron/toolchat/internal/llm"
)

// Tool is a single callable capability. Execute returns the text handed back
// to the model; a non-nil error is reported to the model as a tool failure.
type Tool interface {
	Spec() llm.ToolSpec
	Preview(args json.RawMessage) string
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolErrorType provides structured errors the model can act on.
type ToolErrorType string

const (
	ErrFileNotFound     ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams    ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed  ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied ToolErrorType = "PERMISSION_DENIED"
	ErrBinaryFile       ToolErrorType = "BINARY_FILE"
	ErrTimeout          ToolErrorType = "TIMEOUT"
	ErrUnknownTool      ToolErrorType = "UNKNOWN_TOOL"
)

// ToolError provides structured error information.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Tool spec names
const (
	ReadFileToolName  = "read_file"
	WriteFileToolName = "write_file"
	GlobToolName      = "glob"
	ShellToolName     = "shell"
)

// AllToolNames returns the built-in tool names in catalog order.
func AllToolNames() []string {
	return []string{ReadFileToolName, WriteFileToolName, GlobToolName, ShellToolName}
}

// ValidToolName checks if a name is a built-in tool.
func ValidToolName(name string) bool {
	for _, n := range AllToolNames() {
		if n == name {
			return true
		}
	}
	return false
}

// OutputLimits defines limits for tool output.
type OutputLimits struct {
	MaxLines   int   // max lines for read_file
	MaxBytes   int64 // max bytes per tool output
	MaxResults int   // max glob matches
}

// DefaultOutputLimits returns the default output limits.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		MaxLines:   2000,
		MaxBytes:   64 * 1024,
		MaxResults: 200,
	}
}

// decodeArgs unmarshals tool arguments, treating empty input as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return NewToolError(ErrInvalidParams, err.Error())
	}
	return nil
}
