// Package testutil holds tool doubles shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/samsaffron/toolchat/internal/llm"
)

// MockTool is a configurable tool for testing. It is safe for concurrent
// calls, since the tool loop runs calls in parallel.
type MockTool struct {
	SpecData  llm.ToolSpec
	ExecuteFn func(ctx context.Context, args json.RawMessage) (string, error)
	PreviewFn func(args json.RawMessage) string

	mu          sync.Mutex
	invocations []MockToolInvocation
}

// MockToolInvocation records a single tool invocation.
type MockToolInvocation struct {
	Args   json.RawMessage
	Result string
	Error  error
}

func (m *MockTool) Spec() llm.ToolSpec {
	return m.SpecData
}

func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var result string
	var err error
	if m.ExecuteFn != nil {
		result, err = m.ExecuteFn(ctx, args)
	}
	m.mu.Lock()
	m.invocations = append(m.invocations, MockToolInvocation{Args: args, Result: result, Error: err})
	m.mu.Unlock()
	return result, err
}

func (m *MockTool) Preview(args json.RawMessage) string {
	if m.PreviewFn == nil {
		return ""
	}
	return m.PreviewFn(args)
}

// NewMockTool creates a mock tool with the given name that returns a fixed result.
func NewMockTool(name string, result string) *MockTool {
	return NewMockToolFunc(name, func(ctx context.Context, args json.RawMessage) (string, error) {
		return result, nil
	})
}

// NewMockToolFunc creates a mock tool backed by fn.
func NewMockToolFunc(name string, fn func(ctx context.Context, args json.RawMessage) (string, error)) *MockTool {
	return &MockTool{
		SpecData: llm.ToolSpec{
			Name:        name,
			Description: "Mock tool: " + name,
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		ExecuteFn: fn,
	}
}

// Invocations returns a copy of the recorded invocations.
func (m *MockTool) Invocations() []MockToolInvocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockToolInvocation(nil), m.invocations...)
}

// InvocationCount returns the number of times the tool was invoked.
func (m *MockTool) InvocationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invocations)
}

// LastArgs returns the arguments from the last invocation, or nil if never invoked.
func (m *MockTool) LastArgs() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.invocations) == 0 {
		return nil
	}
	return m.invocations[len(m.invocations)-1].Args
}

// FuncExecutor routes calls by tool name to plain functions. Unknown names
// return ErrUnknownTool.
type FuncExecutor map[string]func(ctx context.Context, args json.RawMessage) (string, error)

// ErrUnknownTool is returned by FuncExecutor for unmapped names.
var ErrUnknownTool = unknownToolError{}

type unknownToolError struct{}

func (unknownToolError) Error() string { return "unknown tool" }

func (f FuncExecutor) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	fn, ok := f[name]
	if !ok {
		return "", ErrUnknownTool
	}
	return fn(ctx, args)
}

var _ llm.ToolExecutor = FuncExecutor(nil)
