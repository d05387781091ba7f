package llm

import (
	"encoding/json"
	"errors"
)

// ErrNoBackend is returned when a loop is started without a backend.
var ErrNoBackend = errors.New("no model backend configured")

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry in the conversation history.
//
// Which fields are meaningful depends on Role: ToolCalls and Reasoning only
// appear on assistant turns, ToolName only on tool results.
type Turn struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolSpec describes a callable tool in the catalog sent to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ResponseChunk is one unit of streamed backend output. Done marks the
// final chunk of a round.
type ResponseChunk struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Done      bool
	Usage     *Usage
}

// Empty reports whether the chunk carries no payload at all.
func (c ResponseChunk) Empty() bool {
	return c.Content == "" && c.Reasoning == "" && len(c.ToolCalls) == 0 && c.Usage == nil && !c.Done
}

// Request represents a single model round. It is built fresh for every
// round from a snapshot of the history.
type Request struct {
	Model    string
	History  []Turn
	Tools    []ToolSpec
	Thinking bool
}

// EventType describes observer events.
type EventType string

const (
	EventChunk       EventType = "chunk"
	EventToolStarted EventType = "tool_started"
	EventToolResult  EventType = "tool_result"
)

// ToolEvent is published to the observer. It is not part of the history.
type ToolEvent struct {
	Type EventType

	// EventChunk
	Chunk *ResponseChunk

	// EventToolStarted and EventToolResult
	ID        int
	Name      string
	Arguments json.RawMessage

	// EventToolResult: Result on success, Err on failure
	Result string
	Err    error
}

// Succeeded reports whether a tool result event carries a successful outcome.
func (e ToolEvent) Succeeded() bool {
	return e.Type == EventToolResult && e.Err == nil
}

func SystemTurn(text string) Turn {
	return Turn{Role: RoleSystem, Text: text}
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

func AssistantTurn(text, reasoning string, calls []ToolCall) Turn {
	return Turn{Role: RoleAssistant, Text: text, Reasoning: reasoning, ToolCalls: calls}
}

func ToolResultTurn(text, toolName string) Turn {
	return Turn{Role: RoleTool, Text: text, ToolName: toolName}
}

// ToolFailureText formats a failed tool execution as the text the model sees.
func ToolFailureText(err error) string {
	return "Tool Failed: " + err.Error()
}
