// Package debuglog reads the JSONL files written by --debug-log.
package debuglog

import (
	"encoding/json"
	"time"

	"github.com/samsaffron/toolchat/internal/llm"
)

// RoundEntry is the request sent to the backend for one round.
type RoundEntry struct {
	Timestamp time.Time
	Round     int
	Backend   string
	Model     string
	Thinking  bool
	Tools     []string
	History   []llm.Turn
}

// EventEntry is one observer event, or a loop-ending error.
type EventEntry struct {
	Timestamp time.Time
	EventType string // chunk, tool_started, tool_result or error
	Data      map[string]any
}

// Session is a fully parsed debug log.
type Session struct {
	ID        string
	FilePath  string
	StartTime time.Time
	EndTime   time.Time
	Backend   string
	Model     string
	Rounds    int
	ToolCalls int
	Tokens    TokenUsage
	HasErrors bool
	Command   string
	Args      []string
	Cwd       string
	Entries   []any // RoundEntry or EventEntry
}

// TokenUsage sums the usage reported on final chunks.
type TokenUsage struct {
	Input  int
	Output int
}

// SessionSummary is the listing view of a debug log.
type SessionSummary struct {
	ID        string
	FilePath  string
	StartTime time.Time
	Backend   string
	Model     string
	Rounds    int
	Input     int
	Output    int
	HasErrors bool
	FileSize  int64
}

// rawEntry is the union of every line shape.
type rawEntry struct {
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Command   string          `json:"command,omitempty"`
	Args      []string        `json:"args,omitempty"`
	Cwd       string          `json:"cwd,omitempty"`
	Round     int             `json:"round,omitempty"`
	Backend   string          `json:"backend,omitempty"`
	Model     string          `json:"model,omitempty"`
	Thinking  bool            `json:"thinking,omitempty"`
	Tools     []string        `json:"tools,omitempty"`
	History   []llm.Turn      `json:"history,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}
