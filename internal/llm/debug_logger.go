package llm

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// debugRetention is how long JSONL debug files are kept.
const debugRetention = 7 * 24 * time.Hour

// debugTruncate caps logged tool output and reasoning.
const debugTruncate = 500

// DebugLogger writes every round request and observer event of a session
// to a JSONL file named after the session.
type DebugLogger struct {
	sessionID string
	path      string

	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	closeOnce sync.Once
	closed    bool
}

type debugEntry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
}

type debugStartEntry struct {
	debugEntry
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
}

type debugRoundEntry struct {
	debugEntry
	Round    int      `json:"round"`
	Backend  string   `json:"backend"`
	Model    string   `json:"model,omitempty"`
	Thinking bool     `json:"thinking,omitempty"`
	Tools    []string `json:"tools,omitempty"`
	History  []Turn   `json:"history"`
}

type debugEventEntry struct {
	debugEntry
	EventType string `json:"event_type"`
	Data      any    `json:"data,omitempty"`
}

// NewDebugLogger opens (or appends to) <dir>/<sessionID>.jsonl. Files older
// than seven days are removed first.
func NewDebugLogger(dir, sessionID string) (*DebugLogger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	_ = CleanupOldLogs(dir, debugRetention)

	path := filepath.Join(dir, sessionID+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &DebugLogger{
		sessionID: sessionID,
		path:      path,
		file:      file,
		writer:    bufio.NewWriter(file),
	}, nil
}

// Path returns the file being written.
func (l *DebugLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *DebugLogger) header(kind string) debugEntry {
	return debugEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: l.sessionID,
		Type:      kind,
	}
}

// LogSessionStart records how the CLI was invoked.
func (l *DebugLogger) LogSessionStart(command string, args []string, cwd string) {
	if l == nil {
		return
	}
	l.writeEntry(debugStartEntry{debugEntry: l.header("session_start"), Command: command, Args: args, Cwd: cwd})
	l.Flush()
}

// LogRound records the request sent to the backend for one round.
func (l *DebugLogger) LogRound(round int, backend string, req Request) {
	if l == nil {
		return
	}
	var tools []string
	for _, t := range req.Tools {
		tools = append(tools, t.Name)
	}
	l.writeEntry(debugRoundEntry{
		debugEntry: l.header("round"),
		Round:      round,
		Backend:    backend,
		Model:      req.Model,
		Thinking:   req.Thinking,
		Tools:      tools,
		History:    req.History,
	})
	l.Flush()
}

// LogEvent records an observer event. Chunks are buffered; tool events
// and final chunks flush.
func (l *DebugLogger) LogEvent(ev ToolEvent) {
	if l == nil {
		return
	}
	entry := debugEventEntry{debugEntry: l.header("event"), EventType: string(ev.Type)}
	flush := true

	switch ev.Type {
	case EventChunk:
		if ev.Chunk == nil {
			return
		}
		data := map[string]any{}
		if ev.Chunk.Content != "" {
			data["text"] = ev.Chunk.Content
		}
		if ev.Chunk.Reasoning != "" {
			data["reasoning"] = truncate(ev.Chunk.Reasoning)
		}
		if len(ev.Chunk.ToolCalls) > 0 {
			data["tool_calls"] = ev.Chunk.ToolCalls
		}
		if ev.Chunk.Usage != nil {
			data["input_tokens"] = ev.Chunk.Usage.InputTokens
			data["output_tokens"] = ev.Chunk.Usage.OutputTokens
		}
		if ev.Chunk.Done {
			data["done"] = true
		}
		entry.Data = data
		flush = ev.Chunk.Done
	case EventToolStarted:
		entry.Data = map[string]any{"id": ev.ID, "name": ev.Name, "arguments": ev.Arguments}
	case EventToolResult:
		data := map[string]any{"id": ev.ID, "name": ev.Name, "success": ev.Succeeded()}
		if ev.Err != nil {
			data["error"] = ev.Err.Error()
		} else {
			data["output"] = truncate(ev.Result)
		}
		entry.Data = data
	}

	l.writeEntry(entry)
	if flush {
		l.Flush()
	}
}

// LogError records a loop-ending error.
func (l *DebugLogger) LogError(err error) {
	if l == nil || err == nil {
		return
	}
	l.writeEntry(debugEventEntry{
		debugEntry: l.header("event"),
		EventType:  "error",
		Data:       map[string]string{"error": err.Error()},
	})
	l.Flush()
}

func truncate(s string) string {
	if len(s) <= debugTruncate {
		return s
	}
	return s[:debugTruncate] + "...[truncated]"
}

// Close flushes and closes the file. It is safe to call more than once.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	var closeErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if err := l.writer.Flush(); err != nil {
			closeErr = err
		}
		if err := l.file.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		l.closed = true
	})
	return closeErr
}

func (l *DebugLogger) writeEntry(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.WriteString("\n")
}

// Flush writes buffered entries to disk.
func (l *DebugLogger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.writer.Flush()
	}
}

// CleanupOldLogs removes .jsonl files in dir older than maxAge.
func CleanupOldLogs(dir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
