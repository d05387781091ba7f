package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/samsaffron/toolchat/internal/config"
)

var debugTools = []ToolSpec{{Name: "read_file"}, {Name: "glob"}, {Name: "shell"}, {Name: "write_file"}}

func drain(t *testing.T, stream ChunkStream) (text string, calls []ToolCall, done bool) {
	t.Helper()
	defer stream.Close()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		text += chunk.Content
		calls = append(calls, chunk.ToolCalls...)
		done = done || chunk.Done
	}
}

func TestParseDebugCommands(t *testing.T) {
	tests := []struct {
		prompt string
		names  []string
	}{
		{"read main.go", []string{"read_file"}},
		{"glob **/*.go, shell ls -la", []string{"glob", "shell"}},
		{"read a.go x3", []string{"read_file", "read_file", "read_file"}},
		{"write notes.txt hello there", []string{"write_file"}},
		{"write notes.txt", nil},
		{"tell me a story", nil},
		{"edit main.go", nil},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			calls := parseDebugCommands(tt.prompt, debugTools)
			if len(calls) != len(tt.names) {
				t.Fatalf("got %d calls, want %d", len(calls), len(tt.names))
			}
			for i, c := range calls {
				if c.Name != tt.names[i] {
					t.Errorf("call %d = %q, want %q", i, c.Name, tt.names[i])
				}
			}
		})
	}
}

func TestParseDebugCommandsArguments(t *testing.T) {
	calls := parseDebugCommands("shell echo hi there, write out.txt a b", debugTools)
	if len(calls) != 2 {
		t.Fatalf("got %d calls", len(calls))
	}
	var shell map[string]string
	if err := json.Unmarshal(calls[0].Arguments, &shell); err != nil {
		t.Fatal(err)
	}
	if shell["command"] != "echo hi there" {
		t.Errorf("command = %q", shell["command"])
	}
	var write map[string]string
	if err := json.Unmarshal(calls[1].Arguments, &write); err != nil {
		t.Fatal(err)
	}
	if write["file_path"] != "out.txt" || write["content"] != "a b" {
		t.Errorf("write args = %v", write)
	}
}

func TestParseDebugCommandsRequiresTool(t *testing.T) {
	if calls := parseDebugCommands("read main.go", []ToolSpec{{Name: "glob"}}); len(calls) != 0 {
		t.Errorf("expected no calls without read_file, got %v", calls)
	}
}

func TestDebugBackendStreamsMarkdown(t *testing.T) {
	b := NewDebugBackend("instant")
	stream, err := b.SendChatStream(context.Background(), Request{History: []Turn{UserTurn("hello")}})
	if err != nil {
		t.Fatal(err)
	}
	text, calls, done := drain(t, stream)
	if text != debugMarkdown {
		t.Errorf("unexpected text %q", text)
	}
	if len(calls) != 0 || !done {
		t.Errorf("calls=%v done=%v", calls, done)
	}
}

func TestDebugBackendToolRound(t *testing.T) {
	b := NewDebugBackend("instant")
	req := Request{History: []Turn{UserTurn("glob *.go, read go.mod")}, Tools: debugTools}

	stream, err := b.SendChatStream(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	_, calls, _ := drain(t, stream)
	if len(calls) != 2 {
		t.Fatalf("got %d calls", len(calls))
	}

	req.History = append(req.History,
		AssistantTurn("", "", calls),
		ToolResultTurn("a.go", "glob"),
		ToolResultTurn("module x", "read_file"),
	)
	stream, err = b.SendChatStream(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text, calls, _ := drain(t, stream)
	if len(calls) != 0 {
		t.Errorf("follow-up round should not call tools, got %v", calls)
	}
	if !strings.Contains(text, "2 tool result(s)") {
		t.Errorf("text = %q", text)
	}
}

func TestDebugBackendLoop(t *testing.T) {
	b := NewDebugBackend("instant")
	exec := ToolExecutorFunc(func(ctx context.Context, name string, args json.RawMessage) (string, error) {
		return "ok:" + name, nil
	})
	req := Request{Tools: debugTools}
	loop := RunLoop(context.Background(), b, req, exec, []Turn{UserTurn("shell ls x2")})
	history, err := loop.Wait()
	if err != nil {
		t.Fatal(err)
	}
	// user, assistant(calls), 2 results, assistant(text)
	if len(history) != 5 {
		t.Fatalf("history has %d turns", len(history))
	}
	if history[4].Role != RoleAssistant || !strings.Contains(history[4].Text, "2 tool result(s)") {
		t.Errorf("last turn = %+v", history[4])
	}
}

func TestDebugBackendCancel(t *testing.T) {
	b := NewDebugBackend("slow")
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := b.SendChatStream(ctx, Request{History: []Turn{UserTurn("hi")}})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if _, err := stream.Recv(); err != nil {
		t.Fatal(err)
	}
	cancel()
	for {
		_, err := stream.Recv()
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		return
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{provider: "anthropic", want: "anthropic"},
		{provider: "openai", want: "openai"},
		{provider: "gemini", want: "gemini"},
		{provider: "ollama", want: "ollama"},
		{provider: "lmstudio", want: "lmstudio"},
		{provider: "openai-compat", wantErr: true},
		{provider: "debug", want: "debug"},
		{provider: "", wantErr: true},
		{provider: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &config.Config{
				Provider:  tt.provider,
				OpenAI:    config.OpenAIConfig{APIKey: "sk-test"},
				Anthropic: config.AnthropicConfig{APIKey: "sk-test"},
				Ollama:    config.OllamaConfig{BaseURL: "http://localhost:11434/v1"},
				LMStudio:  config.LMStudioConfig{BaseURL: "http://localhost:1234/v1"},
			}
			b, err := NewBackend(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if b.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", b.Name(), tt.want)
			}
		})
	}
}
