package ui

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/toolchat/internal/config"
	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/usage"
)

func content(s string) llm.ToolEvent {
	return llm.ToolEvent{Type: llm.EventChunk, Chunk: &llm.ResponseChunk{Content: s}}
}

func reasoning(s string) llm.ToolEvent {
	return llm.ToolEvent{Type: llm.EventChunk, Chunk: &llm.ResponseChunk{Reasoning: s}}
}

func done() llm.ToolEvent {
	return llm.ToolEvent{Type: llm.EventChunk, Chunk: &llm.ResponseChunk{Done: true}}
}

func render(opts RendererOptions, events ...llm.ToolEvent) string {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil, opts)
	ch := make(chan llm.ToolEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	r.Run(ch)
	return buf.String()
}

func TestRendererStreamsText(t *testing.T) {
	got := render(RendererOptions{}, content("Hel"), content("lo"), done())
	if got != "Hello\n" {
		t.Errorf("got %q", got)
	}
}

func TestRendererReasoning(t *testing.T) {
	events := []llm.ToolEvent{reasoning("thinking"), reasoning(" hard"), content("answer"), done()}

	got := render(RendererOptions{}, events...)
	if got != "thinking hard\n\nanswer\n" {
		t.Errorf("got %q", got)
	}

	got = render(RendererOptions{HideReasoning: true}, events...)
	if got != "answer\n" {
		t.Errorf("hidden reasoning: got %q", got)
	}
}

func TestRendererToolLines(t *testing.T) {
	args := json.RawMessage(`{"file_path":"a.go"}`)
	got := render(RendererOptions{},
		content("Let me look"),
		llm.ToolEvent{Type: llm.EventToolStarted, ID: 0, Name: "read_file", Arguments: args},
		llm.ToolEvent{Type: llm.EventToolStarted, ID: 1, Name: "glob", Arguments: json.RawMessage(`{"pattern":"*.go"}`)},
		llm.ToolEvent{Type: llm.EventToolResult, ID: 1, Name: "glob", Arguments: json.RawMessage(`{"pattern":"*.go"}`), Err: errors.New("INVALID_PARAMS: bad pattern")},
		llm.ToolEvent{Type: llm.EventToolResult, ID: 0, Name: "read_file", Arguments: args, Result: "1: package a\n2: \n"},
		content("Done."),
		done(),
	)

	want := strings.Join([]string{
		"Let me look",
		"⋯ read_file (a.go)",
		"⋯ glob (*.go)",
		"✗ glob (*.go) INVALID_PARAMS: bad pattern",
		"✓ read_file (a.go) (2 lines)",
		"Done.",
		"",
	}, "\n")
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRendererCustomPreview(t *testing.T) {
	got := render(RendererOptions{Preview: func(name string, _ json.RawMessage) string { return "<" + name + ">" }},
		llm.ToolEvent{Type: llm.EventToolStarted, Name: "shell"},
	)
	if got != "⋯ shell <shell>\n" {
		t.Errorf("got %q", got)
	}
}

func TestRendererMarkdown(t *testing.T) {
	got := render(RendererOptions{Markdown: true, Width: 60},
		content("# Title\n\nsome "), content("body"), done())
	if !strings.Contains(got, "Title") || !strings.Contains(got, "body") {
		t.Errorf("markdown output missing text: %q", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("expected trailing newline: %q", got)
	}
}

func TestResultSummary(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "(no output)"},
		{"ok\n", "(ok)"},
		{"a\nb\nc", "(3 lines)"},
		{strings.Repeat("x", 60), "(" + strings.Repeat("x", 39) + "…)"},
	}
	for _, tt := range tests {
		if got := resultSummary(tt.in); got != tt.want {
			t.Errorf("resultSummary(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello w…" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("日本語テキスト", 7); got != "日本語…" {
		t.Errorf("wide runes: got %q", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n\n  first \nsecond"); got != "first" {
		t.Errorf("got %q", got)
	}
}

func TestStatsLines(t *testing.T) {
	got := LoopStatsLine(llm.LoopStats{
		Rounds:    2,
		ToolCalls: 3,
		Usage:     llm.Usage{InputTokens: 1200, OutputTokens: 310},
		Duration:  3400 * time.Millisecond,
	})
	if want := "Stats: 3.4s | 2 rounds | 1.2k in / 310 out | 3 tools"; got != want {
		t.Errorf("LoopStatsLine = %q, want %q", got, want)
	}

	got = TotalsLine(usage.Totals{Loops: 1, Rounds: 1, Input: 5, Output: 6, Duration: time.Second})
	if want := "Stats: 1.0s | 1 turn | 1 round | 5 in / 6 out | 0 tools"; got != want {
		t.Errorf("TotalsLine = %q, want %q", got, want)
	}
}

func TestFormatTokenCount(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1500: "1.5k", 2_500_000: "2.5M"}
	for n, want := range tests {
		if got := formatTokenCount(n); got != want {
			t.Errorf("formatTokenCount(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestThemeFromConfig(t *testing.T) {
	theme := ThemeFromConfig(config.ThemeConfig{Primary: "#ffffff", Muted: "8"})
	if theme.Primary != "#ffffff" || theme.Muted != "8" {
		t.Errorf("overrides not applied: %+v", theme)
	}
	if theme.Error != DefaultTheme().Error {
		t.Error("unset colors keep their defaults")
	}
}

func TestStylesPlainForBuffers(t *testing.T) {
	var buf bytes.Buffer
	s := NewStyles(&buf, nil)
	if got := s.FormatResult(true, "ok"); got != "✓ ok" {
		t.Errorf("got %q", got)
	}
	if got := s.FormatEnabled(false); got != "○ disabled" {
		t.Errorf("got %q", got)
	}
	if IsTerminal(&buf) {
		t.Error("buffer is not a terminal")
	}
	if TerminalWidth(&buf) != defaultWidth {
		t.Error("expected default width for non-terminal")
	}
}

func TestBreakdownLine(t *testing.T) {
	got := BreakdownLine(usage.ModelBreakdown{Model: "debug:fast", Loops: 2, Rounds: 3, Input: 1200, Output: 310, ToolCalls: 1})
	want := "debug:fast: 2 turns | 3 rounds | 1.2k in / 310 out | 1 tool"
	if got != want {
		t.Errorf("BreakdownLine = %q, want %q", got, want)
	}
}
