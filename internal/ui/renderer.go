package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/toolchat/internal/llm"
)

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// Markdown buffers each round's text and renders it with glamour once
	// the round's text is complete. Otherwise text streams through as is.
	Markdown bool
	// HideReasoning drops reasoning chunks instead of printing them dimmed.
	HideReasoning bool
	Width         int
	// Preview renders a tool call's arguments for display. Defaults to a
	// compact rendering of the raw JSON.
	Preview func(name string, args json.RawMessage) string
}

// Renderer turns the loop's observer events into line-oriented terminal
// output. It is driven by a single goroutine.
type Renderer struct {
	out    io.Writer
	styles *Styles
	opts   RendererOptions

	pending     strings.Builder // markdown text not yet rendered
	inReasoning bool
	atLineStart bool
}

func NewRenderer(out io.Writer, styles *Styles, opts RendererOptions) *Renderer {
	if styles == nil {
		styles = NewStyles(out, nil)
	}
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Preview == nil {
		opts.Preview = func(_ string, args json.RawMessage) string {
			return llm.FormatToolArgs(args, 60, 3)
		}
	}
	return &Renderer{out: out, styles: styles, opts: opts, atLineStart: true}
}

// Run renders events until the channel is closed.
func (r *Renderer) Run(events <-chan llm.ToolEvent) {
	for ev := range events {
		r.Handle(ev)
	}
	r.Flush()
}

// Handle renders one event.
func (r *Renderer) Handle(ev llm.ToolEvent) {
	switch ev.Type {
	case llm.EventChunk:
		if ev.Chunk != nil {
			r.chunk(*ev.Chunk)
		}
	case llm.EventToolStarted:
		r.Flush()
		r.line(r.toolLine(r.styles.Muted.Render(PendingIcon), ev, ""))
	case llm.EventToolResult:
		r.Flush()
		if ev.Err != nil {
			detail := r.styles.Error.Render(Truncate(FirstLine(ev.Err.Error()), r.opts.Width/2))
			r.line(r.toolLine(r.styles.Error.Render(FailIcon), ev, detail))
			return
		}
		r.line(r.toolLine(r.styles.Success.Render(SuccessIcon), ev, r.styles.Muted.Render(resultSummary(ev.Result))))
	}
}

func (r *Renderer) chunk(c llm.ResponseChunk) {
	if c.Reasoning != "" && !r.opts.HideReasoning {
		if !r.inReasoning {
			r.Flush()
			r.inReasoning = true
		}
		r.write(paint(r.styles.Muted, c.Reasoning))
	}
	if c.Content != "" {
		if r.inReasoning {
			r.endReasoning()
		}
		if r.opts.Markdown {
			r.pending.WriteString(c.Content)
		} else {
			r.write(c.Content)
		}
	}
	if c.Done {
		r.Flush()
	}
}

func (r *Renderer) endReasoning() {
	r.inReasoning = false
	if !r.atLineStart {
		r.write("\n")
	}
	r.write("\n")
}

// Flush renders any buffered text and finishes the current line.
func (r *Renderer) Flush() {
	if r.inReasoning {
		r.inReasoning = false
		if !r.atLineStart {
			r.write("\n")
		}
	}
	if r.pending.Len() > 0 {
		text := r.pending.String()
		r.pending.Reset()
		r.write(RenderMarkdown(text, r.styles.Theme(), r.opts.Width))
	}
	if !r.atLineStart {
		r.write("\n")
	}
}

func (r *Renderer) toolLine(icon string, ev llm.ToolEvent, detail string) string {
	preview := Truncate(r.opts.Preview(ev.Name, ev.Arguments), r.opts.Width-len(ev.Name)-4)
	line := icon + " " + r.styles.Highlighted.Render(ev.Name)
	if preview != "" {
		line += " " + preview
	}
	if detail != "" {
		line += " " + detail
	}
	return line
}

// resultSummary describes a successful tool result in a few words.
func resultSummary(result string) string {
	result = strings.TrimRight(result, "\n")
	if result == "" {
		return "(no output)"
	}
	if n := strings.Count(result, "\n") + 1; n > 1 {
		return fmt.Sprintf("(%d lines)", n)
	}
	return "(" + Truncate(result, 40) + ")"
}

func (r *Renderer) line(s string) {
	if !r.atLineStart {
		r.write("\n")
	}
	r.write(s + "\n")
}

func (r *Renderer) write(s string) {
	if s == "" {
		return
	}
	io.WriteString(r.out, s)
	r.atLineStart = strings.HasSuffix(s, "\n")
}

// Notice prints a dimmed informational line, e.g. stats or a cancellation.
func (r *Renderer) Notice(s string) {
	r.Flush()
	r.line(r.styles.Muted.Render(s))
}

// Errorf prints an error line.
func (r *Renderer) Errorf(format string, args ...any) {
	r.Flush()
	r.line(r.styles.Error.Render(fmt.Sprintf(format, args...)))
}
