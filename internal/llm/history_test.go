package llm

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestHistory_CloneDoesNotShare(t *testing.T) {
	h := NewHistory(UserTurn("a"))
	c := h.Clone()
	c.Append(UserTurn("b"))
	c[0].Text = "changed"

	if len(h) != 1 || h[0].Text != "a" {
		t.Errorf("original changed: %+v", h)
	}
}

func TestHistory_WithoutLastExchange(t *testing.T) {
	h := NewHistory(
		SystemTurn("sys"),
		UserTurn("one"),
		AssistantTurn("reply", "", nil),
		UserTurn("two"),
		AssistantTurn("", "", []ToolCall{{Name: "t"}}),
		ToolResultTurn("out", "t"),
		AssistantTurn("done", "", nil),
	)

	undone := h.WithoutLastExchange()
	if len(undone) != 3 {
		t.Fatalf("got %d turns, want 3", len(undone))
	}
	if last, _ := undone.Last(); last.Text != "reply" {
		t.Errorf("last turn = %+v", last)
	}

	onlySystem := NewHistory(SystemTurn("sys"))
	if got := onlySystem.WithoutLastExchange(); len(got) != 1 {
		t.Errorf("history without user turns changed: %+v", got)
	}
}

func TestHistory_Queries(t *testing.T) {
	h := NewHistory(
		UserTurn("q"),
		AssistantTurn("", "", []ToolCall{{Name: "a"}, {Name: "b"}}),
		ToolResultTurn("1", "a"),
		ToolResultTurn("2", "b"),
		AssistantTurn("part one ", "", nil),
		AssistantTurn("part two", "", nil),
	)
	if n := h.ToolCallCount(); n != 2 {
		t.Errorf("ToolCallCount() = %d, want 2", n)
	}
	if got := h.LastAssistantText(); got != "part one part two" {
		t.Errorf("LastAssistantText() = %q", got)
	}
	if _, ok := History(nil).Last(); ok {
		t.Error("Last() on empty history reported ok")
	}
}

func TestChunkStream(t *testing.T) {
	boom := errors.New("boom")
	s := newChunkStream(context.Background(), func(ctx context.Context, out *chunkWriter) error {
		if err := out.Send(ResponseChunk{Content: "a"}); err != nil {
			return err
		}
		if err := out.Send(ResponseChunk{Content: "b"}); err != nil {
			return err
		}
		return boom
	})
	defer s.Close()

	var text string
	for {
		chunk, err := s.Recv()
		if err != nil {
			if !errors.Is(err, boom) {
				t.Fatalf("Recv() error = %v, want %v", err, boom)
			}
			break
		}
		text += chunk.Content
	}
	if text != "ab" {
		t.Errorf("text = %q, want ab", text)
	}
}

func TestChunkStream_EOFAndClose(t *testing.T) {
	s := newChunkStream(context.Background(), func(ctx context.Context, out *chunkWriter) error {
		return out.Send(ResponseChunk{Done: true})
	})
	if _, err := s.Recv(); err != nil {
		t.Fatalf("first Recv() error = %v", err)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Fatalf("second Recv() error = %v, want io.EOF", err)
	}

	blocked := newChunkStream(context.Background(), func(ctx context.Context, out *chunkWriter) error {
		<-ctx.Done()
		return ctx.Err()
	})
	blocked.Close()
	blocked.Close()
	if _, err := blocked.Recv(); err == nil {
		t.Error("Recv() after Close returned no error")
	}
}
