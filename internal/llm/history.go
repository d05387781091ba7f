package llm

import "strings"

// History is the ordered conversation log. While a loop runs it owns its
// copy of the history exclusively; callers edit history only between loops.
type History []Turn

// NewHistory returns a history holding a copy of turns.
func NewHistory(turns ...Turn) History {
	return History(turns).Clone()
}

// Clone returns a copy whose backing array is not shared with h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Append adds a turn to the end of the history.
func (h *History) Append(turn Turn) {
	*h = append(*h, turn)
}

// Last returns the final turn, if any.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}
	return h[len(h)-1], true
}

// ToolCallCount returns the number of tool calls requested across all
// assistant turns.
func (h History) ToolCallCount() int {
	n := 0
	for _, turn := range h {
		n += len(turn.ToolCalls)
	}
	return n
}

// WithoutLastExchange drops the most recent user turn and everything after
// it. It is the caller-side undo used between loop invocations.
func (h History) WithoutLastExchange() History {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == RoleUser {
			return h[:i].Clone()
		}
	}
	return h.Clone()
}

// LastAssistantText joins the text of the trailing assistant turns, which
// is the model's final answer for the most recent exchange.
func (h History) LastAssistantText() string {
	var parts []string
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role != RoleAssistant {
			break
		}
		if h[i].Text != "" {
			parts = append([]string{h[i].Text}, parts...)
		}
	}
	return strings.Join(parts, "")
}
