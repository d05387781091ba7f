package llm

import (
	"fmt"
	"strings"
)

// History carries no backend call ids; tool results are tied to calls only
// by name and position. Backends that need ids get them reconstructed here.

// wireCall is a tool call with a reconstructed backend id.
type wireCall struct {
	ID string
	ToolCall
}

// wireResult is a tool result paired with the id of its call.
type wireResult struct {
	ID   string
	Name string
	Text string
}

// wireTurn is a history entry shaped the way chat APIs expect: consecutive
// turns of the same role are merged and calls carry ids.
type wireTurn struct {
	Role      Role
	Text      string
	Reasoning string
	Calls     []wireCall
	Results   []wireResult
}

// pairToolCalls converts history into wire turns. System turns are joined
// and returned separately.
//
// Each call gets the id call_<turn>_<index>. A tool result is paired with
// the earliest unanswered call of the same name since the last user turn.
// Calls that never received a result (for example after a cancelled loop)
// and results with no matching call are dropped, since backends reject
// unpaired entries.
func pairToolCalls(history []Turn) (system string, turns []wireTurn) {
	ids := make(map[[2]int]string)
	answered := make(map[string]bool)
	resultIDs := make(map[int]string)
	pending := make(map[string][]string)

	for i, turn := range history {
		switch turn.Role {
		case RoleUser, RoleSystem:
			pending = make(map[string][]string)
		case RoleAssistant:
			for j, call := range turn.ToolCalls {
				id := fmt.Sprintf("call_%d_%d", i, j)
				ids[[2]int{i, j}] = id
				pending[call.Name] = append(pending[call.Name], id)
			}
		case RoleTool:
			queue := pending[turn.ToolName]
			if len(queue) == 0 {
				continue
			}
			resultIDs[i] = queue[0]
			answered[queue[0]] = true
			pending[turn.ToolName] = queue[1:]
		}
	}

	var systemParts []string
	for i, turn := range history {
		switch turn.Role {
		case RoleSystem:
			if turn.Text != "" {
				systemParts = append(systemParts, turn.Text)
			}
		case RoleUser:
			if n := len(turns); n > 0 && turns[n-1].Role == RoleUser {
				turns[n-1].Text = joinText(turns[n-1].Text, turn.Text)
				continue
			}
			turns = append(turns, wireTurn{Role: RoleUser, Text: turn.Text})
		case RoleAssistant:
			var calls []wireCall
			for j, call := range turn.ToolCalls {
				id := ids[[2]int{i, j}]
				if answered[id] {
					calls = append(calls, wireCall{ID: id, ToolCall: call})
				}
			}
			if turn.Text == "" && turn.Reasoning == "" && len(calls) == 0 {
				continue
			}
			if n := len(turns); n > 0 && turns[n-1].Role == RoleAssistant {
				last := &turns[n-1]
				last.Text += turn.Text
				last.Reasoning += turn.Reasoning
				last.Calls = append(last.Calls, calls...)
				continue
			}
			turns = append(turns, wireTurn{Role: RoleAssistant, Text: turn.Text, Reasoning: turn.Reasoning, Calls: calls})
		case RoleTool:
			id, ok := resultIDs[i]
			if !ok {
				continue
			}
			result := wireResult{ID: id, Name: turn.ToolName, Text: turn.Text}
			if n := len(turns); n > 0 && turns[n-1].Role == RoleTool {
				turns[n-1].Results = append(turns[n-1].Results, result)
				continue
			}
			turns = append(turns, wireTurn{Role: RoleTool, Results: []wireResult{result}})
		}
	}
	return strings.Join(systemParts, "\n\n"), turns
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}
