package llm

import "testing"

func TestPairToolCalls(t *testing.T) {
	history := []Turn{
		SystemTurn("be brief"),
		UserTurn("look"),
		AssistantTurn("", "thinking", []ToolCall{{Name: "read"}}),
		AssistantTurn("also", "", []ToolCall{{Name: "read"}, {Name: "glob"}}),
		ToolResultTurn("glob out", "glob"),
		ToolResultTurn("read 1", "read"),
		ToolResultTurn("read 2", "read"),
		AssistantTurn("done", "", nil),
	}

	system, turns := pairToolCalls(history)
	if system != "be brief" {
		t.Errorf("system = %q", system)
	}
	if len(turns) != 4 {
		t.Fatalf("got %d wire turns, want 4: %+v", len(turns), turns)
	}

	asst := turns[1]
	if asst.Role != RoleAssistant || asst.Text != "also" || asst.Reasoning != "thinking" {
		t.Errorf("merged assistant = %+v", asst)
	}
	if len(asst.Calls) != 3 {
		t.Fatalf("merged assistant has %d calls, want 3", len(asst.Calls))
	}

	results := turns[2].Results
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	byID := map[string]string{}
	for _, c := range asst.Calls {
		byID[c.ID] = c.Name
	}
	for _, r := range results {
		if byID[r.ID] != r.Name {
			t.Errorf("result %+v paired with call %q", r, byID[r.ID])
		}
	}
	// Same-name results pair with calls in call order.
	if results[1].ID != "call_2_0" || results[2].ID != "call_3_0" {
		t.Errorf("read results paired as %s, %s", results[1].ID, results[2].ID)
	}
	if turns[3].Text != "done" {
		t.Errorf("final turn = %+v", turns[3])
	}
}

func TestPairToolCalls_DropsUnpaired(t *testing.T) {
	history := []Turn{
		UserTurn("one"),
		AssistantTurn("", "", []ToolCall{{Name: "hang"}}),
		UserTurn("two"),
		ToolResultTurn("stray", "hang"),
		AssistantTurn("ok", "", nil),
	}

	_, turns := pairToolCalls(history)
	if len(turns) != 2 {
		t.Fatalf("got %d wire turns, want 2: %+v", len(turns), turns)
	}
	if turns[0].Role != RoleUser || turns[0].Text != "one\n\ntwo" {
		t.Errorf("user turns not merged: %+v", turns[0])
	}
	if turns[1].Text != "ok" || len(turns[1].Calls) != 0 {
		t.Errorf("assistant = %+v", turns[1])
	}
}
