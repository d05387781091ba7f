package llm

import "strings"

// roundAccumulator assembles one round's streamed output into history.
//
// Content and reasoning deltas are buffered. A chunk carrying tool calls
// flushes the buffers into an assistant turn together with the calls, and
// only then are the calls dispatched, so history always holds the request
// for a tool before its result.
type roundAccumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	usage     Usage
	toolCalls int

	appendTurn func(Turn)
	dispatch   func([]ToolCall)
	publish    func(ToolEvent)
}

// Consume processes one chunk. Every chunk is republished unmodified.
func (a *roundAccumulator) Consume(chunk ResponseChunk) {
	published := chunk
	a.publish(ToolEvent{Type: EventChunk, Chunk: &published})

	a.content.WriteString(chunk.Content)
	a.reasoning.WriteString(chunk.Reasoning)
	if chunk.Usage != nil {
		a.usage.InputTokens += chunk.Usage.InputTokens
		a.usage.OutputTokens += chunk.Usage.OutputTokens
	}

	if len(chunk.ToolCalls) == 0 {
		return
	}
	calls := make([]ToolCall, len(chunk.ToolCalls))
	copy(calls, chunk.ToolCalls)
	a.appendTurn(AssistantTurn(a.content.String(), a.reasoning.String(), calls))
	a.content.Reset()
	a.reasoning.Reset()
	a.toolCalls += len(calls)
	a.dispatch(calls)
}

// Finish records whatever text is still buffered at the end of the round.
// An empty round records nothing.
func (a *roundAccumulator) Finish() {
	if a.content.Len() == 0 && a.reasoning.Len() == 0 {
		return
	}
	a.appendTurn(AssistantTurn(a.content.String(), a.reasoning.String(), nil))
	a.content.Reset()
	a.reasoning.Reset()
}
