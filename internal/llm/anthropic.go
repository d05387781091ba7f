package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	anthropicDefaultModel  = "claude-sonnet-4-5"
	anthropicMaxTokens     = 8192
	anthropicThinkingMax   = 16000
	anthropicDefaultBudget = 10000
)

// AnthropicBackend streams from the Anthropic Messages API.
type AnthropicBackend struct {
	client         anthropic.Client
	model          string
	thinkingBudget int64
}

// NewAnthropicBackend creates a backend. An empty apiKey falls back to
// ANTHROPIC_API_KEY inside the SDK. budget is the thinking token budget
// used when a request asks for thinking; zero selects the default.
func NewAnthropicBackend(apiKey, baseURL, model string, budget int) *AnthropicBackend {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = anthropicDefaultModel
	}
	if budget <= 0 {
		budget = anthropicDefaultBudget
	}
	return &AnthropicBackend{
		client:         anthropic.NewClient(opts...),
		model:          model,
		thinkingBudget: int64(budget),
	}
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) ListModels(ctx context.Context) ([]string, error) {
	page, err := b.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("list anthropic models: %w", err)
	}
	var models []string
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (b *AnthropicBackend) SendChatStream(ctx context.Context, req Request) (ChunkStream, error) {
	system, turns := pairToolCalls(req.History)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(chooseModel(req.Model, b.model)),
		MaxTokens: anthropicMaxTokens,
		Messages:  buildAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildAnthropicTools(req.Tools)
	}
	// Reasoning is not replayed (history keeps no signatures), and the API
	// refuses thinking on a continuation whose assistant turn lacks it.
	if req.Thinking && !continuesToolRound(turns) {
		params.MaxTokens = anthropicThinkingMax
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: b.thinkingBudget},
		}
	}

	return newChunkStream(ctx, func(ctx context.Context, out *chunkWriter) error {
		stream := b.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		calls := newToolCallAccumulator()
		usage := &Usage{}
		for stream.Next() {
			event := stream.Current()
			var chunk ResponseChunk
			switch variant := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.InputTokens = int(variant.Message.Usage.InputTokens)
			case anthropic.ContentBlockStartEvent:
				if block, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					calls.Start(variant.Index, ToolCall{Name: block.Name, Arguments: toolInputToRaw(block.Input)})
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					chunk.Content = delta.Text
				case anthropic.ThinkingDelta:
					chunk.Reasoning = delta.Thinking
				case anthropic.InputJSONDelta:
					calls.Append(variant.Index, delta.PartialJSON)
				}
			case anthropic.ContentBlockStopEvent:
				if call, ok := calls.Finish(variant.Index); ok {
					chunk.ToolCalls = []ToolCall{call}
				}
			case anthropic.MessageDeltaEvent:
				usage.OutputTokens = int(variant.Usage.OutputTokens)
			}
			if chunk.Empty() {
				continue
			}
			if err := out.Send(chunk); err != nil {
				return err
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("anthropic stream: %w", err)
		}
		return out.Send(ResponseChunk{Done: true, Usage: usage})
	}), nil
}

// continuesToolRound reports whether the next request answers tool calls.
func continuesToolRound(turns []wireTurn) bool {
	return len(turns) > 0 && turns[len(turns)-1].Role == RoleTool
}

func buildAnthropicMessages(turns []wireTurn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if turn.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
			}
			for _, call := range turn.Calls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, rawOrEmptyObject(call.Arguments), call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Results))
			for _, r := range turn.Results {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.ID, r.Text, isFailureText(r.Text)))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func buildAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: spec.Schema["properties"],
			Required:   schemaRequired(spec.Schema),
		}
		tool := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

// toolCallAccumulator assembles tool_use blocks whose input arrives as
// partial JSON deltas, keyed by content block index.
type toolCallAccumulator struct {
	calls    map[int64]ToolCall
	fallback map[int64]json.RawMessage
	partial  map[int64]*strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		calls:    make(map[int64]ToolCall),
		fallback: make(map[int64]json.RawMessage),
		partial:  make(map[int64]*strings.Builder),
	}
}

func (a *toolCallAccumulator) Start(index int64, call ToolCall) {
	if len(call.Arguments) > 0 {
		a.fallback[index] = call.Arguments
	}
	call.Arguments = nil
	a.calls[index] = call
}

func (a *toolCallAccumulator) Append(index int64, partial string) {
	if partial == "" {
		return
	}
	sb := a.partial[index]
	if sb == nil {
		sb = &strings.Builder{}
		a.partial[index] = sb
	}
	sb.WriteString(partial)
}

func (a *toolCallAccumulator) Finish(index int64) (ToolCall, bool) {
	call, ok := a.calls[index]
	if !ok {
		return ToolCall{}, false
	}
	if sb := a.partial[index]; sb != nil && sb.Len() > 0 {
		call.Arguments = json.RawMessage(sb.String())
	} else if fb, ok := a.fallback[index]; ok {
		call.Arguments = fb
	}
	delete(a.calls, index)
	delete(a.partial, index)
	delete(a.fallback, index)
	return call, true
}

func toolInputToRaw(input any) json.RawMessage {
	switch v := input.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return v
	case []byte:
		return json.RawMessage(v)
	case string:
		return json.RawMessage(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return data
	}
}

// rawOrEmptyObject returns args, or {} when the call carried none.
func rawOrEmptyObject(args json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(args))) == 0 {
		return json.RawMessage("{}")
	}
	return args
}

func schemaRequired(schema map[string]interface{}) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func isFailureText(text string) bool {
	return strings.HasPrefix(text, "Tool Failed: ")
}

func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
