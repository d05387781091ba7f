package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/respjson"
	oshared "github.com/openai/openai-go/shared"
)

const openAIDefaultModel = "gpt-4.1"

// OpenAIBackend streams chat completions from OpenAI or any server that
// speaks the same API (Ollama, LM Studio, vLLM, ...).
type OpenAIBackend struct {
	name   string
	client openai.Client
	model  string
	// native is true for api.openai.com; only then are usage reporting and
	// reasoning effort requested, since compatible servers reject them.
	native bool
}

// NewOpenAIBackend creates a backend for api.openai.com. An empty apiKey
// falls back to OPENAI_API_KEY inside the SDK.
func NewOpenAIBackend(apiKey, model string) *OpenAIBackend {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAIBackend{name: "openai", client: openai.NewClient(opts...), model: model, native: true}
}

// NewOpenAICompatBackend creates a backend for an OpenAI-compatible server
// at baseURL (e.g. http://localhost:11434/v1).
func NewOpenAICompatBackend(name, baseURL, apiKey, model string) *OpenAIBackend {
	if apiKey == "" {
		// Local servers ignore the key but the SDK insists on one.
		apiKey = "unused"
	}
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimSuffix(baseURL, "/") + "/"),
		option.WithAPIKey(apiKey),
	}
	return &OpenAIBackend{name: name, client: openai.NewClient(opts...), model: model}
}

func (b *OpenAIBackend) Name() string { return b.name }

func (b *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	page, err := b.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s models: %w", b.name, err)
	}
	var models []string
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (b *OpenAIBackend) SendChatStream(ctx context.Context, req Request) (ChunkStream, error) {
	model := chooseModel(req.Model, b.model)
	if model == "" {
		return nil, fmt.Errorf("%s: no model configured", b.name)
	}
	system, turns := pairToolCalls(req.History)
	params := openai.ChatCompletionNewParams{
		Model:    oshared.ChatModel(model),
		Messages: buildOpenAIMessages(system, turns),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildOpenAITools(req.Tools)
	}
	if b.native {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
		if req.Thinking {
			params.ReasoningEffort = oshared.ReasoningEffortMedium
		}
	}

	return newChunkStream(ctx, func(ctx context.Context, out *chunkWriter) error {
		stream := b.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		emitted := make(map[int]bool)
		var usage *Usage
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			var rc ResponseChunk
			if len(chunk.Choices) > 0 {
				delta := chunk.Choices[0].Delta
				rc.Content = delta.Content
				rc.Reasoning = deltaReasoning(delta.JSON.ExtraFields)
			}
			if tool, ok := acc.JustFinishedToolCall(); ok && !emitted[tool.Index] {
				emitted[tool.Index] = true
				rc.ToolCalls = []ToolCall{{Name: tool.Name, Arguments: json.RawMessage(tool.Arguments)}}
			}
			if chunk.Usage.TotalTokens > 0 {
				usage = &Usage{InputTokens: int(chunk.Usage.PromptTokens), OutputTokens: int(chunk.Usage.CompletionTokens)}
			}
			if rc.Empty() {
				continue
			}
			if err := out.Send(rc); err != nil {
				return err
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("%s stream: %w", b.name, err)
		}

		// Servers that end without a finish_reason leave the last call
		// unreported by the accumulator.
		var rest []ToolCall
		if len(acc.Choices) > 0 {
			for i, tc := range acc.Choices[0].Message.ToolCalls {
				if !emitted[i] && tc.Function.Name != "" {
					rest = append(rest, ToolCall{Name: tc.Function.Name, Arguments: json.RawMessage(tc.Function.Arguments)})
				}
			}
		}
		return out.Send(ResponseChunk{ToolCalls: rest, Done: true, Usage: usage})
	}), nil
}

// deltaReasoning extracts reasoning text that compatible servers send as a
// non-standard delta field.
func deltaReasoning(fields map[string]respjson.Field) string {
	for _, key := range []string{"reasoning_content", "reasoning"} {
		field, ok := fields[key]
		if !ok {
			continue
		}
		raw := strings.TrimSpace(field.Raw())
		if raw == "" || raw == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			return s
		}
	}
	return ""
}

func buildOpenAIMessages(system string, turns []wireTurn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			out = append(out, openai.UserMessage(turn.Text))
		case RoleAssistant:
			if len(turn.Calls) == 0 {
				if turn.Text != "" {
					out = append(out, openai.AssistantMessage(turn.Text))
				}
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(turn.Calls))
			for _, call := range turn.Calls {
				args := string(rawOrEmptyObject(call.Arguments))
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if turn.Text != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(turn.Text)}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			for _, r := range turn.Results {
				out = append(out, openai.ToolMessage(r.Text, r.ID))
			}
		}
	}
	return out
}

func buildOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		fn := oshared.FunctionDefinitionParam{Name: spec.Name}
		if spec.Description != "" {
			fn.Description = openai.String(spec.Description)
		}
		if len(spec.Schema) > 0 {
			fn.Parameters = oshared.FunctionParameters(spec.Schema)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}
