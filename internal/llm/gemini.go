package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.5-flash"

// geminiSkipSignature stands in for thought signatures, which the history
// does not keep. The API accepts it for function calls it did not produce
// in this exchange.
var geminiSkipSignature = []byte("skip_thought_signature_validator")

// GeminiBackend streams from the Gemini API.
type GeminiBackend struct {
	apiKey string
	model  string
}

// NewGeminiBackend creates a backend. An empty apiKey falls back to
// GEMINI_API_KEY / GOOGLE_API_KEY inside the SDK.
func NewGeminiBackend(apiKey, model string) *GeminiBackend {
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiBackend{apiKey: apiKey, model: model}
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) newClient(ctx context.Context) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: b.apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func (b *GeminiBackend) ListModels(ctx context.Context) ([]string, error) {
	client, err := b.newClient(ctx)
	if err != nil {
		return nil, err
	}
	page, err := client.Models.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		return nil, fmt.Errorf("list gemini models: %w", err)
	}
	var models []string
	for _, m := range page.Items {
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return models, nil
}

func (b *GeminiBackend) SendChatStream(ctx context.Context, req Request) (ChunkStream, error) {
	client, err := b.newClient(ctx)
	if err != nil {
		return nil, err
	}
	system, turns := pairToolCalls(req.History)
	contents := buildGeminiContents(turns)
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini: no user content")
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = buildGeminiTools(req.Tools)
	}
	if req.Thinking {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	model := chooseModel(req.Model, b.model)

	return newChunkStream(ctx, func(ctx context.Context, out *chunkWriter) error {
		var usage *Usage
		for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				return fmt.Errorf("gemini stream: %w", err)
			}
			if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
				usage = &Usage{
					InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				}
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			var chunk ResponseChunk
			for _, part := range resp.Candidates[0].Content.Parts {
				switch {
				case part.FunctionCall != nil:
					args, _ := json.Marshal(part.FunctionCall.Args)
					chunk.ToolCalls = append(chunk.ToolCalls, ToolCall{Name: part.FunctionCall.Name, Arguments: args})
				case part.Thought:
					chunk.Reasoning += part.Text
				default:
					chunk.Content += part.Text
				}
			}
			if chunk.Empty() {
				continue
			}
			if err := out.Send(chunk); err != nil {
				return err
			}
		}
		return out.Send(ResponseChunk{Done: true, Usage: usage})
	}), nil
}

func buildGeminiContents(turns []wireTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(turn.Text, genai.RoleUser))
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if turn.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: turn.Text})
			}
			for _, call := range turn.Calls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall:     &genai.FunctionCall{Name: call.Name, Args: toolArgsToMap(call.Arguments)},
					ThoughtSignature: geminiSkipSignature,
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		case RoleTool:
			content := &genai.Content{Role: genai.RoleUser}
			for _, r := range turn.Results {
				key := "output"
				if isFailureText(r.Text) {
					key = "error"
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: r.Name, Response: map[string]any{key: r.Text}},
				})
			}
			contents = append(contents, content)
		}
	}
	return contents
}

func buildGeminiTools(specs []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decl := &genai.FunctionDeclaration{Name: spec.Name, Description: spec.Description}
		if len(spec.Schema) > 0 {
			decl.ParametersJsonSchema = spec.Schema
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toolArgsToMap(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return args
}
