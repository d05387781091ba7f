package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// debugPreset defines streaming rate configuration.
type debugPreset struct {
	ChunkSize int
	Delay     time.Duration
}

var debugPresets = map[string]debugPreset{
	"fast":     {ChunkSize: 50, Delay: 5 * time.Millisecond},
	"normal":   {ChunkSize: 20, Delay: 20 * time.Millisecond},
	"slow":     {ChunkSize: 10, Delay: 50 * time.Millisecond},
	"realtime": {ChunkSize: 5, Delay: 30 * time.Millisecond},
	"burst":    {ChunkSize: 200, Delay: 100 * time.Millisecond},
	"instant":  {ChunkSize: 1 << 20},
}

const debugMarkdown = "# Debug backend\n\n" +
	"This is a **debug stream** for exercising the renderer without a network.\n\n" +
	"```go\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n```\n\n" +
	"- read `<file>` asks for read_file\n" +
	"- glob `<pattern>` asks for glob\n" +
	"- shell `<command>` asks for shell\n" +
	"- write `<file> <text>` asks for write_file\n\n" +
	"Join commands with commas to request several tools in one round, or " +
	"append `x3` to repeat one.\n"

// DebugBackend is an offline backend that turns simple prompts into tool
// calls and otherwise streams canned markdown at a configurable rate. The
// model name selects the rate preset.
type DebugBackend struct {
	variant string
}

func NewDebugBackend(variant string) *DebugBackend {
	if _, ok := debugPresets[variant]; !ok {
		variant = "normal"
	}
	return &DebugBackend{variant: variant}
}

func (d *DebugBackend) Name() string { return "debug" }

func (d *DebugBackend) ListModels(ctx context.Context) ([]string, error) {
	return []string{"fast", "normal", "slow", "realtime", "burst", "instant"}, nil
}

func (d *DebugBackend) SendChatStream(ctx context.Context, req Request) (ChunkStream, error) {
	preset := debugPresets[d.variant]
	if p, ok := debugPresets[req.Model]; ok {
		preset = p
	}
	_, turns := pairToolCalls(req.History)

	return newChunkStream(ctx, func(ctx context.Context, out *chunkWriter) error {
		if n := len(turns); n > 0 && turns[n-1].Role == RoleTool {
			text := fmt.Sprintf("Debug: %d tool result(s) received.\n", len(turns[n-1].Results))
			if err := streamText(ctx, out, text, preset); err != nil {
				return err
			}
			return out.Send(ResponseChunk{Done: true, Usage: &Usage{InputTokens: 50, OutputTokens: len(text) / 4}})
		}

		prompt := lastUserText(turns)
		if calls := parseDebugCommands(prompt, req.Tools); len(calls) > 0 {
			if err := out.Send(ResponseChunk{ToolCalls: calls}); err != nil {
				return err
			}
			return out.Send(ResponseChunk{Done: true, Usage: &Usage{InputTokens: len(prompt) / 4, OutputTokens: 10 * len(calls)}})
		}

		if req.Thinking {
			if err := out.Send(ResponseChunk{Reasoning: "The prompt is not a debug command, so stream the sample."}); err != nil {
				return err
			}
		}
		if err := streamText(ctx, out, debugMarkdown, preset); err != nil {
			return err
		}
		return out.Send(ResponseChunk{Done: true, Usage: &Usage{InputTokens: 10, OutputTokens: len(debugMarkdown) / 4}})
	}), nil
}

func streamText(ctx context.Context, out *chunkWriter, text string, preset debugPreset) error {
	for len(text) > 0 {
		end := preset.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		if err := out.Send(ResponseChunk{Content: text[:end]}); err != nil {
			return err
		}
		text = text[end:]
		if preset.Delay > 0 && len(text) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(preset.Delay):
			}
		}
	}
	return nil
}

func lastUserText(turns []wireTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i].Text
		}
	}
	return ""
}

var debugMultiplier = regexp.MustCompile(`\s+x(\d+)$`)

// parseDebugCommands turns "read a.go, glob *.md x2" into tool calls for
// tools present in the catalog. Unknown segments are skipped.
func parseDebugCommands(prompt string, tools []ToolSpec) []ToolCall {
	available := make(map[string]bool, len(tools))
	for _, t := range tools {
		available[t.Name] = true
	}

	var calls []ToolCall
	for _, seg := range strings.Split(prompt, ",") {
		seg = strings.TrimSpace(seg)
		repeat := 1
		if m := debugMultiplier.FindStringSubmatch(seg); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 20 {
				repeat = n
				seg = strings.TrimSpace(seg[:len(seg)-len(m[0])])
			}
		}
		fields := strings.Fields(seg)
		if len(fields) < 2 {
			continue
		}
		var name string
		var args map[string]string
		switch strings.ToLower(fields[0]) {
		case "read":
			name, args = "read_file", map[string]string{"file_path": fields[1]}
		case "glob":
			name, args = "glob", map[string]string{"pattern": fields[1]}
		case "shell":
			name, args = "shell", map[string]string{"command": strings.Join(fields[1:], " ")}
		case "write":
			if len(fields) < 3 {
				continue
			}
			name, args = "write_file", map[string]string{"file_path": fields[1], "content": strings.Join(fields[2:], " ")}
		default:
			continue
		}
		if !available[name] {
			continue
		}
		raw, _ := json.Marshal(args)
		for i := 0; i < repeat; i++ {
			calls = append(calls, ToolCall{Name: name, Arguments: raw})
		}
	}
	return calls
}
