package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ToolCatalog is implemented by executors that can also describe the
// tools they serve.
type ToolCatalog interface {
	ToolExecutor
	Specs() []ToolSpec
}

// Engine bundles a backend and a tool executor with the per-conversation
// settings, so callers can start loops without rebuilding requests.
type Engine struct {
	backend  Backend
	exec     ToolExecutor
	tools    []ToolSpec
	model    string
	thinking bool

	log   *zap.Logger
	debug *DebugLogger
}

// NewEngine creates an engine. When exec is a ToolCatalog its specs become
// the tool catalog sent to the model.
func NewEngine(backend Backend, exec ToolExecutor) *Engine {
	e := &Engine{backend: backend, exec: exec, log: zap.NewNop()}
	if catalog, ok := exec.(ToolCatalog); ok {
		e.tools = catalog.Specs()
	}
	return e
}

func (e *Engine) Backend() Backend { return e.backend }

func (e *Engine) SetBackend(b Backend) { e.backend = b }

func (e *Engine) Model() string { return e.model }

func (e *Engine) SetModel(model string) { e.model = model }

func (e *Engine) Thinking() bool { return e.thinking }

func (e *Engine) SetThinking(on bool) { e.thinking = on }

// Tools returns the catalog sent to the model.
func (e *Engine) Tools() []ToolSpec { return e.tools }

// SetTools replaces the catalog sent to the model.
func (e *Engine) SetTools(specs []ToolSpec) { e.tools = specs }

func (e *Engine) SetLogger(log *zap.Logger) {
	if log != nil {
		e.log = log
	}
}

func (e *Engine) SetDebugLogger(dl *DebugLogger) { e.debug = dl }

// Run starts a loop over history with the engine's settings.
func (e *Engine) Run(ctx context.Context, history History, opts ...LoopOption) *Loop {
	req := Request{Model: e.model, Tools: e.tools, Thinking: e.thinking}
	base := []LoopOption{WithLogger(e.log), WithDebugLogger(e.debug)}
	return RunLoop(ctx, e.backend, req, e.exec, history, append(base, opts...)...)
}

// Describe returns "backend" or "backend:model".
func (e *Engine) Describe() string {
	if e.backend == nil {
		return "(none)"
	}
	if e.model == "" {
		return e.backend.Name()
	}
	return e.backend.Name() + ":" + e.model
}

// FormatToolArgs renders tool arguments compactly for display, e.g.
// "(main.go)" for a single argument or "(path:a.go, limit:10)".
func FormatToolArgs(raw json.RawMessage, maxLen, maxParams int) string {
	if len(raw) == 0 {
		return ""
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil || len(args) == 0 {
		return ""
	}

	type pair struct{ key, val string }
	var pairs []pair
	for k, v := range args {
		var s string
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			s = val
		case float64:
			if val == float64(int(val)) {
				s = fmt.Sprintf("%d", int(val))
			} else {
				s = fmt.Sprintf("%g", val)
			}
		case bool:
			s = fmt.Sprintf("%v", val)
		default:
			continue
		}
		if len(s) > 200 {
			s = s[:197] + "..."
		}
		pairs = append(pairs, pair{k, s})
	}
	if len(pairs) == 0 {
		return ""
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var out string
	if len(pairs) == 1 {
		out = "(" + pairs[0].val + ")"
	} else {
		var parts []string
		for i, p := range pairs {
			if i >= maxParams {
				parts = append(parts, "...")
				break
			}
			parts = append(parts, p.key+":"+p.val)
		}
		out = "(" + strings.Join(parts, ", ") + ")"
	}
	if maxLen > 4 && len(out) > maxLen {
		out = out[:maxLen-4] + "...)"
	}
	return out
}
