package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/samsaffron/toolchat/internal/config"
	"github.com/samsaffron/toolchat/internal/llm"
)

// Registry holds the tools offered to the model and executes calls against
// them. It is safe for concurrent use; the tool loop calls Call from one
// goroutine per tool call.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	allowed map[string]bool // nil means every registered tool
	max     int64
	log     *zap.Logger
}

var _ llm.ToolCatalog = (*Registry)(nil)

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{tools: make(map[string]Tool), log: log}
}

// NewBuiltinRegistry registers the built-in tools enabled by cfg. An empty
// Enabled list means every built-in tool. The shell tool is only registered
// when at least one allow pattern is configured.
func NewBuiltinRegistry(cfg config.ToolsConfig, log *zap.Logger) (*Registry, error) {
	r := NewRegistry(log)
	limits := DefaultOutputLimits()
	if cfg.MaxOutput > 0 {
		limits.MaxBytes = int64(cfg.MaxOutput)
		r.max = int64(cfg.MaxOutput)
	}

	enabled := cfg.Enabled
	if len(enabled) == 0 {
		enabled = AllToolNames()
	}
	for _, name := range enabled {
		var tool Tool
		switch name {
		case ReadFileToolName:
			tool = NewReadFileTool(limits)
		case WriteFileToolName:
			tool = NewWriteFileTool()
		case GlobToolName:
			tool = NewGlobTool(limits)
		case ShellToolName:
			if len(cfg.ShellAllow) == 0 {
				r.log.Debug("shell tool disabled: no shell_allow patterns")
				continue
			}
			shell, err := NewShellTool(cfg.ShellAllow, cfg.ShellTimeout, limits)
			if err != nil {
				return nil, err
			}
			tool = shell
		default:
			return nil, NewToolErrorf(ErrUnknownTool, "unknown tool: %s", name)
		}
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	name := tool.Spec().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Restrict limits the catalog to names. Calls to other tools fail with a
// permission error. A nil list lifts the restriction; an empty one hides
// every tool.
func (r *Registry) Restrict(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if names == nil {
		r.allowed = nil
		return
	}
	r.allowed = make(map[string]bool, len(names))
	for _, n := range names {
		r.allowed[n] = true
	}
}

func (r *Registry) visible(name string) bool {
	return r.allowed == nil || r.allowed[name]
}

// Specs returns the specs of the visible tools in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		if r.visible(name) {
			specs = append(specs, r.tools[name].Spec())
		}
	}
	return specs
}

// Names returns the visible tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, name := range r.order {
		if r.visible(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Preview returns a short description of a call for display, or "".
func (r *Registry) Preview(name string, args json.RawMessage) string {
	tool, ok := r.Get(name)
	if !ok {
		return ""
	}
	return tool.Preview(args)
}

// Call implements llm.ToolExecutor.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	visible := r.visible(name)
	r.mu.RUnlock()

	if !ok {
		return "", NewToolErrorf(ErrUnknownTool, "unknown tool: %s", name)
	}
	if !visible {
		return "", NewToolErrorf(ErrPermissionDenied, "tool %s is not enabled", name)
	}

	start := time.Now()
	out, err := tool.Execute(ctx, args)
	r.log.Debug("tool executed",
		zap.String("tool", name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("output_bytes", len(out)),
		zap.Error(err),
	)
	if err != nil {
		return "", err
	}
	return truncateOutput(out, r.max), nil
}

func truncateOutput(s string, max int64) string {
	if max <= 0 || int64(len(s)) <= max {
		return s
	}
	return s[:max] + "\n\n[Output truncated due to size limit]"
}
