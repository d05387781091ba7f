package mcp

import (
	"context"
	"encoding/json"

	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/tools"
)

// Tool exposes one MCP server tool through the local tool registry.
type Tool struct {
	manager *Manager
	spec    ToolSpec
}

var _ tools.Tool = (*Tool)(nil)

func NewTool(manager *Manager, spec ToolSpec) *Tool {
	return &Tool{manager: manager, spec: spec}
}

func (t *Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{Name: t.spec.Name, Description: t.spec.Description, Schema: t.spec.Schema}
}

func (t *Tool) Preview(args json.RawMessage) string {
	return llm.FormatToolArgs(args, 60, 3)
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.manager.CallTool(ctx, t.spec.Name, args)
}

// RegisterTools adds every tool of the manager's ready servers to registry
// and returns how many were added.
func RegisterTools(manager *Manager, registry *tools.Registry) (int, error) {
	n := 0
	for _, spec := range manager.AllTools() {
		if err := registry.Register(NewTool(manager, spec)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
