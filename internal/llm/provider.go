package llm

import (
	"context"
	"encoding/json"
)

// Backend streams model output for a request. Implementations normalize one
// backend's wire protocol into ResponseChunks; nothing backend-specific
// leaks past this interface.
type Backend interface {
	Name() string
	SendChatStream(ctx context.Context, req Request) (ChunkStream, error)
	ListModels(ctx context.Context) ([]string, error)
}

// ChunkStream yields chunks until io.EOF. A non-EOF error is fatal to the
// round that is reading it.
type ChunkStream interface {
	Recv() (ResponseChunk, error)
	Close() error
}

// ToolExecutor runs a single tool call. No retry and no timeout are implied;
// those belong to the concrete executor.
type ToolExecutor interface {
	Call(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// ToolExecutorFunc adapts a function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, name string, args json.RawMessage) (string, error)

func (f ToolExecutorFunc) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	return f(ctx, name, args)
}
