package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockResponse scripts one backend round.
type MockResponse struct {
	// Chunks are streamed in order.
	Chunks []ResponseChunk
	// OpenErr is returned from SendChatStream instead of a stream.
	OpenErr error
	// StreamErr is returned from Recv after all chunks.
	StreamErr error
	// Gate, when set, holds the stream before its first chunk until the
	// channel is closed or the request context ends.
	Gate <-chan struct{}
}

// MockBackend is a scripted Backend for tests and offline runs. Each call
// to SendChatStream consumes the next scripted response.
type MockBackend struct {
	name   string
	models []string

	mu        sync.Mutex
	responses []MockResponse
	requests  []Request
}

func NewMockBackend(name string) *MockBackend {
	return &MockBackend{name: name}
}

// WithModels sets the list returned by ListModels.
func (m *MockBackend) WithModels(models ...string) *MockBackend {
	m.models = models
	return m
}

func (m *MockBackend) AddResponse(r MockResponse) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	return m
}

// AddChunks scripts a round streaming the given chunks.
func (m *MockBackend) AddChunks(chunks ...ResponseChunk) *MockBackend {
	return m.AddResponse(MockResponse{Chunks: chunks})
}

// AddTextResponse scripts a round that answers with text and no tools.
func (m *MockBackend) AddTextResponse(text string) *MockBackend {
	return m.AddChunks(
		ResponseChunk{Content: text},
		ResponseChunk{Done: true, Usage: &Usage{InputTokens: 10, OutputTokens: len(text)}},
	)
}

// AddReasoningResponse scripts a round that thinks and then answers.
func (m *MockBackend) AddReasoningResponse(reasoning, text string) *MockBackend {
	return m.AddChunks(
		ResponseChunk{Reasoning: reasoning},
		ResponseChunk{Content: text},
		ResponseChunk{Done: true},
	)
}

// AddToolCall scripts a round requesting a single tool call. args is
// marshaled to JSON; a string or json.RawMessage is used verbatim.
func (m *MockBackend) AddToolCall(name string, args any) *MockBackend {
	return m.AddToolCalls(ToolCall{Name: name, Arguments: mustJSON(args)})
}

// AddToolCalls scripts a round requesting several tool calls in one chunk.
func (m *MockBackend) AddToolCalls(calls ...ToolCall) *MockBackend {
	return m.AddChunks(ResponseChunk{ToolCalls: calls}, ResponseChunk{Done: true})
}

// AddError scripts a round whose stream cannot be opened.
func (m *MockBackend) AddError(err error) *MockBackend {
	return m.AddResponse(MockResponse{OpenErr: err})
}

// AddStreamError scripts a round that streams text and then fails.
func (m *MockBackend) AddStreamError(text string, err error) *MockBackend {
	return m.AddResponse(MockResponse{Chunks: []ResponseChunk{{Content: text}}, StreamErr: err})
}

// Requests returns copies of every request received so far.
func (m *MockBackend) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Remaining reports how many scripted responses are unused.
func (m *MockBackend) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}

func (m *MockBackend) Name() string { return m.name }

func (m *MockBackend) ListModels(ctx context.Context) ([]string, error) {
	return m.models, nil
}

func (m *MockBackend) SendChatStream(ctx context.Context, req Request) (ChunkStream, error) {
	m.mu.Lock()
	round := len(m.requests) + 1
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock backend %s: no response scripted for round %d", m.name, round)
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	m.mu.Unlock()

	if resp.OpenErr != nil {
		return nil, resp.OpenErr
	}
	return newChunkStream(ctx, func(ctx context.Context, out *chunkWriter) error {
		if resp.Gate != nil {
			select {
			case <-resp.Gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		for _, chunk := range resp.Chunks {
			if err := out.Send(chunk); err != nil {
				return err
			}
		}
		return resp.StreamErr
	}), nil
}

func mustJSON(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	if s, ok := v.(string); ok {
		return json.RawMessage(s)
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mock backend: marshal args: %v", err))
	}
	return data
}
