package llm

import (
	"context"
	"io"
	"sync"
)

// chunkWriter is handed to a producer goroutine. Send fails once the
// consumer has closed the stream, so producers never block on a dead reader.
type chunkWriter struct {
	ctx    context.Context
	chunks chan<- ResponseChunk
}

func (w *chunkWriter) Send(chunk ResponseChunk) error {
	select {
	case w.chunks <- chunk:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

// chunkStream turns a producer function into a ChunkStream.
type chunkStream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	chunks    chan ResponseChunk
	errc      chan error
	closeOnce sync.Once
}

// newChunkStream runs produce in its own goroutine. A nil return ends the
// stream with io.EOF; any other error is delivered from Recv after the
// chunks produced before it.
func newChunkStream(ctx context.Context, produce func(ctx context.Context, out *chunkWriter) error) ChunkStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &chunkStream{
		ctx:    ctx,
		cancel: cancel,
		chunks: make(chan ResponseChunk, 16),
		errc:   make(chan error, 1),
	}
	go func() {
		defer close(s.chunks)
		if err := produce(ctx, &chunkWriter{ctx: ctx, chunks: s.chunks}); err != nil {
			s.errc <- err
		}
	}()
	return s
}

func (s *chunkStream) Recv() (ResponseChunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		select {
		case err := <-s.errc:
			return ResponseChunk{}, err
		default:
			return ResponseChunk{}, io.EOF
		}
	case <-s.ctx.Done():
		return ResponseChunk{}, s.ctx.Err()
	}
}

func (s *chunkStream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
