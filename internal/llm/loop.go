package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LoopOption customizes a loop invocation.
type LoopOption func(*loopConfig)

type loopConfig struct {
	log          *zap.Logger
	debug        *DebugLogger
	turnAppended func(Turn)
}

// WithLogger sets the structured logger used for loop diagnostics.
func WithLogger(log *zap.Logger) LoopOption {
	return func(c *loopConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithDebugLogger mirrors every round request and observer event into a
// JSONL debug file.
func WithDebugLogger(dl *DebugLogger) LoopOption {
	return func(c *loopConfig) { c.debug = dl }
}

// WithTurnAppended registers a callback invoked on the loop goroutine
// after each turn is appended to history. It must not block for long.
func WithTurnAppended(fn func(Turn)) LoopOption {
	return func(c *loopConfig) { c.turnAppended = fn }
}

// LoopStats summarizes a finished loop.
type LoopStats struct {
	Rounds    int
	ToolCalls int
	Usage     Usage
	Duration  time.Duration
}

// Loop is a running tool-calling loop. Its history is only observable
// through Wait once the loop has finished.
type Loop struct {
	events <-chan ToolEvent
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	history History
	err     error
	stats   LoopStats
}

// Events returns the observer channel. Reading it is optional. It is closed
// after the loop finishes and every queued event has been delivered, or
// immediately on cancellation. Callers that stop reading before it closes
// should call Cancel.
func (l *Loop) Events() <-chan ToolEvent { return l.events }

// Done is closed when the loop has finished.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Cancel aborts the loop. In-flight tools see their context cancelled and
// no further events are published.
func (l *Loop) Cancel() { l.cancel() }

// Wait blocks until the loop finishes and returns the final history. On
// error the history holds every turn appended before the failure.
func (l *Loop) Wait() (History, error) {
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history, l.err
}

// Stats returns the loop's counters. They are complete once Done is closed.
func (l *Loop) Stats() LoopStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// RunLoop drives the conversation to completion: it streams one backend
// round, records the assistant output, runs every requested tool
// concurrently, records their results in completion order, and repeats
// until a round requests no tools.
//
// The history argument is copied; the caller's slice is never mutated.
// Model, Tools and Thinking are taken from req; req.History is ignored.
// Backend errors end the loop. Tool errors are reported to the model as
// tool results and the loop continues.
func RunLoop(ctx context.Context, backend Backend, req Request, exec ToolExecutor, history History, opts ...LoopOption) *Loop {
	cfg := loopConfig{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	pub := newPublisher(ctx.Done())
	l := &Loop{
		events:  pub.Events(),
		done:    make(chan struct{}),
		cancel:  cancel,
		history: history.Clone(),
	}

	r := &runner{
		backend: backend,
		req:     req,
		cfg:     cfg,
		pub:     pub,
		history: history.Clone(),
	}
	r.dispatch = newDispatcher(exec, r.publish, cfg.log)

	go func() {
		defer close(l.done)
		defer pub.Close()
		start := time.Now()
		err := r.run(ctx)
		if err != nil {
			cfg.debug.LogError(err)
		}
		r.stats.Duration = time.Since(start)
		l.mu.Lock()
		l.history = r.history
		l.err = err
		l.stats = r.stats
		l.mu.Unlock()
	}()
	return l
}

// runner holds the state owned by the loop goroutine.
type runner struct {
	backend  Backend
	req      Request
	cfg      loopConfig
	pub      *publisher
	dispatch *dispatcher

	history History
	stats   LoopStats
}

func (r *runner) publish(ev ToolEvent) {
	r.cfg.debug.LogEvent(ev)
	r.pub.Publish(ev)
}

func (r *runner) appendTurn(turn Turn) {
	r.history.Append(turn)
	if r.cfg.turnAppended != nil {
		r.cfg.turnAppended(turn)
	}
}

func (r *runner) run(ctx context.Context) error {
	// In-flight tools are abandoned when the loop returns early.
	ctx, cancelTools := context.WithCancel(ctx)
	defer cancelTools()

	if r.backend == nil {
		return ErrNoBackend
	}
	log := r.cfg.log.With(zap.String("backend", r.backend.Name()), zap.String("model", r.req.Model))

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.stats.Rounds = round

		toolCalls, err := r.streamRound(ctx, round, log)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Warn("backend round failed", zap.Int("round", round), zap.Error(err))
			return fmt.Errorf("round %d: %w", round, err)
		}
		if toolCalls == 0 {
			log.Debug("loop finished", zap.Int("rounds", round), zap.Int("tool_calls", r.stats.ToolCalls))
			return nil
		}

		err = r.dispatch.Await(ctx, func(c toolCompletion) {
			r.recordCompletion(c, log)
		})
		if err != nil {
			return err
		}
	}
}

// streamRound requests one round from the backend and consumes its stream.
// Tool calls are dispatched as soon as they arrive; the number dispatched
// is returned.
func (r *runner) streamRound(ctx context.Context, round int, log *zap.Logger) (int, error) {
	req := Request{
		Model:    r.req.Model,
		History:  r.history.Clone(),
		Tools:    r.req.Tools,
		Thinking: r.req.Thinking,
	}
	r.cfg.debug.LogRound(round, r.backend.Name(), req)
	log.Debug("round started", zap.Int("round", round), zap.Int("history", len(req.History)))

	stream, err := r.backend.SendChatStream(ctx, req)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	// Unblocks Recv on backends that do not watch the context themselves.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	acc := &roundAccumulator{
		appendTurn: r.appendTurn,
		dispatch:   func(calls []ToolCall) { r.dispatch.Dispatch(ctx, calls) },
		publish:    r.publish,
	}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return acc.toolCalls, err
		}
		acc.Consume(chunk)
		if chunk.Done {
			break
		}
	}
	acc.Finish()

	r.stats.ToolCalls += acc.toolCalls
	r.stats.Usage.InputTokens += acc.usage.InputTokens
	r.stats.Usage.OutputTokens += acc.usage.OutputTokens
	return acc.toolCalls, nil
}

func (r *runner) recordCompletion(c toolCompletion, log *zap.Logger) {
	ev := ToolEvent{Type: EventToolResult, ID: c.id, Name: c.call.Name, Arguments: c.call.Arguments}
	if c.err != nil {
		log.Info("tool failed", zap.Int("id", c.id), zap.String("tool", c.call.Name), zap.Error(c.err))
		r.appendTurn(ToolResultTurn(ToolFailureText(c.err), c.call.Name))
		ev.Err = c.err
	} else {
		log.Debug("tool finished", zap.Int("id", c.id), zap.String("tool", c.call.Name), zap.Int("bytes", len(c.result)))
		r.appendTurn(ToolResultTurn(c.result, c.call.Name))
		ev.Result = c.result
	}
	r.publish(ev)
}
