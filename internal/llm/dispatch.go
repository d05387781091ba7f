package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var errNoExecutor = errors.New("no tool executor configured")

// toolCompletion is the outcome of one dispatched tool call.
type toolCompletion struct {
	id     int
	call   ToolCall
	result string
	err    error
}

// dispatcher launches one goroutine per tool call and collects completions
// in the order they finish. Correlation ids are assigned here and are only
// meaningful to the observer.
type dispatcher struct {
	exec    ToolExecutor
	publish func(ToolEvent)
	log     *zap.Logger

	lastID  int
	pending int
	results chan toolCompletion
}

func newDispatcher(exec ToolExecutor, publish func(ToolEvent), log *zap.Logger) *dispatcher {
	return &dispatcher{
		exec:    exec,
		publish: publish,
		log:     log,
		results: make(chan toolCompletion),
	}
}

// Dispatch starts the calls without waiting for any of them.
func (d *dispatcher) Dispatch(ctx context.Context, calls []ToolCall) {
	for _, call := range calls {
		d.lastID++
		id := d.lastID
		d.pending++
		d.publish(ToolEvent{Type: EventToolStarted, ID: id, Name: call.Name, Arguments: call.Arguments})
		d.log.Debug("tool dispatched", zap.Int("id", id), zap.String("tool", call.Name))

		go func(id int, call ToolCall) {
			result, err := d.execute(ctx, call)
			select {
			case d.results <- toolCompletion{id: id, call: call, result: result, err: err}:
			case <-ctx.Done():
			}
		}(id, call)
	}
}

func (d *dispatcher) execute(ctx context.Context, call ToolCall) (result string, err error) {
	if d.exec == nil {
		return "", errNoExecutor
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return d.exec.Call(ctx, call.Name, call.Arguments)
}

// Pending reports how many dispatched calls have not been collected.
func (d *dispatcher) Pending() int {
	return d.pending
}

// Await blocks until every pending call has completed, handing each
// completion to fn as it arrives.
func (d *dispatcher) Await(ctx context.Context, fn func(toolCompletion)) error {
	for d.pending > 0 {
		select {
		case c := <-d.results:
			d.pending--
			fn(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
