package llm

import "sync"

// publisher delivers observer events through an unbounded queue.
//
// Publish never blocks. Events are delivered in publish order for as long
// as someone reads Events(). Once stop is closed, publishing becomes a no-op
// and any undelivered events are dropped; a reader that has gone away is
// therefore never waited on.
type publisher struct {
	mu     sync.Mutex
	queue  []ToolEvent
	closed bool
	wake   chan struct{}
	out    chan ToolEvent
	stop   <-chan struct{}
}

func newPublisher(stop <-chan struct{}) *publisher {
	p := &publisher{
		wake: make(chan struct{}, 1),
		out:  make(chan ToolEvent),
		stop: stop,
	}
	go p.pump()
	return p
}

// Events returns the observer channel. It is closed after Close once the
// queue has drained, or as soon as stop fires.
func (p *publisher) Events() <-chan ToolEvent {
	return p.out
}

func (p *publisher) Publish(ev ToolEvent) {
	select {
	case <-p.stop:
		return
	default:
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, ev)
	p.mu.Unlock()
	p.notify()
}

// Close stops accepting events. Already queued events are still delivered.
func (p *publisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.notify()
}

func (p *publisher) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// next pops the head of the queue. ok is false when the queue is empty;
// closed reports whether more events can still arrive.
func (p *publisher) next() (ev ToolEvent, ok bool, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return ToolEvent{}, false, p.closed
	}
	ev = p.queue[0]
	p.queue[0] = ToolEvent{}
	p.queue = p.queue[1:]
	return ev, true, p.closed
}

func (p *publisher) pump() {
	defer close(p.out)
	for {
		ev, ok, closed := p.next()
		if !ok {
			if closed {
				return
			}
			select {
			case <-p.wake:
				continue
			case <-p.stop:
				return
			}
		}
		select {
		case p.out <- ev:
		case <-p.stop:
			return
		}
	}
}
