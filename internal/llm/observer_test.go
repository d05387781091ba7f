package llm

import (
	"testing"
	"time"
)

func TestPublisher_DeliversInOrder(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	p := newPublisher(stop)

	for i := 1; i <= 100; i++ {
		p.Publish(ToolEvent{Type: EventToolStarted, ID: i})
	}
	p.Close()

	want := 1
	for ev := range p.Events() {
		if ev.ID != want {
			t.Fatalf("got id %d, want %d", ev.ID, want)
		}
		want++
	}
	if want != 101 {
		t.Errorf("received %d events, want 100", want-1)
	}
}

func TestPublisher_PublishNeverBlocks(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	p := newPublisher(stop)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			p.Publish(ToolEvent{ID: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(loopTimeout):
		t.Fatal("Publish blocked without a reader")
	}
}

func TestPublisher_StopDropsAndCloses(t *testing.T) {
	stop := make(chan struct{})
	p := newPublisher(stop)
	p.Publish(ToolEvent{ID: 1})
	close(stop)
	p.Publish(ToolEvent{ID: 2})

	deadline := time.After(loopTimeout)
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return
			}
			if ev.ID == 2 {
				t.Fatal("event published after stop was delivered")
			}
		case <-deadline:
			t.Fatal("events channel not closed after stop")
		}
	}
}

func TestPublisher_PublishAfterClose(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	p := newPublisher(stop)
	p.Close()
	p.Publish(ToolEvent{ID: 1})

	for ev := range p.Events() {
		t.Fatalf("unexpected event %+v", ev)
	}
}
