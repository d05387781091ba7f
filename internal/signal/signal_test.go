//go:build !windows

package signal

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestCancelOnInterrupt(t *testing.T) {
	cancelled := make(chan struct{})
	stop := CancelOnInterrupt(func() { close(cancelled) })
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel was not called on SIGINT")
	}
}

func TestCancelOnInterruptStop(t *testing.T) {
	stop := CancelOnInterrupt(func() { t.Error("cancel called after stop") })
	stop()
	time.Sleep(10 * time.Millisecond)
}

func TestNotifyContextParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := NotifyContext(parent)
	defer stop()
	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("child context not cancelled with parent")
	}
}
