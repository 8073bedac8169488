package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeRunner records executions and detects overlap.
type fakeRunner struct {
	mu       sync.Mutex
	ran      []string
	active   int
	overlap  bool
	delay    time.Duration
	failures map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, line string) ([]byte, error) {
	f.mu.Lock()
	f.active++
	if f.active > 1 {
		f.overlap = true
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active--
	f.ran = append(f.ran, line)
	err := f.failures[line]
	f.mu.Unlock()
	return nil, err
}

func (f *fakeRunner) snapshot() ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...), f.overlap
}

func TestDispatcher_RunsInOrderWithoutOverlap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{delay: 20 * time.Millisecond}
	d := NewDispatcher(runner, slog.Default(), DispatcherConfig{})

	d.Submit("A")
	d.Submit("B")
	d.Submit("C")

	go d.Run(ctx)

	waitUntil(t, time.Second, func() bool {
		ran, _ := runner.snapshot()
		return len(ran) == 3
	}, "commands did not finish")

	ran, overlap := runner.snapshot()
	if ran[0] != "A" || ran[1] != "B" || ran[2] != "C" {
		t.Fatalf("order = %v, want [A B C]", ran)
	}
	if overlap {
		t.Fatalf("commands overlapped")
	}
}

func TestDispatcher_SubmitDoesNotBlock(t *testing.T) {
	runner := &fakeRunner{}
	d := NewDispatcher(runner, slog.Default(), DispatcherConfig{})

	// No worker running: Submit must still return immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Submit("volumio volume plus")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Submit blocked without a worker")
	}
	if d.Pending() != 100 {
		t.Fatalf("pending = %d, want 100", d.Pending())
	}
}

func TestDispatcher_FailureDoesNotStopQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{failures: map[string]error{"bad": errors.New("exit status 1")}}
	d := NewDispatcher(runner, slog.Default(), DispatcherConfig{})
	go d.Run(ctx)

	d.Submit("bad")
	d.Submit("good")

	waitUntil(t, time.Second, func() bool {
		ran, _ := runner.snapshot()
		return len(ran) == 2
	}, "queue stalled after failure")
}

func TestDispatcher_DropsBeyondMaxPending(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, slog.Default(), DispatcherConfig{MaxPending: 2})

	d.Submit("A")
	d.Submit("B")
	d.Submit("C")

	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", d.Pending())
	}
}

func TestDispatcher_IgnoresBlankCommands(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, slog.Default(), DispatcherConfig{})
	d.Submit("   ")
	if d.Pending() != 0 {
		t.Fatalf("blank command queued")
	}
}
