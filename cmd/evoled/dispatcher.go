package main

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// Command Dispatcher
// ============================================================================
// Player control commands (volume, toggle, play playlist) are shell command
// lines. Submit never blocks the caller; a single worker runs them strictly in
// submission order, one at a time, so a slow command delays later ones
// instead of overlapping with them. Failures are logged and the queue moves on.
// ============================================================================

// CommandRunner executes one command line.
type CommandRunner interface {
	Run(ctx context.Context, commandLine string) ([]byte, error)
}

// shellRunner runs command lines through /bin/sh -c.
type shellRunner struct {
	shell string
}

func newShellRunner() shellRunner {
	return shellRunner{shell: "/bin/sh"}
}

func (r shellRunner) Run(ctx context.Context, commandLine string) ([]byte, error) {
	return exec.CommandContext(ctx, r.shell, "-c", commandLine).CombinedOutput()
}

// CommandSubmitter is the non-blocking half of the dispatcher that effects use.
type CommandSubmitter interface {
	Submit(commandLine string)
}

// Dispatcher is a FIFO command queue drained by one worker goroutine (Run).
type Dispatcher struct {
	runner     CommandRunner
	logger     *slog.Logger
	timeout    time.Duration
	maxPending int

	mu      sync.Mutex
	pending []string
	wake    chan struct{}
}

type DispatcherConfig struct {
	// Timeout bounds a single command. Zero means no per-command timeout.
	Timeout time.Duration

	// MaxPending caps queued (not yet started) commands. Zero means unbounded.
	MaxPending int
}

func NewDispatcher(runner CommandRunner, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		runner:     runner,
		logger:     logger,
		timeout:    cfg.Timeout,
		maxPending: cfg.MaxPending,
		wake:       make(chan struct{}, 1),
	}
}

// Submit enqueues a command line and returns immediately.
func (d *Dispatcher) Submit(commandLine string) {
	commandLine = strings.TrimSpace(commandLine)
	if commandLine == "" {
		return
	}

	d.mu.Lock()
	if d.maxPending > 0 && len(d.pending) >= d.maxPending {
		d.mu.Unlock()
		d.logger.Warn("command queue full, dropping command", "command", commandLine, "max_pending", d.maxPending)
		commandsTotal.WithLabelValues("dropped").Inc()
		return
	}
	d.pending = append(d.pending, commandLine)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of commands waiting to start.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Run executes queued commands until ctx is canceled.
// Commands still queued at shutdown are discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := d.Pending(); n > 0 {
				d.logger.Debug("dispatcher stopping with queued commands", "discarded", n)
			}
			return
		case <-d.wake:
		}

		for {
			line, ok := d.next()
			if !ok {
				break
			}
			d.execute(ctx, line)
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (d *Dispatcher) next() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return "", false
	}
	line := d.pending[0]
	d.pending = d.pending[1:]
	return line, true
}

func (d *Dispatcher) execute(ctx context.Context, line string) {
	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := d.runner.Run(runCtx, line)
	elapsed := time.Since(start)
	commandDuration.Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			d.logger.Warn("command timed out", "command", line, "timeout", d.timeout)
		} else {
			d.logger.Warn("command failed", "command", line, "error", err, "output", strings.TrimSpace(string(out)))
		}
		commandsTotal.WithLabelValues("failed").Inc()
		return
	}

	d.logger.Debug("command finished", "command", line, "elapsed", elapsed)
	commandsTotal.WithLabelValues("ok").Inc()
}
