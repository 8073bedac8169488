package main

import (
	"context"
	"log/slog"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven display session
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects (effects.go).
//   - Timer expiries, panel completions, fetch results and telemetry come back
//     as Events and are fed into the reducer.
//   - Events and commands go through explicit queues; an event posted while
//     the loop is draining is appended, never reduced re-entrantly.
//
// ============================================================================

// Daemon owns DaemonState and the normalizer. Dispatch and Run must only be
// called from the daemon goroutine (single-owner).
type Daemon struct {
	state      *DaemonState
	cfg        SessionConfig
	normalizer *Normalizer
	effects    *Effects
	broadcasts chan<- StateBroadcast
	logger     *slog.Logger

	eventQueue []Event
	cmdQueue   []Command
	draining   bool
}

// NewDaemon wires the loop. broadcasts may be nil when no state websocket runs.
func NewDaemon(state *DaemonState, cfg SessionConfig, effects *Effects, broadcasts chan<- StateBroadcast, logger *slog.Logger) *Daemon {
	return &Daemon{
		state:      state,
		cfg:        cfg,
		normalizer: &Normalizer{},
		effects:    effects,
		broadcasts: broadcasts,
		logger:     logger,
	}
}

// State returns the daemon-owned state. Tests only.
func (d *Daemon) State() *DaemonState { return d.state }

// Run starts the session and reduces events until ctx is canceled or events
// is closed.
func (d *Daemon) Run(ctx context.Context, events <-chan Event) error {
	d.Dispatch(SessionStarted{})

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping (context canceled)")
			d.effects.StopTimers()
			return nil

		case ev, ok := <-events:
			if !ok {
				d.logger.Info("daemon stopping (events channel closed)")
				d.effects.StopTimers()
				return nil
			}
			d.Dispatch(ev)
		}
	}
}

// Dispatch enqueues ev and drains both queues. A call made while draining
// (an effect reporting synchronously) only enqueues.
func (d *Daemon) Dispatch(ev Event) {
	d.eventQueue = append(d.eventQueue, ev)
	if d.draining {
		return
	}
	d.draining = true
	defer func() { d.draining = false }()

	for len(d.eventQueue) > 0 || len(d.cmdQueue) > 0 {
		d.flushEvents()
		d.flushCommands()
	}
}

// flushEvents reduces all queued events, enqueuing any resulting commands.
func (d *Daemon) flushEvents() {
	for len(d.eventQueue) > 0 {
		ev := d.eventQueue[0]
		d.eventQueue = d.eventQueue[1:]

		if t, ok := ev.(TelemetryReceived); ok {
			var next Event
			next, ok = d.normalize(t.Update)
			if !ok {
				continue
			}
			ev = next
		}

		rr := Reduce(d.state, ev, d.cfg)
		if rr.State != nil {
			d.state = rr.State
		}
		d.cmdQueue = append(d.cmdQueue, rr.Commands...)
		for _, b := range rr.Broadcasts {
			d.publish(b)
		}
	}
}

// flushCommands executes all queued commands; observations are enqueued.
func (d *Daemon) flushCommands() {
	for len(d.cmdQueue) > 0 {
		cmd := d.cmdQueue[0]
		d.cmdQueue = d.cmdQueue[1:]
		d.effects.Run(cmd)
	}
}

func (d *Daemon) normalize(u TelemetryUpdate) (Event, bool) {
	kind := "state"
	if u.Supplemental {
		kind = "supplemental"
	}
	telemetryTotal.WithLabelValues(u.Source, kind).Inc()

	res := d.normalizer.Apply(u)
	if !res.Changed {
		return nil, false
	}
	if res.NeedFooter {
		d.cmdQueue = append(d.cmdQueue, CmdRequestFooter{})
	}
	return SnapshotUpdated{
		Snapshot:     res.Snapshot,
		Wake:         res.Wake,
		TrackChanged: res.TrackChanged,
		Supplemental: res.Supplemental,
	}, true
}

func (d *Daemon) publish(b StateBroadcast) {
	if mc, ok := b.(BroadcastModeChanged); ok {
		modeTransitionsTotal.WithLabelValues(string(mc.To)).Inc()
		d.logger.Debug("display mode changed", "from", mc.From, "to", mc.To)
	}
	if d.broadcasts == nil {
		return
	}
	select {
	case d.broadcasts <- b:
	default:
		d.logger.Warn("state broadcast queue full; dropping broadcast")
	}
}
