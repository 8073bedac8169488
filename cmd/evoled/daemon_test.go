package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Fakes
// ============================================================================

// fakeScheduler runs timers against a manual clock.
type fakeScheduler struct {
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	every   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Every(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: s.now + d, every: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in order.
func (s *fakeScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		var next *fakeTimer
		for _, t := range s.timers {
			if !t.stopped && t.at <= target && (next == nil || t.at < next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		s.now = next.at
		if next.every > 0 {
			next.at += next.every
		} else {
			next.stopped = true
		}
		next.f()
	}
	s.now = target
}

// fakePanel completes transfers immediately unless hold is set.
type fakePanel struct {
	*Canvas

	hold     bool
	held     []func()
	presents int
	contrast []int
	powerOn  int
	powerOff int
}

func newFakePanel() *fakePanel { return &fakePanel{Canvas: NewCanvas(defaultPanelWidth, defaultPanelHeight)} }

func (p *fakePanel) complete(done func()) {
	if p.hold {
		p.held = append(p.held, done)
		return
	}
	done()
}

func (p *fakePanel) Present(_ bool, done func()) {
	p.presents++
	p.complete(done)
}

func (p *fakePanel) SetContrast(v int, done func()) {
	p.contrast = append(p.contrast, v)
	p.complete(done)
}

func (p *fakePanel) PowerOn() error  { p.powerOn++; return nil }
func (p *fakePanel) PowerOff() error { p.powerOff++; return nil }
func (p *fakePanel) Close() error    { return nil }

// release completes every held transfer.
func (p *fakePanel) release() {
	held := p.held
	p.held = nil
	for _, done := range held {
		done()
	}
}

type recordingSubmitter struct{ lines []string }

func (r *recordingSubmitter) Submit(line string) { r.lines = append(r.lines, line) }

// ============================================================================
// Harness
// ============================================================================

// daemonHarness drives a Daemon synchronously: events posted by effects are
// queued and dispatched by drain, never from inside a Dispatch.
type daemonHarness struct {
	t      *testing.T
	sched  *fakeScheduler
	panel  *fakePanel
	sub    *recordingSubmitter
	daemon *Daemon

	mu       sync.Mutex
	pending  []Event
	shutdown bool
}

func newDaemonHarness(t *testing.T, screensaverAfter, deepSleepAfter time.Duration) *daemonHarness {
	t.Helper()
	h := &daemonHarness{
		t:     t,
		sched: &fakeScheduler{},
		panel: newFakePanel(),
		sub:   &recordingSubmitter{},
	}
	fixed := time.Date(2024, 5, 1, 21, 7, 0, 0, time.UTC)
	renderer := NewRenderer(h.panel, rand.New(rand.NewPCG(1, 2)), func() time.Time { return fixed })

	effects := NewEffects(context.Background(), EffectsDeps{
		Scheduler:  h.sched,
		Panel:      h.panel,
		Renderer:   renderer,
		Dispatcher: h.sub,
		Post:       h.post,
		Shutdown:   func() { h.shutdown = true },
	}, slog.Default())

	state := NewDaemonState(screensaverAfter, deepSleepAfter, defaultContrast)
	h.daemon = NewDaemon(state, testSessionConfig(), effects, nil, slog.Default())
	h.dispatch(SessionStarted{})
	return h
}

func (h *daemonHarness) post(ev Event) {
	h.mu.Lock()
	h.pending = append(h.pending, ev)
	h.mu.Unlock()
}

func (h *daemonHarness) drain() {
	for {
		h.mu.Lock()
		if len(h.pending) == 0 {
			h.mu.Unlock()
			return
		}
		ev := h.pending[0]
		h.pending = h.pending[1:]
		h.mu.Unlock()
		h.daemon.Dispatch(ev)
	}
}

func (h *daemonHarness) dispatch(ev Event) {
	h.daemon.Dispatch(ev)
	h.drain()
}

// advance moves time forward in 10 ms steps, draining posted events between steps.
func (h *daemonHarness) advance(d time.Duration) {
	const step = 10 * time.Millisecond
	for d > 0 {
		s := min(step, d)
		h.sched.Advance(s)
		h.drain()
		d -= s
	}
}

func (h *daemonHarness) mode() DisplayMode { return h.daemon.State().Display.Mode }

func (h *daemonHarness) requireMode(want DisplayMode, when string) {
	h.t.Helper()
	if got := h.mode(); got != want {
		h.t.Fatalf("%s: mode = %s, want %s", when, got, want)
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestDaemon_IdleTimeline(t *testing.T) {
	h := newDaemonHarness(t, 2*time.Second, 3*time.Second)
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.requireMode(ModePlayback, "first update")

	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.requireMode(ModeClock, "steady paused update")

	h.advance(1990 * time.Millisecond)
	h.requireMode(ModeClock, "t=1.99s")
	h.advance(20 * time.Millisecond)
	h.requireMode(ModeScreensaver, "t=2.01s")

	h.advance(2980 * time.Millisecond)
	h.requireMode(ModeScreensaver, "t=4.99s")
	h.advance(20 * time.Millisecond)
	h.requireMode(ModeDeepSleep, "t=5.01s")
	if h.panel.powerOff != 1 {
		t.Fatalf("power off calls = %d, want 1", h.panel.powerOff)
	}

	presents := h.panel.presents
	h.advance(10 * time.Second)
	h.requireMode(ModeDeepSleep, "t=15s")
	if h.panel.presents != presents {
		t.Fatalf("frames presented while asleep: %d", h.panel.presents-presents)
	}
}

func TestDaemon_WakeDuringScreensaverStaysInPlayback(t *testing.T) {
	h := newDaemonHarness(t, 2*time.Second, 3*time.Second)
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})

	h.advance(4 * time.Second)
	h.requireMode(ModeScreensaver, "t=4s")

	h.dispatch(ExternalWake{Source: "test"})
	h.requireMode(ModePlayback, "after wake")

	h.advance(10 * time.Second)
	h.requireMode(ModePlayback, "10s after wake")
	if h.daemon.State().Idle.Phase != IdleActive {
		t.Fatalf("idle phase = %s", h.daemon.State().Idle.Phase)
	}
}

func TestDaemon_PausedSeekWakes(t *testing.T) {
	h := newDaemonHarness(t, 2*time.Second, 3*time.Second)
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.requireMode(ModeClock, "steady paused update")

	h.dispatch(TelemetryReceived{Update: pausedTrack(90)})
	h.requireMode(ModePlayback, "seek while paused")
}

func TestDaemon_DeepSleepWakePowersOn(t *testing.T) {
	h := newDaemonHarness(t, time.Second, time.Second)
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.advance(2100 * time.Millisecond)
	h.requireMode(ModeDeepSleep, "t=2.1s")

	presents := h.panel.presents
	h.dispatch(ExternalWake{})
	h.requireMode(ModePlayback, "after wake")
	if h.panel.powerOn != 1 {
		t.Fatalf("power on calls = %d, want 1", h.panel.powerOn)
	}
	if h.panel.presents <= presents {
		t.Fatalf("no frame after wake")
	}
}

func TestDaemon_BusyPanelSkipsTicks(t *testing.T) {
	h := newDaemonHarness(t, time.Minute, time.Minute)
	h.panel.hold = true

	h.advance(40 * time.Millisecond)
	if got := h.panel.presents; got != 2 {
		t.Fatalf("presents = %d, want 2 (entry frame + first tick)", got)
	}

	h.advance(400 * time.Millisecond)
	if got := h.panel.presents; got != 2 {
		t.Fatalf("ticks rendered while panel busy: presents = %d", got)
	}
	if !h.daemon.State().Display.Busy {
		t.Fatalf("panel not marked busy")
	}

	h.panel.release()
	h.drain()
	h.advance(40 * time.Millisecond)
	if got := h.panel.presents; got != 3 {
		t.Fatalf("presents = %d after release, want 3", got)
	}
}

func TestDaemon_ContrastAppliedBetweenFrames(t *testing.T) {
	h := newDaemonHarness(t, time.Minute, time.Minute)
	h.panel.hold = true
	h.advance(40 * time.Millisecond)

	h.dispatch(ContrastRequested{Value: 100})
	if len(h.panel.contrast) != 0 {
		t.Fatalf("contrast sent while frame in flight")
	}

	h.panel.release()
	h.drain()
	if len(h.panel.contrast) != 1 || h.panel.contrast[0] != 100 {
		t.Fatalf("contrast calls = %v, want [100]", h.panel.contrast)
	}
}

func TestDaemon_KnobCommandsReachDispatcher(t *testing.T) {
	h := newDaemonHarness(t, time.Minute, time.Minute)
	h.dispatch(KnobRotated{Direction: Clockwise})
	h.dispatch(KnobPressed{})

	if len(h.sub.lines) != 2 || h.sub.lines[0] != "volumio volume plus" || h.sub.lines[1] != "volumio toggle" {
		t.Fatalf("submitted %v", h.sub.lines)
	}
}

func TestDaemon_ExitRequestedShutsDown(t *testing.T) {
	h := newDaemonHarness(t, time.Minute, time.Minute)
	h.dispatch(ExitRequested{})
	if !h.shutdown {
		t.Fatalf("shutdown not called")
	}
}

func TestDaemon_StateSnapshotReply(t *testing.T) {
	h := newDaemonHarness(t, time.Minute, time.Minute)
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})

	reply := make(chan StateSnapshot, 1)
	h.dispatch(RequestStateSnapshot{Reply: reply})

	select {
	case snap := <-reply:
		if snap.Mode != ModePlayback || !snap.PlayerKnown || snap.Player.Title != "So What" {
			t.Fatalf("snapshot = %+v", snap)
		}
	default:
		t.Fatalf("no snapshot reply")
	}
}

func TestDaemon_RepeatedIdleUpdateKeepsTimeline(t *testing.T) {
	h := newDaemonHarness(t, time.Minute, time.Minute)
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	h.requireMode(ModeClock, "steady paused update")

	gen := h.daemon.State().Idle.Gen
	h.dispatch(TelemetryReceived{Update: pausedTrack(65)})
	if h.daemon.State().Idle.Gen != gen {
		t.Fatalf("idle generation changed on identical update")
	}
}
