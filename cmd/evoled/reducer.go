package main

import "time"

// This file implements the display session controller as a pure reducer:
//
//   - Reduce() computes next state + commands + broadcasts, without performing I/O
//   - the daemon loop executes Commands (effects.go) and feeds observations back as Events
//
// Display mode transitions:
//
//	from \ event   wake           not-wake       idle timer      list ready / select
//	Playback       (stay)         Clock          -               ListBrowser / -
//	Clock          Playback       (stay)         Screensaver     ListBrowser / -
//	Screensaver    Playback       (stay)         DeepSleep       ListBrowser / -
//	DeepSleep      on, Playback   (stay)         -               on, ListBrowser / -
//	ListBrowser    (stay)         (stay)         -               - / Playback
//
// Entering a mode cancels the previous mode's render timer before arming its
// own; re-entering the active mode is a no-op.

// SessionConfig is the reducer's static configuration.
type SessionConfig struct {
	PlaybackRate    time.Duration
	ClockRate       time.Duration
	ScreensaverRate time.Duration
	ListRate        time.Duration

	Commands CommandSet
}

// DefaultSessionConfig returns the built-in render cadences with the given commands.
func DefaultSessionConfig(commands CommandSet) SessionConfig {
	return SessionConfig{
		PlaybackRate:    defaultMainRateMS * time.Millisecond,
		ClockRate:       clockRefreshRate,
		ScreensaverRate: screensaverTickRate,
		ListRate:        listRefreshRate,
		Commands:        commands,
	}
}

// ReduceResult is the output of Reduce.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce applies one event to the state.
func Reduce(state *DaemonState, ev Event, cfg SessionConfig) ReduceResult {
	if state == nil {
		return ReduceResult{}
	}
	r := &reduction{s: state, cfg: cfg}

	switch e := ev.(type) {
	case SessionStarted:
		r.enterMode(ModePlayback)

	case SnapshotUpdated:
		r.onSnapshot(e)

	case ExternalWake:
		r.wakeTo(ModePlayback)

	case ContrastRequested:
		r.wakeTo(ModePlayback)
		r.setContrast(e.Value)

	case IdleDelaysRequested:
		if e.ScreensaverAfter != nil && *e.ScreensaverAfter >= 0 {
			state.Idle.ScreensaverAfter = *e.ScreensaverAfter
		}
		if e.DeepSleepAfter != nil && *e.DeepSleepAfter >= 0 {
			state.Idle.DeepSleepAfter = *e.DeepSleepAfter
		}
		r.wakeTo(ModePlayback)

	case ExitRequested:
		r.cmd(CmdShutdown{})

	case IdleTimerFired:
		r.onIdleTimer(e)

	case RenderTick:
		if e.Mode != state.Display.Mode || e.Gen != state.Display.RenderGen {
			return r.result()
		}
		r.requestFrame(true)

	case PanelReady:
		r.onPanelReady()

	case KnobRotated:
		r.onRotate(e)

	case KnobPressed:
		r.onPress(e)

	case BrowseRequested:
		if state.Knob.Mode == KnobVolume {
			r.startBrowse()
		}

	case ListFetched:
		r.onListFetched(e)

	case RequestStateSnapshot:
		r.cmd(CmdPublishStateSnapshot{Reply: e.Reply, Snapshot: state.Snapshot()})
	}

	return r.result()
}

// reduction accumulates the output of a single Reduce call.
type reduction struct {
	s   *DaemonState
	cfg SessionConfig

	cmds       []Command
	broadcasts []StateBroadcast
}

func (r *reduction) cmd(c Command) { r.cmds = append(r.cmds, c) }

func (r *reduction) broadcast(b StateBroadcast) { r.broadcasts = append(r.broadcasts, b) }

func (r *reduction) result() ReduceResult {
	return ReduceResult{State: r.s, Commands: r.cmds, Broadcasts: r.broadcasts}
}

// ============================================================================
// Telemetry and the idle timeline
// ============================================================================

func (r *reduction) onSnapshot(e SnapshotUpdated) {
	r.s.Player = e.Snapshot
	r.s.PlayerKnown = true
	r.broadcast(BroadcastSnapshot{Snapshot: e.Snapshot})

	if e.Supplemental {
		return
	}
	if e.TrackChanged && r.s.Display.Mode == ModePlayback {
		r.cmd(CmdResetScroll{})
	}
	if e.Wake {
		r.wakeTo(ModePlayback)
	} else {
		r.idle()
	}
}

// wakeTo leaves the idle timeline and shows target. The list browser is never
// left by a wake.
func (r *reduction) wakeTo(target DisplayMode) {
	r.cancelIdle()
	if r.s.Display.PoweredOff {
		r.s.Display.PoweredOff = false
		r.cmd(CmdPowerOn{})
	}
	if r.s.Display.Mode == ModeListBrowser && target == ModePlayback {
		return
	}
	r.enterMode(target)
}

// idle starts the idle timeline if it is not already running.
func (r *reduction) idle() {
	if r.s.Display.Mode == ModeListBrowser || r.s.Knob.Mode == KnobListBrowsing {
		return
	}
	if r.s.Idle.Phase != IdleActive {
		return
	}
	r.s.Idle.Phase = IdleWaiting
	r.s.Idle.Gen++
	r.cmd(CmdStartIdleTimer{After: r.s.Idle.ScreensaverAfter, Gen: r.s.Idle.Gen})
	r.enterMode(ModeClock)
}

func (r *reduction) cancelIdle() {
	idle := &r.s.Idle
	if idle.Phase == IdleActive {
		return
	}
	if idle.Phase == IdleWaiting || idle.Phase == IdleSaving {
		r.cmd(CmdCancelIdleTimer{})
	}
	idle.Phase = IdleActive
	idle.Gen++
}

func (r *reduction) onIdleTimer(e IdleTimerFired) {
	idle := &r.s.Idle
	if e.Gen != idle.Gen {
		return
	}
	switch idle.Phase {
	case IdleWaiting:
		idle.Phase = IdleSaving
		idle.Gen++
		r.cmd(CmdStartIdleTimer{After: idle.DeepSleepAfter, Gen: idle.Gen})
		r.enterMode(ModeScreensaver)
	case IdleSaving:
		idle.Phase = IdleSleeping
		r.enterMode(ModeDeepSleep)
	}
}

// ============================================================================
// Display modes and frames
// ============================================================================

func (r *reduction) enterMode(m DisplayMode) {
	d := &r.s.Display
	prev := d.Mode
	if prev == m {
		return
	}
	d.Mode = m
	d.RenderGen++
	d.RedrawPending = false

	r.cmd(CmdCancelRenderTimer{})
	r.broadcast(BroadcastModeChanged{From: prev, To: m})

	switch m {
	case ModePlayback:
		r.cmd(CmdResetScroll{})
		r.startRenderTimer(r.cfg.PlaybackRate)
		r.requestFrame(false)
	case ModeClock:
		r.startRenderTimer(r.cfg.ClockRate)
		r.requestFrame(false)
	case ModeScreensaver:
		r.cmd(CmdResetAnimation{})
		r.startRenderTimer(r.cfg.ScreensaverRate)
	case ModeListBrowser:
		r.startRenderTimer(r.cfg.ListRate)
		r.requestFrame(false)
	case ModeDeepSleep:
		d.PoweredOff = true
		r.cmd(CmdPowerOff{})
	}
}

func (r *reduction) startRenderTimer(interval time.Duration) {
	d := &r.s.Display
	r.cmd(CmdStartRenderTimer{Mode: d.Mode, Interval: interval, Gen: d.RenderGen})
}

// requestFrame renders the active mode unless the panel is busy. A busy panel
// drops timer ticks; a frame requested for any other reason is deferred until
// the panel is ready.
func (r *reduction) requestFrame(tick bool) {
	d := &r.s.Display
	if d.Mode == ModeNone || d.Mode == ModeDeepSleep || d.PoweredOff {
		return
	}
	if d.Busy {
		if tick {
			r.cmd(CmdNoteFrameSkipped{Mode: d.Mode})
		} else {
			d.RedrawPending = true
		}
		return
	}
	d.Busy = true
	r.cmd(CmdRenderFrame{Mode: d.Mode, Player: r.s.Player, List: r.s.Knob.List})
}

func (r *reduction) onPanelReady() {
	d := &r.s.Display
	d.Busy = false

	if d.PendingContrast != 0 {
		v := d.PendingContrast
		d.PendingContrast = 0
		d.Busy = true
		r.cmd(CmdSetContrast{Value: v})
		return
	}
	if d.RedrawPending {
		d.RedrawPending = false
		r.requestFrame(false)
	}
}

// setContrast applies contrast between frames.
func (r *reduction) setContrast(v int) {
	if v < minContrast || v > maxContrast {
		return
	}
	d := &r.s.Display
	d.Contrast = v
	if d.Busy {
		d.PendingContrast = v
		return
	}
	d.Busy = true
	r.cmd(CmdSetContrast{Value: v})
}
