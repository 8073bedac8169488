package main

import "time"

// DisplayMode is the panel's current content mode. At most one is active.
type DisplayMode string

const (
	ModeNone        DisplayMode = ""
	ModePlayback    DisplayMode = "playback"
	ModeClock       DisplayMode = "clock"
	ModeScreensaver DisplayMode = "screensaver"
	ModeDeepSleep   DisplayMode = "deep_sleep"
	ModeListBrowser DisplayMode = "list_browser"
)

// IdlePhase tracks progress along the idle timeline.
//
//	Active   -> no idle timer armed
//	Waiting  -> clock shown, timer to screensaver armed
//	Saving   -> screensaver shown, timer to deep sleep armed
//	Sleeping -> panel off, no timer armed
type IdlePhase string

const (
	IdleActive   IdlePhase = "active"
	IdleWaiting  IdlePhase = "waiting"
	IdleSaving   IdlePhase = "saving"
	IdleSleeping IdlePhase = "sleeping"
)

// KnobMode decides what the knob controls.
type KnobMode string

const (
	KnobVolume       KnobMode = "volume"
	KnobListBrowsing KnobMode = "list_browsing"
)

// DaemonState is the top-level, daemon-owned state container.
//
// All fields are reducer-owned: only Reduce mutates them, and only on the
// daemon goroutine. Other goroutines get copies via RequestStateSnapshot.
type DaemonState struct {
	Display DisplayState
	Idle    IdleState
	Knob    KnobState

	// Player is the last normalized snapshot (zero until PlayerKnown).
	Player      PlayerSnapshot
	PlayerKnown bool
}

// DisplayState is the session controller's view of the panel.
type DisplayState struct {
	Mode DisplayMode

	// RenderGen identifies the render timer armed for Mode; ticks carrying an
	// older generation are stale.
	RenderGen uint64

	// Busy is set while a frame or contrast command is outstanding on the panel.
	// Render ticks that arrive while busy are skipped, never queued.
	Busy bool

	// RedrawPending defers a mode-entry or cursor redraw until the panel is ready.
	RedrawPending bool

	Contrast        int
	PendingContrast int // 0 means none

	PoweredOff bool
}

// IdleState tracks the idle timeline.
type IdleState struct {
	Phase IdlePhase
	Gen   uint64

	ScreensaverAfter time.Duration
	DeepSleepAfter   time.Duration
}

// KnobState is the knob router's state.
type KnobState struct {
	Mode     KnobMode
	Fetching bool
	List     SelectableList
}

// NewDaemonState returns the state before SessionStarted.
func NewDaemonState(screensaverAfter, deepSleepAfter time.Duration, contrast int) *DaemonState {
	return &DaemonState{
		Display: DisplayState{Contrast: contrast},
		Idle: IdleState{
			Phase:            IdleActive,
			ScreensaverAfter: screensaverAfter,
			DeepSleepAfter:   deepSleepAfter,
		},
		Knob: KnobState{Mode: KnobVolume},
	}
}

// StateSnapshot is an immutable view of daemon state for other goroutines.
type StateSnapshot struct {
	Mode        DisplayMode    `json:"mode"`
	IdlePhase   IdlePhase      `json:"idle_phase"`
	KnobMode    KnobMode       `json:"knob_mode"`
	Contrast    int            `json:"contrast"`
	PoweredOff  bool           `json:"powered_off"`
	Player      PlayerSnapshot `json:"player"`
	PlayerKnown bool           `json:"player_known"`
}

// Snapshot returns a copy of the externally visible state.
func (s *DaemonState) Snapshot() StateSnapshot {
	return StateSnapshot{
		Mode:        s.Display.Mode,
		IdlePhase:   s.Idle.Phase,
		KnobMode:    s.Knob.Mode,
		Contrast:    s.Display.Contrast,
		PoweredOff:  s.Display.PoweredOff,
		Player:      s.Player,
		PlayerKnown: s.PlayerKnown,
	}
}
