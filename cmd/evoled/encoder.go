package main

import (
	"log/slog"
	"time"
)

// ============================================================================
// Quadrature decoder
// ============================================================================
// The knob's CLK line (phase A) fires an edge interrupt; on every A transition
// we sample phase B. If B differs from the new A the shaft moved clockwise,
// otherwise counter-clockwise. A mechanical detent produces several edges, so
// the decoder only reports a rotation once enough consecutive edges in one
// direction reach the steps-per-detent threshold. A reversal restarts the run
// at one step.
// ============================================================================

// Direction is the decoded rotation direction of one detent.
type Direction int8

const (
	DirectionNone    Direction = 0
	Clockwise        Direction = 1
	CounterClockwise Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "cw"
	case CounterClockwise:
		return "ccw"
	default:
		return "none"
	}
}

// PhaseReader samples the instantaneous level of both encoder phases.
type PhaseReader interface {
	ReadPhases() (a, b bool, err error)
}

// EncoderState is the decoder's working state.
// PendingSteps stays below StepsPerDetent between calls.
type EncoderState struct {
	LastPhaseA     bool
	LastDirection  Direction
	PendingSteps   int
	StepsPerDetent int
}

// QuadratureDecoder turns phase edges into whole-detent rotations.
//
// OnEdge is intended to be called only from the GPIO watcher goroutine (single-owner).
type QuadratureDecoder struct {
	lines    PhaseReader
	state    EncoderState
	onRotate func(Direction)
	logger   *slog.Logger
}

// NewQuadratureDecoder samples the lines once to seed LastPhaseA.
func NewQuadratureDecoder(lines PhaseReader, stepsPerDetent int, onRotate func(Direction), logger *slog.Logger) *QuadratureDecoder {
	if stepsPerDetent <= 0 {
		stepsPerDetent = defaultStepsPerDetent
	}
	q := &QuadratureDecoder{
		lines:    lines,
		state:    EncoderState{StepsPerDetent: stepsPerDetent},
		onRotate: onRotate,
		logger:   logger,
	}
	if a, _, err := lines.ReadPhases(); err == nil {
		q.state.LastPhaseA = a
	} else {
		logger.Warn("encoder initial phase read failed", "error", err)
	}
	return q
}

// State returns a copy of the decoder state.
func (q *QuadratureDecoder) State() EncoderState {
	return q.state
}

// OnEdge processes one phase-A edge notification.
func (q *QuadratureDecoder) OnEdge() {
	a, b, err := q.lines.ReadPhases()
	if err != nil {
		// A failed sample is dropped; the next edge resynchronises.
		q.logger.Debug("encoder phase read failed", "error", err)
		return
	}
	if a == q.state.LastPhaseA {
		return
	}
	q.state.LastPhaseA = a

	dir := CounterClockwise
	if b != a {
		dir = Clockwise
	}
	if dir == q.state.LastDirection {
		q.state.PendingSteps++
	} else {
		q.state.PendingSteps = 1
	}
	q.state.LastDirection = dir

	if q.state.PendingSteps >= q.state.StepsPerDetent {
		q.state.PendingSteps = 0
		q.emit(dir)
	}
}

func (q *QuadratureDecoder) emit(d Direction) {
	if q.onRotate != nil {
		q.onRotate(d)
	}
}

// ============================================================================
// Push button
// ============================================================================

// pressTracker classifies the push button's level changes into short and long
// presses. The line is active-low (pressed == true on the falling edge).
//
// With a zero long-press threshold every press is reported as short on the
// falling edge, without waiting for release.
type pressTracker struct {
	longPress time.Duration
	now       func() time.Time
	onPress   func(long bool)

	down      bool
	pressedAt time.Time
}

func newPressTracker(longPress time.Duration, now func() time.Time, onPress func(long bool)) *pressTracker {
	if now == nil {
		now = time.Now
	}
	return &pressTracker{longPress: longPress, now: now, onPress: onPress}
}

// OnLevel records the current button level.
func (p *pressTracker) OnLevel(pressed bool) {
	if pressed == p.down {
		return
	}
	p.down = pressed

	if p.longPress <= 0 {
		if pressed {
			p.onPress(false)
		}
		return
	}

	if pressed {
		p.pressedAt = p.now()
		return
	}
	held := p.now().Sub(p.pressedAt)
	p.onPress(held >= p.longPress)
}
