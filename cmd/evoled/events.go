package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events
// ============================================================================
// Events are the only input to the reducer. They come from the knob, the
// player backend, the control endpoint, IPC, timers and panel completions.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// SessionStarted is dispatched once when the daemon loop starts.
type SessionStarted struct{}

func (SessionStarted) eventMarker() {}

// ----------------------------------------------------------------------------
// Knob
// ----------------------------------------------------------------------------

// KnobRotated is one decoded detent.
type KnobRotated struct {
	Direction Direction `json:"direction"`
}

func (KnobRotated) eventMarker() {}

// KnobPressed is one button press, classified as short or long.
type KnobPressed struct {
	Long bool `json:"long"`
}

func (KnobPressed) eventMarker() {}

// BrowseRequested opens the playlist browser (same as a long press in volume mode).
type BrowseRequested struct{}

func (BrowseRequested) eventMarker() {}

// ----------------------------------------------------------------------------
// Player telemetry
// ----------------------------------------------------------------------------

// TelemetryReceived carries a raw backend update. The daemon loop normalizes
// it into a SnapshotUpdated before reduction.
type TelemetryReceived struct {
	Update TelemetryUpdate
}

func (TelemetryReceived) eventMarker() {}

// SnapshotUpdated carries a normalized snapshot and its wake decision.
type SnapshotUpdated struct {
	Snapshot     PlayerSnapshot
	Wake         bool
	TrackChanged bool

	// Supplemental snapshots only refresh what is drawn.
	Supplemental bool
}

func (SnapshotUpdated) eventMarker() {}

// ----------------------------------------------------------------------------
// Control surface
// ----------------------------------------------------------------------------

// ExternalWake forces the display awake.
type ExternalWake struct {
	Source string `json:"source,omitempty"`
}

func (ExternalWake) eventMarker() {}

// ContrastRequested sets panel contrast (1..254).
type ContrastRequested struct {
	Value int `json:"value"`
}

func (ContrastRequested) eventMarker() {}

// IdleDelaysRequested changes the idle timeline. Nil fields are left unchanged.
type IdleDelaysRequested struct {
	ScreensaverAfter *time.Duration
	DeepSleepAfter   *time.Duration
}

func (IdleDelaysRequested) eventMarker() {}

// ExitRequested stops the daemon.
type ExitRequested struct{}

func (ExitRequested) eventMarker() {}

// ----------------------------------------------------------------------------
// Timers and panel
// ----------------------------------------------------------------------------

// IdleTimerFired is the idle timer's expiry. Gen ties it to the arming that
// produced it; stale generations are ignored.
type IdleTimerFired struct {
	Gen uint64
}

func (IdleTimerFired) eventMarker() {}

// RenderTick is one tick of the active mode's render timer.
type RenderTick struct {
	Mode DisplayMode
	Gen  uint64
}

func (RenderTick) eventMarker() {}

// PanelReady reports that the panel finished the frame or contrast command
// it was busy with.
type PanelReady struct{}

func (PanelReady) eventMarker() {}

// ----------------------------------------------------------------------------
// Playlist fetch
// ----------------------------------------------------------------------------

// ListFetched is the result of a playlist fetch.
type ListFetched struct {
	Items []ListItem
	Err   error
}

func (ListFetched) eventMarker() {}

// RequestStateSnapshot asks the daemon loop for a coherent snapshot.
// The reply is delivered by the effects layer.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON envelope (IPC)
// ============================================================================

// EventEnvelope is the wire format for IPC events: {"type": ..., "data": {...}}.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// knobRotateData is the IPC payload of "knob_rotate".
type knobRotateData struct {
	Direction string `json:"direction"` // "cw" or "ccw"
}

// UnmarshalEvent parses an IPC envelope into an Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "knob_rotate":
		var d knobRotateData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal knob_rotate: %w", err)
		}
		switch d.Direction {
		case "cw":
			return KnobRotated{Direction: Clockwise}, nil
		case "ccw":
			return KnobRotated{Direction: CounterClockwise}, nil
		default:
			return nil, fmt.Errorf("knob_rotate: invalid direction %q", d.Direction)
		}

	case "knob_press":
		var e KnobPressed
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &e); err != nil {
				return nil, fmt.Errorf("unmarshal knob_press: %w", err)
			}
		}
		return e, nil

	case "wake":
		return ExternalWake{Source: "ipc"}, nil

	case "browse":
		return BrowseRequested{}, nil

	case "contrast":
		var e ContrastRequested
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal contrast: %w", err)
		}
		if e.Value < minContrast || e.Value > maxContrast {
			return nil, fmt.Errorf("contrast: value %d out of range %d..%d", e.Value, minContrast, maxContrast)
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes the IPC-capable events into an envelope.
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case KnobRotated:
		env.Type = "knob_rotate"
		if e.Direction == DirectionNone {
			return nil, fmt.Errorf("marshal KnobRotated: no direction")
		}
		data, err := json.Marshal(knobRotateData{Direction: e.Direction.String()})
		if err != nil {
			return nil, fmt.Errorf("marshal KnobRotated: %w", err)
		}
		env.Data = data

	case KnobPressed:
		env.Type = "knob_press"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal KnobPressed: %w", err)
		}
		env.Data = data

	case ExternalWake:
		env.Type = "wake"

	case BrowseRequested:
		env.Type = "browse"

	case ContrastRequested:
		env.Type = "contrast"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ContrastRequested: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
