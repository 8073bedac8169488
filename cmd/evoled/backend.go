package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Backend is a player telemetry source. Subscribe blocks, delivering every
// payload to sink until ctx is canceled; adapters own their reconnect and
// polling state.
type Backend interface {
	Subscribe(ctx context.Context, sink func(TelemetryUpdate)) error
	FooterRequester
}

// FooterRequester asks the backend for stream format details without blocking.
// The answer arrives as a supplemental TelemetryUpdate.
type FooterRequester interface {
	RequestFooter()
}

func parseStatus(s string) PlaybackStatus {
	switch p := PlaybackStatus(strings.ToLower(strings.TrimSpace(s))); p {
	case StatusPlaying, StatusPaused, StatusStopped:
		return p
	default:
		return StatusUnknown
	}
}

// ============================================================================
// Lenient JSON field types
// ============================================================================
// Player APIs are loose about types: numbers arrive as strings, flags as
// "1"/"0", and fields come and go between payloads. These types record
// whether a usable value was present so absence is never read as zero.
// ============================================================================

// looseString accepts a string, number or bool.
type looseString struct {
	v  string
	ok bool
}

func (l *looseString) UnmarshalJSON(b []byte) error {
	*l = looseString{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = looseString{v: s, ok: true}
		return nil
	}
	*l = looseString{v: string(b), ok: true}
	return nil
}

func (l looseString) ptr() *string {
	if !l.ok {
		return nil
	}
	v := l.v
	return &v
}

// looseFloat accepts a number or a numeric string.
type looseFloat struct {
	v  float64
	ok bool
}

func (l *looseFloat) UnmarshalJSON(b []byte) error {
	*l = looseFloat{}
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Not a number ("", "N/A"): treat as absent.
		return nil
	}
	*l = looseFloat{v: v, ok: true}
	return nil
}

func (l looseFloat) ptr() *float64 {
	if !l.ok {
		return nil
	}
	v := l.v
	return &v
}

func (l looseFloat) intPtr() *int {
	if !l.ok {
		return nil
	}
	v := int(l.v + 0.5)
	return &v
}

// looseBool accepts true/false, 1/0 and their string forms.
type looseBool struct {
	v  bool
	ok bool
}

func (l *looseBool) UnmarshalJSON(b []byte) error {
	*l = looseBool{}
	switch strings.ToLower(strings.Trim(strings.TrimSpace(string(b)), `"`)) {
	case "true", "1", "on":
		*l = looseBool{v: true, ok: true}
	case "false", "0", "off":
		*l = looseBool{v: false, ok: true}
	}
	return nil
}

func (l looseBool) ptr() *bool {
	if !l.ok {
		return nil
	}
	v := l.v
	return &v
}
