package main

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Media State Normalizer
// ============================================================================
// Backends report player telemetry in their own shapes. Adapters translate a
// payload into a TelemetryUpdate (absent fields stay nil), and the Normalizer
// merges it into the last snapshot, derives the seek string/ratio and footer,
// and decides whether the update should wake the display.
// ============================================================================

// PlaybackStatus is the transport state reported by the player.
type PlaybackStatus string

const (
	StatusUnknown PlaybackStatus = ""
	StatusPlaying PlaybackStatus = "play"
	StatusPaused  PlaybackStatus = "pause"
	StatusStopped PlaybackStatus = "stop"
)

// RepeatMode mirrors the player's repeat setting.
type RepeatMode string

const (
	RepeatOff    RepeatMode = "off"
	RepeatAll    RepeatMode = "all"
	RepeatSingle RepeatMode = "single"
)

// PlayerSnapshot is the normalized, immutable view of the player the renderer
// and the session controller work from.
type PlayerSnapshot struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`

	Volume      int  `json:"volume"`
	VolumeKnown bool `json:"volume_known"`
	Muted       bool `json:"muted"`

	Status PlaybackStatus `json:"status"`
	Repeat RepeatMode     `json:"repeat"`

	ElapsedSeconds  float64 `json:"elapsed_s"`
	DurationSeconds float64 `json:"duration_s"`
	SeekString      string  `json:"seek"`
	Ratio           float64 `json:"ratio"`

	SampleRate string `json:"samplerate,omitempty"`
	BitDepth   string `json:"bitdepth,omitempty"`
	BitRate    string `json:"bitrate,omitempty"`
	FormatText string `json:"format,omitempty"`
	CodecLabel string `json:"codec,omitempty"`
	Footer     string `json:"footer"`

	At time.Time `json:"at"`
}

// TelemetryUpdate is one backend payload. Nil fields were absent and are
// treated as unknown, never as zero.
//
// Supplemental updates only carry stream format details fetched to fill an
// empty footer; they never wake the display.
type TelemetryUpdate struct {
	Source       string
	Supplemental bool

	Title  *string
	Artist *string
	Album  *string

	Volume *int
	Muted  *bool

	Status       PlaybackStatus
	Repeat       *bool
	RepeatSingle *bool

	ElapsedSeconds  *float64
	DurationSeconds *float64

	SampleRate *string
	BitDepth   *string
	BitRate    *string
	Codec      *string

	// FormatText is a preformatted stream description shown verbatim.
	FormatText *string

	At time.Time
}

// NormalizeResult is the outcome of merging one update.
type NormalizeResult struct {
	Snapshot     PlayerSnapshot
	Changed      bool
	Wake         bool
	TrackChanged bool
	NeedFooter   bool
	Supplemental bool
}

// Normalizer keeps the last-known snapshot.
//
// This is intended to be called only by the daemon goroutine (single-owner).
type Normalizer struct {
	last       PlayerSnapshot
	hasLast    bool
	rawElapsed *float64
}

// Last returns the most recent snapshot and whether any update has been seen.
func (n *Normalizer) Last() (PlayerSnapshot, bool) {
	return n.last, n.hasLast
}

// Apply merges u into the last snapshot.
func (n *Normalizer) Apply(u TelemetryUpdate) NormalizeResult {
	if u.Supplemental {
		return n.applySupplemental(u)
	}

	prev := n.last
	next := prev
	if u.At.IsZero() {
		u.At = time.Now()
	}
	next.At = u.At

	setString(&next.Title, u.Title)
	setString(&next.Artist, u.Artist)
	setString(&next.Album, u.Album)

	if u.Volume != nil {
		next.Volume = clampInt(*u.Volume, 0, 100)
		next.VolumeKnown = true
	}
	if u.Muted != nil {
		next.Muted = *u.Muted
	}
	if u.Status != StatusUnknown {
		next.Status = u.Status
	}
	if u.Repeat != nil || u.RepeatSingle != nil {
		next.Repeat = repeatModeOf(u.Repeat, u.RepeatSingle, prev.Repeat)
	}
	if u.ElapsedSeconds != nil {
		next.ElapsedSeconds = *u.ElapsedSeconds
	}
	if u.DurationSeconds != nil {
		next.DurationSeconds = *u.DurationSeconds
	}

	// Stream format is per payload: a payload without it leaves the footer
	// empty until a supplemental fetch fills it.
	next.SampleRate = derefTrim(u.SampleRate)
	next.BitDepth = derefTrim(u.BitDepth)
	next.BitRate = derefTrim(u.BitRate)
	next.FormatText = derefTrim(u.FormatText)
	next.CodecLabel = derefTrim(u.Codec)
	next.Footer = composeFooter(next)

	next.SeekString, next.Ratio = formatSeek(next.ElapsedSeconds, next.DurationSeconds)

	first := !n.hasLast
	trackChanged := first ||
		next.Title != prev.Title ||
		next.Artist != prev.Artist ||
		next.Album != prev.Album
	volumeChanged := next.VolumeKnown != prev.VolumeKnown || next.Volume != prev.Volume
	seekChanged := u.ElapsedSeconds != nil && (n.rawElapsed == nil || *n.rawElapsed != *u.ElapsedSeconds)
	playing := next.Status == StatusPlaying

	wake := trackChanged || volumeChanged || playing || seekChanged

	if u.ElapsedSeconds != nil {
		v := *u.ElapsedSeconds
		n.rawElapsed = &v
	}
	n.last = next
	n.hasLast = true

	return NormalizeResult{
		Snapshot:     next,
		Changed:      true,
		Wake:         wake,
		TrackChanged: trackChanged,
		NeedFooter:   next.Footer == "",
	}
}

func (n *Normalizer) applySupplemental(u TelemetryUpdate) NormalizeResult {
	if !n.hasLast || n.last.Footer != "" {
		return NormalizeResult{Snapshot: n.last, Supplemental: true}
	}

	next := n.last
	next.SampleRate = derefTrim(u.SampleRate)
	next.BitDepth = derefTrim(u.BitDepth)
	next.BitRate = derefTrim(u.BitRate)
	if u.Codec != nil {
		next.CodecLabel = derefTrim(u.Codec)
	}
	if u.FormatText != nil {
		next.FormatText = derefTrim(u.FormatText)
	}
	next.Footer = composeFooter(next)
	if next.Footer == "" {
		return NormalizeResult{Snapshot: n.last, Supplemental: true}
	}

	n.last = next
	return NormalizeResult{Snapshot: next, Changed: true, Supplemental: true}
}

// composeFooter builds the bottom status line from the stream format.
// FLAC streams with a known depth and rate get a "FLAC 24/96" style prefix.
func composeFooter(s PlayerSnapshot) string {
	if s.FormatText != "" {
		return s.FormatText
	}
	var parts []string
	if strings.Contains(strings.ToLower(s.CodecLabel), "flac") && s.BitDepth != "" && s.SampleRate != "" {
		parts = append(parts, fmt.Sprintf("FLAC %s/%s", compact(s.BitDepth), compact(s.SampleRate)))
	}
	for _, f := range []string{s.SampleRate, s.BitDepth, s.BitRate} {
		if c := compact(f); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// formatSeek returns "m:ss / m:ss" and elapsed/duration. Unknown or zero
// duration yields an empty string and a zero ratio.
func formatSeek(elapsed, duration float64) (string, float64) {
	if duration <= 0 {
		return "", 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	ratio := elapsed / duration
	if ratio > 1 {
		ratio = 1
	}
	return formatClock(elapsed) + " / " + formatClock(duration), ratio
}

func formatClock(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func repeatModeOf(repeat, single *bool, prev RepeatMode) RepeatMode {
	on := prev == RepeatAll || prev == RepeatSingle
	if repeat != nil {
		on = *repeat
	}
	one := prev == RepeatSingle
	if single != nil {
		one = *single
	}
	switch {
	case on && one:
		return RepeatSingle
	case on:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// compact removes all whitespace ("44.1 kHz" -> "44.1kHz").
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func derefTrim(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
