package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ============================================================================
// moOde backend (HTTP poll)
// ============================================================================
// moOde exposes the MPD status as JSON over HTTP. The adapter polls it on a
// fixed interval; a footer request triggers one extra poll whose stream
// format is delivered as a supplemental update.
// ============================================================================

// moodeState is the subset of the moOde status payload the display uses.
type moodeState struct {
	State   string      `json:"state"`
	Title   looseString `json:"title"`
	Artist  looseString `json:"artist"`
	Album   looseString `json:"album"`
	Volume  looseFloat  `json:"volume"`
	Mute    looseBool   `json:"mute"`
	Elapsed looseFloat  `json:"elapsed"`
	Time    looseFloat  `json:"time"`
	Audio   looseString `json:"audio"`
	BitRate looseString `json:"bitrate"`
	Encoded looseString `json:"encoded"`
	Repeat  looseBool   `json:"repeat"`
	Single  looseBool   `json:"single"`
}

// formatText is the stream description shown verbatim: "<audio> <bitrate>".
func (s moodeState) formatText() *string {
	var parts []string
	for _, f := range []looseString{s.Audio, s.BitRate} {
		if v := strings.TrimSpace(f.v); f.ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	text := strings.Join(parts, " ")
	return &text
}

// codecLabel is the first two words of "encoded", e.g. "FLAC 24/96".
func (s moodeState) codecLabel() *string {
	if !s.Encoded.ok {
		return nil
	}
	words := strings.Fields(s.Encoded.v)
	if len(words) > 2 {
		words = words[:2]
	}
	label := strings.Join(words, " ")
	return &label
}

func (s moodeState) update(at time.Time) TelemetryUpdate {
	return TelemetryUpdate{
		Source:          string(PlatformMoode),
		Title:           s.Title.ptr(),
		Artist:          s.Artist.ptr(),
		Album:           s.Album.ptr(),
		Volume:          s.Volume.intPtr(),
		Muted:           s.Mute.ptr(),
		Status:          parseStatus(s.State),
		Repeat:          s.Repeat.ptr(),
		RepeatSingle:    s.Single.ptr(),
		ElapsedSeconds:  s.Elapsed.ptr(),
		DurationSeconds: s.Time.ptr(),
		Codec:           s.codecLabel(),
		FormatText:      s.formatText(),
		At:              at,
	}
}

// MoodeBackend polls moOde's status endpoint.
type MoodeBackend struct {
	url          string
	pollInterval time.Duration
	client       *http.Client
	logger       *slog.Logger
	now          func() time.Time

	footer chan struct{}
}

// NewMoodeBackend returns a poller for statusURL.
func NewMoodeBackend(statusURL string, pollInterval time.Duration, logger *slog.Logger) *MoodeBackend {
	if pollInterval <= 0 {
		pollInterval = defaultPollIntervalMS * time.Millisecond
	}
	return &MoodeBackend{
		url:          statusURL,
		pollInterval: pollInterval,
		client:       &http.Client{Timeout: 5 * time.Second},
		logger:       logger,
		now:          time.Now,
		footer:       make(chan struct{}, 1),
	}
}

// Subscribe polls until ctx is canceled. Poll failures are logged and the
// last good snapshot stays on screen.
func (m *MoodeBackend) Subscribe(ctx context.Context, sink func(TelemetryUpdate)) error {
	m.logger.Info("polling moode", "url", m.url, "interval", m.pollInterval)

	t := time.NewTicker(m.pollInterval)
	defer t.Stop()

	m.pollInto(ctx, sink, false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.pollInto(ctx, sink, false)
		case <-m.footer:
			m.pollInto(ctx, sink, true)
		}
	}
}

func (m *MoodeBackend) pollInto(ctx context.Context, sink func(TelemetryUpdate), supplemental bool) {
	st, err := m.poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("moode poll failed", "error", err)
		}
		return
	}
	u := st.update(m.now())
	if supplemental {
		u = TelemetryUpdate{
			Source:       u.Source,
			Supplemental: true,
			Codec:        u.Codec,
			FormatText:   u.FormatText,
			At:           u.At,
		}
	}
	sink(u)
}

// RequestFooter schedules one extra poll; requests made while one is pending coalesce.
func (m *MoodeBackend) RequestFooter() {
	select {
	case m.footer <- struct{}{}:
	default:
	}
}

func (m *MoodeBackend) poll(ctx context.Context) (moodeState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return moodeState{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return moodeState{}, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return moodeState{}, fmt.Errorf("get status: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var st moodeState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return moodeState{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}
