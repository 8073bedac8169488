package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// Volumio backend (socket.io over websocket)
// ============================================================================
// Volumio pushes player state over socket.io. The adapter speaks the
// Engine.IO v3 text framing directly on a websocket:
//
//	0{...}            open (carries pingInterval)
//	2 / 3             ping / pong
//	40                namespace connected
//	42["event",data]  event
//
// The first pushState after connecting is stale and is answered with a fresh
// getState. A periodic getState poll is skipped while a request is still
// outstanding.
// ============================================================================

const (
	engineIOOpen    = '0'
	engineIOPing    = '2'
	engineIOPong    = '3'
	engineIOMessage = '4'

	socketIOConnect = '0'
	socketIOEvent   = '2'

	defaultEngineIOPingInterval = 25 * time.Second
)

var errSocketIOFrame = errors.New("malformed socket.io frame")

// socketIOFrame is one decoded Engine.IO text frame.
type socketIOFrame struct {
	Kind  byte            // Engine.IO packet type
	Sub   byte            // socket.io packet type, for messages
	Event string          // event name, for socket.io events
	Data  json.RawMessage // first event argument or open payload
}

// decodeSocketIOFrame parses an Engine.IO v3 text frame.
func decodeSocketIOFrame(msg []byte) (socketIOFrame, error) {
	if len(msg) == 0 {
		return socketIOFrame{}, errSocketIOFrame
	}
	f := socketIOFrame{Kind: msg[0]}
	switch f.Kind {
	case engineIOOpen:
		f.Data = json.RawMessage(msg[1:])
		return f, nil
	case engineIOPing, engineIOPong:
		return f, nil
	case engineIOMessage:
	default:
		return socketIOFrame{}, fmt.Errorf("%w: packet type %q", errSocketIOFrame, f.Kind)
	}

	if len(msg) < 2 {
		return socketIOFrame{}, errSocketIOFrame
	}
	f.Sub = msg[1]
	if f.Sub != socketIOEvent {
		return f, nil
	}

	body := msg[2:]
	// Skip an optional ack id before the payload.
	for len(body) > 0 && body[0] >= '0' && body[0] <= '9' {
		body = body[1:]
	}
	var args []json.RawMessage
	if err := json.Unmarshal(body, &args); err != nil {
		return socketIOFrame{}, fmt.Errorf("%w: %v", errSocketIOFrame, err)
	}
	if len(args) == 0 {
		return socketIOFrame{}, fmt.Errorf("%w: event without name", errSocketIOFrame)
	}
	if err := json.Unmarshal(args[0], &f.Event); err != nil {
		return socketIOFrame{}, fmt.Errorf("%w: event name: %v", errSocketIOFrame, err)
	}
	if len(args) > 1 {
		f.Data = args[1]
	}
	return f, nil
}

// encodeSocketIOEvent builds a 42["event",data] frame; data may be nil.
func encodeSocketIOEvent(event string, data any) ([]byte, error) {
	args := []any{event}
	if data != nil {
		args = append(args, data)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return append([]byte{engineIOMessage, socketIOEvent}, payload...), nil
}

// volumioState is the subset of a pushState payload the display uses.
type volumioState struct {
	Status       string      `json:"status"`
	Title        looseString `json:"title"`
	Artist       looseString `json:"artist"`
	Album        looseString `json:"album"`
	Volume       looseFloat  `json:"volume"`
	Mute         looseBool   `json:"mute"`
	Seek         looseFloat  `json:"seek"`     // milliseconds
	Duration     looseFloat  `json:"duration"` // seconds
	SampleRate   looseString `json:"samplerate"`
	BitDepth     looseString `json:"bitdepth"`
	BitRate      looseString `json:"bitrate"`
	TrackType    looseString `json:"trackType"`
	Repeat       looseBool   `json:"repeat"`
	RepeatSingle looseBool   `json:"repeatSingle"`
}

func (s volumioState) update(at time.Time) TelemetryUpdate {
	u := TelemetryUpdate{
		Source:          string(PlatformVolumio),
		Title:           s.Title.ptr(),
		Artist:          s.Artist.ptr(),
		Album:           s.Album.ptr(),
		Volume:          s.Volume.intPtr(),
		Muted:           s.Mute.ptr(),
		Status:          parseStatus(s.Status),
		Repeat:          s.Repeat.ptr(),
		RepeatSingle:    s.RepeatSingle.ptr(),
		DurationSeconds: s.Duration.ptr(),
		SampleRate:      s.SampleRate.ptr(),
		BitDepth:        s.BitDepth.ptr(),
		BitRate:         s.BitRate.ptr(),
		Codec:           s.TrackType.ptr(),
		At:              at,
	}
	if s.Seek.ok {
		elapsed := s.Seek.v / 1000
		u.ElapsedSeconds = &elapsed
	}
	return u
}

// volumioQueueItem is one pushQueue entry; only the stream format is used.
type volumioQueueItem struct {
	SampleRate looseString `json:"samplerate"`
	BitDepth   looseString `json:"bitdepth"`
	BitRate    looseString `json:"bitrate"`
	TrackType  looseString `json:"trackType"`
}

// VolumioBackend subscribes to Volumio's socket.io push API.
type VolumioBackend struct {
	url          string
	pollInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu   sync.Mutex // guards conn writes
	conn *websocket.Conn

	waiting atomic.Bool
}

// NewVolumioBackend returns a backend for the Volumio instance at baseURL
// (for example http://localhost:3000).
func NewVolumioBackend(baseURL string, pollInterval time.Duration, logger *slog.Logger) (*VolumioBackend, error) {
	wsURL, err := volumioSocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollIntervalMS * time.Millisecond
	}
	return &VolumioBackend{
		url:          wsURL,
		pollInterval: pollInterval,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// volumioSocketURL maps an http(s) base URL to the Engine.IO websocket endpoint.
func volumioSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid volumio URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid volumio URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid volumio URL %q: missing host", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	u.RawQuery = "EIO=3&transport=websocket"
	return u.String(), nil
}

// Subscribe connects, streams state to sink and reconnects until ctx is canceled.
func (v *VolumioBackend) Subscribe(ctx context.Context, sink func(TelemetryUpdate)) error {
	for {
		conn, err := v.connectWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			v.logger.Error("volumio unreachable; retrying later", "error", err)
			if !sleepCtx(ctx, 5*time.Second) {
				return nil
			}
			continue
		}

		err = v.session(ctx, conn, sink)
		v.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		v.logger.Warn("volumio connection lost; reconnecting", "error", err)
	}
}

func (v *VolumioBackend) connectWithRetry(ctx context.Context) (*websocket.Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}

	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		conn, _, err := d.DialContext(ctx, v.url, nil)
		if err == nil {
			v.logger.Info("connected to volumio", "url", v.url)
			return conn, nil
		}
		lastErr = err
		v.logger.Warn("connection failed; retrying...", "error", err, "attempt", attempt+1)
		if !sleepCtx(ctx, 500*time.Millisecond) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to connect after 10 attempts: %w", lastErr)
}

// session runs one connection until it fails or ctx is canceled.
func (v *VolumioBackend) session(ctx context.Context, conn *websocket.Conn, sink func(TelemetryUpdate)) error {
	v.setConn(conn)
	v.waiting.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	pingInterval := make(chan time.Duration, 1)

	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return nil
	})

	g.Go(func() error {
		return v.readLoop(conn, sink, pingInterval)
	})

	g.Go(func() error {
		interval := defaultEngineIOPingInterval
		select {
		case interval = <-pingInterval:
		case <-gctx.Done():
			return nil
		}
		return v.every(gctx, interval, func() error {
			return v.write([]byte{engineIOPing})
		})
	})

	g.Go(func() error {
		return v.every(gctx, v.pollInterval, func() error {
			if !v.waiting.CompareAndSwap(false, true) {
				return nil
			}
			return v.emit("getState", nil)
		})
	})

	return g.Wait()
}

func (v *VolumioBackend) readLoop(conn *websocket.Conn, sink func(TelemetryUpdate), pingInterval chan<- time.Duration) error {
	first := true
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f, err := decodeSocketIOFrame(msg)
		if err != nil {
			v.logger.Debug("ignoring frame", "error", err)
			continue
		}

		switch {
		case f.Kind == engineIOOpen:
			var open struct {
				PingInterval int `json:"pingInterval"`
			}
			if json.Unmarshal(f.Data, &open) == nil && open.PingInterval > 0 {
				select {
				case pingInterval <- time.Duration(open.PingInterval) * time.Millisecond:
				default:
				}
			}

		case f.Kind == engineIOPing:
			if err := v.write([]byte{engineIOPong}); err != nil {
				return err
			}

		case f.Kind == engineIOMessage && f.Sub == socketIOConnect:
			v.waiting.Store(true)
			if err := v.emit("getState", nil); err != nil {
				return err
			}

		case f.Event == "pushState":
			if first {
				first = false
				if err := v.emit("getState", nil); err != nil {
					return err
				}
				continue
			}
			v.waiting.Store(false)

			var st volumioState
			if err := json.Unmarshal(f.Data, &st); err != nil {
				v.logger.Warn("malformed pushState; keeping last state", "error", err)
				continue
			}
			sink(st.update(v.now()))

		case f.Event == "pushQueue":
			var queue []volumioQueueItem
			if err := json.Unmarshal(f.Data, &queue); err != nil || len(queue) == 0 {
				continue
			}
			q := queue[0]
			sink(TelemetryUpdate{
				Source:       string(PlatformVolumio),
				Supplemental: true,
				SampleRate:   q.SampleRate.ptr(),
				BitDepth:     q.BitDepth.ptr(),
				BitRate:      q.BitRate.ptr(),
				Codec:        q.TrackType.ptr(),
				At:           v.now(),
			})
		}
	}
}

// RequestFooter asks for the queue; its first entry carries the stream format.
func (v *VolumioBackend) RequestFooter() {
	go func() {
		if err := v.emit("getQueue", nil); err != nil {
			v.logger.Debug("getQueue not sent", "error", err)
		}
	}()
}

func (v *VolumioBackend) emit(event string, data any) error {
	frame, err := encodeSocketIOEvent(event, data)
	if err != nil {
		return err
	}
	return v.write(frame)
}

func (v *VolumioBackend) write(frame []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conn == nil {
		return fmt.Errorf("no websocket connection")
	}
	if err := v.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (v *VolumioBackend) setConn(conn *websocket.Conn) {
	v.mu.Lock()
	v.conn = conn
	v.mu.Unlock()
}

// every calls f each interval until ctx is done or f fails.
func (v *VolumioBackend) every(ctx context.Context, interval time.Duration, f func() error) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := f(); err != nil {
				return err
			}
		}
	}
}

// sleepCtx sleeps for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
