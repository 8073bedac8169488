package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket
// ============================================================================
//
// Observers connect to /ws on the control port and receive JSON text frames
// shaped {type, ts, data}:
//
//	state_init    once per connection, the daemon's StateSnapshot
//	mode_changed  every display mode transition
//	snapshot      merged player snapshots, coalesced to one per window
//
// The daemon loop owns all state. The initial frame is requested through the
// event queue and everything after it comes from reducer broadcasts. A client
// whose send queue fills up is dropped rather than allowed to stall the rest.
//
// ============================================================================

type wsStateData = StateSnapshot

type wsModeChangedData struct {
	From DisplayMode `json:"from"`
	To   DisplayMode `json:"to"`
}

type wsSnapshotData = PlayerSnapshot

type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means now
}

type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func (ev wsOutboundEvent) frame() ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	defaultClientSendBuf = 32
	defaultHubQueueBuf   = 128

	// stateInitTimeout bounds the snapshot round trip through the daemon loop.
	stateInitTimeout = time.Second
)

// wsSnapshotCoalesceWindow caps snapshot frames per client. Playing tracks
// report once a second, but a fast knob turn produces volume echoes much
// faster than that.
const wsSnapshotCoalesceWindow = 100 * time.Millisecond

// ============================================================================
// Hub
// ============================================================================

// Hub fans serialized frames out to connected observers.
type Hub struct {
	logger *slog.Logger

	broadcast chan []byte
	register  chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	SendBuf      int // per-client queue; 0 means default
	BroadcastBuf int // hub inbound queue; 0 means default
}

func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = defaultClientSendBuf
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = defaultHubQueueBuf
	}
	return &Hub{
		logger:    logger,
		broadcast: make(chan []byte, cfg.BroadcastBuf),
		register:  make(chan *Client, 64),
		clients:   make(map[*Client]struct{}),
		sendBuf:   cfg.SendBuf,
	}
}

// Run owns client membership until ctx ends, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			all := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				all = append(all, c)
			}
			h.mu.Unlock()
			for _, c := range all {
				h.drop(c, "shutdown")
			}
			return

		case c := <-h.register:
			h.add(c)

		case msg := <-h.broadcast:
			for _, c := range h.fanOut(msg) {
				h.drop(c, "slow_client")
			}
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("state observer connected", "remote_addr", c.remoteAddr, "clients", n)
}

// sendTo queues msg for a single member. It reports false when c is no
// longer registered or its queue is full.
func (h *Hub) sendTo(c *Client, msg []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// fanOut queues msg for every client and returns those whose queue was full.
func (h *Hub) fanOut(msg []byte) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	var lagging []*Client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			lagging = append(lagging, c)
		}
	}
	return lagging
}

func (h *Hub) drop(c *Client, reason string) {
	h.mu.Lock()
	_, member := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.shut()
	if member {
		h.logger.Info("state observer disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// BroadcastBytes never blocks; a full hub queue drops the frame.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("state hub queue full, dropping frame", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger

	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	n := defaultClientSendBuf
	if hub != nil && hub.sendBuf > 0 {
		n = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, n),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// shut closes the connection and the send queue. Safe to call repeatedly.
func (c *Client) shut() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
	})
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Debug("state observer closed", "pump", pump, "remote_addr", c.remoteAddr, "code", ce.Code, "reason", ce.Text)
		return
	}
	c.logger.Debug("state observer io error", "pump", pump, "remote_addr", c.remoteAddr, "error", err)
}

func (c *Client) write(kind int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, payload)
}

// writePump drains the send queue and keeps the peer alive with pings.
// A closed queue means the hub dropped us.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				return
			}
		}
	}
}

// readPump discards inbound frames; its only job is noticing the peer leave.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			c.hub.drop(c, "gone")
			return
		}
	}
}

// ============================================================================
// HTTP side
// ============================================================================

type Server struct {
	logger *slog.Logger
	hub    *Hub
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer builds the observer endpoint. The caller runs Hub().Run and
// RunBroadcaster alongside it.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Register(mux *http.ServeMux, pattern string) {
	if mux != nil {
		mux.HandleFunc(pattern, s.handleStateWS)
	}
}

var upgrader = websocket.Upgrader{
	// Same trust model as the player's own HTTP API: local network, any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("state observer upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.add(client)

	// The pumps outlive this handler; net/http cancels r.Context() on return.
	go client.writePump()
	go client.readPump()

	if s.events == nil {
		return
	}
	msg, err := s.stateInit(r.Context())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("state_init failed", "remote_addr", r.RemoteAddr, "error", err)
		}
		return
	}
	if !s.hub.sendTo(client, msg) {
		s.hub.drop(client, "slow_client")
	}
}

// stateInit asks the daemon loop for a snapshot and frames it.
func (s *Server) stateInit(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, stateInitTimeout)
	defer cancel()

	reply := make(chan StateSnapshot, 1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s.events <- RequestStateSnapshot{Reply: reply}:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case snap := <-reply:
		return wsOutboundEvent{Type: "state_init", Data: wsStateData(snap)}.frame()
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster turns reducer broadcasts into frames for the hub. Snapshots
// are latest-wins within wsSnapshotCoalesceWindow; the window is not extended
// by further snapshots. A mode change first flushes the pending snapshot so
// observers see both in order.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var (
		pending *wsOutboundEvent
		window  *time.Timer
		tick    <-chan time.Time
	)

	send := func(ev wsOutboundEvent) {
		msg, err := ev.frame()
		if err != nil {
			logger.Warn("state frame marshal failed", "type", ev.Type, "error", err)
			return
		}
		hub.BroadcastBytes(msg)
	}
	flush := func() {
		if pending != nil {
			send(*pending)
			pending = nil
		}
	}
	closeWindow := func() {
		if window != nil {
			window.Stop()
		}
		window, tick = nil, nil
	}
	defer closeWindow()

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case <-tick:
			// The timer fired, so nothing is left to drain.
			window, tick = nil, nil
			flush()

		case b, ok := <-src:
			if !ok {
				flush()
				logger.Info("state broadcaster stopping (source closed)")
				return
			}
			ev, known := convertBroadcast(b)
			if !known {
				continue
			}
			if ev.Type == "snapshot" {
				pending = &ev
				if window == nil {
					window = time.NewTimer(wsSnapshotCoalesceWindow)
					tick = window.C
				}
				continue
			}
			flush()
			closeWindow()
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastModeChanged:
		return wsOutboundEvent{Type: "mode_changed", Data: wsModeChangedData{From: ev.From, To: ev.To}, At: ev.At}, true
	case BroadcastSnapshot:
		return wsOutboundEvent{Type: "snapshot", Data: wsSnapshotData(ev.Snapshot), At: ev.At}, true
	default:
		return wsOutboundEvent{}, false
	}
}
