package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the daemon's state websocket frames.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type modeChanged struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type snapshot struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Volume int    `json:"volume"`
	Muted  bool   `json:"muted"`
	Status string `json:"status"`
	Seek   string `json:"seek"`
	Footer string `json:"footer"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:4153/ws", "evoled state websocket URL")
		raw   = flag.Bool("raw", false, "Print every frame as received")
		seek  = flag.Bool("seek", false, "Also print seek position changes")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	// The daemon pings every 20s; answer pongs keep the read deadline fresh.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	p := &printer{seek: *seek}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			p.handle(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printer prints only what changed between snapshots.
type printer struct {
	seek bool
	last *snapshot
}

func (p *printer) handle(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	switch env.Type {
	case "state_init":
		var pretty map[string]any
		if err := json.Unmarshal(env.Data, &pretty); err != nil {
			fmt.Printf("[INIT] %s\n", env.Data)
			return
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Printf("[INIT]\n%s\n\n", out)

	case "mode_changed":
		var m modeChanged
		if err := json.Unmarshal(env.Data, &m); err != nil {
			fmt.Printf("[MODE] %s\n", env.Data)
			return
		}
		fmt.Printf("[MODE] %s -> %s\n", m.From, m.To)

	case "snapshot":
		var s snapshot
		if err := json.Unmarshal(env.Data, &s); err != nil {
			fmt.Printf("[SNAPSHOT] %s\n", env.Data)
			return
		}
		p.printChanges(s)

	default:
		fmt.Printf("[%s] %s\n", env.Type, env.Data)
	}
}

func (p *printer) printChanges(s snapshot) {
	prev := p.last
	p.last = &s

	if prev == nil || prev.Title != s.Title || prev.Artist != s.Artist {
		fmt.Printf("[TRACK] %s - %s\n", s.Artist, s.Title)
	}
	if prev == nil || prev.Status != s.Status {
		fmt.Printf("[STATUS] %s\n", s.Status)
	}
	if prev == nil || prev.Volume != s.Volume || prev.Muted != s.Muted {
		if s.Muted {
			fmt.Printf("[VOLUME] %d (muted)\n", s.Volume)
		} else {
			fmt.Printf("[VOLUME] %d\n", s.Volume)
		}
	}
	if s.Footer != "" && (prev == nil || prev.Footer != s.Footer) {
		fmt.Printf("[FORMAT] %s\n", s.Footer)
	}
	if p.seek && (prev == nil || prev.Seek != s.Seek) {
		fmt.Printf("[SEEK] %s\n", s.Seek)
	}
}
