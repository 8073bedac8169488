package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecodeSocketIOFrame(t *testing.T) {
	f, err := decodeSocketIOFrame([]byte(`42["pushState",{"title":"So What"}]`))
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if f.Kind != engineIOMessage || f.Sub != socketIOEvent || f.Event != "pushState" {
		t.Fatalf("frame = %+v", f)
	}
	if string(f.Data) != `{"title":"So What"}` {
		t.Fatalf("data = %s", f.Data)
	}

	f, err = decodeSocketIOFrame([]byte(`0{"sid":"abc","pingInterval":25000}`))
	if err != nil || f.Kind != engineIOOpen {
		t.Fatalf("decode open = %+v, %v", f, err)
	}

	f, err = decodeSocketIOFrame([]byte(`40`))
	if err != nil || f.Kind != engineIOMessage || f.Sub != socketIOConnect {
		t.Fatalf("decode connect = %+v, %v", f, err)
	}

	// Ack ids precede the payload.
	f, err = decodeSocketIOFrame([]byte(`4217["pushQueue",[]]`))
	if err != nil || f.Event != "pushQueue" {
		t.Fatalf("decode with ack id = %+v, %v", f, err)
	}

	for _, bad := range []string{``, `9`, `42not-json`, `42[]`, `42[7]`} {
		if _, err := decodeSocketIOFrame([]byte(bad)); !errors.Is(err, errSocketIOFrame) {
			t.Fatalf("%q: err = %v, want errSocketIOFrame", bad, err)
		}
	}
}

func TestEncodeSocketIOEvent(t *testing.T) {
	b, err := encodeSocketIOEvent("getState", nil)
	if err != nil || string(b) != `42["getState"]` {
		t.Fatalf("getState = %s, %v", b, err)
	}
	b, err = encodeSocketIOEvent("volume", 40)
	if err != nil || string(b) != `42["volume",40]` {
		t.Fatalf("volume = %s, %v", b, err)
	}
}

func TestVolumioState_Update(t *testing.T) {
	var st volumioState
	payload := `{"status":"play","title":"So What","artist":"Miles Davis","volume":"40","mute":false,
		"seek":65000,"duration":125,"samplerate":"44.1 kHz","bitdepth":"16 bit","trackType":"flac",
		"repeat":true,"repeatSingle":"false"}`
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	at := time.Unix(1700000000, 0)
	u := st.update(at)

	if u.Title == nil || *u.Title != "So What" || u.Artist == nil || *u.Artist != "Miles Davis" {
		t.Fatalf("title/artist = %v/%v", u.Title, u.Artist)
	}
	if u.Album != nil {
		t.Fatalf("absent album should stay nil, got %q", *u.Album)
	}
	if u.Volume == nil || *u.Volume != 40 {
		t.Fatalf("volume = %v", u.Volume)
	}
	if u.ElapsedSeconds == nil || *u.ElapsedSeconds != 65 {
		t.Fatalf("seek ms should become 65 s, got %v", u.ElapsedSeconds)
	}
	if u.Status != StatusPlaying {
		t.Fatalf("status = %q", u.Status)
	}
	if u.Codec == nil || *u.Codec != "flac" {
		t.Fatalf("codec = %v", u.Codec)
	}
	if u.Repeat == nil || !*u.Repeat || u.RepeatSingle == nil || *u.RepeatSingle {
		t.Fatalf("repeat = %v/%v", u.Repeat, u.RepeatSingle)
	}
	if !u.At.Equal(at) || u.Source != "volumio" {
		t.Fatalf("at/source = %v/%q", u.At, u.Source)
	}
}

func TestVolumioSocketURL(t *testing.T) {
	got, err := volumioSocketURL("http://localhost:3000")
	if err != nil {
		t.Fatalf("volumioSocketURL: %v", err)
	}
	if want := "ws://localhost:3000/socket.io/?EIO=3&transport=websocket"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if _, err := volumioSocketURL("ftp://localhost"); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
	if _, err := volumioSocketURL("http://"); err == nil {
		t.Fatalf("expected error for missing host")
	}
}

// fakeVolumio is a scripted socket.io peer.
func fakeVolumio(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/socket.io/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		send := func(s string) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
				t.Errorf("write %q: %v", s, err)
			}
		}
		expect := func(want string) bool {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				t.Errorf("read (want %q): %v", want, err)
				return false
			}
			if string(msg) != want {
				t.Errorf("client sent %q, want %q", msg, want)
				return false
			}
			return true
		}

		send(`0{"sid":"test","pingInterval":25000,"pingTimeout":5000}`)
		send(`40`)
		if !expect(`42["getState"]`) {
			return
		}
		// The first push is stale and must be re-requested.
		send(`42["pushState",{"title":"stale"}]`)
		if !expect(`42["getState"]`) {
			return
		}
		send(`42["pushState",{"status":"pause","title":"So What","volume":40,"seek":65000,"duration":125}]`)
		send(`42["pushQueue",[{"samplerate":"96 kHz","bitdepth":"24 bit","trackType":"flac"}]]`)

		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(mux)
}

func TestVolumioBackend_Session(t *testing.T) {
	srv := fakeVolumio(t)
	defer srv.Close()

	b, err := NewVolumioBackend(srv.URL, time.Hour, slog.Default())
	if err != nil {
		t.Fatalf("NewVolumioBackend: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan TelemetryUpdate, 8)
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, func(u TelemetryUpdate) { updates <- u })
	}()

	next := func() TelemetryUpdate {
		t.Helper()
		select {
		case u := <-updates:
			return u
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for telemetry")
			return TelemetryUpdate{}
		}
	}

	u := next()
	if u.Supplemental || u.Title == nil || *u.Title != "So What" {
		t.Fatalf("first update = %+v, want the fresh state", u)
	}
	if u.Status != StatusPaused || u.ElapsedSeconds == nil || *u.ElapsedSeconds != 65 {
		t.Fatalf("state = status %q elapsed %v", u.Status, u.ElapsedSeconds)
	}

	u = next()
	if !u.Supplemental || u.SampleRate == nil || *u.SampleRate != "96 kHz" || u.Codec == nil || *u.Codec != "flac" {
		t.Fatalf("second update = %+v, want supplemental format", u)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Subscribe did not return after cancel")
	}
}
