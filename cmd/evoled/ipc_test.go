package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEventEnvelope_KnobAndControlEvents(t *testing.T) {
	events := []Event{
		KnobRotated{Direction: Clockwise},
		KnobRotated{Direction: CounterClockwise},
		KnobPressed{Long: true},
		ExternalWake{},
		BrowseRequested{},
		ContrastRequested{Value: 17},
	}
	for _, ev := range events {
		data, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("MarshalEvent(%#v): %v", ev, err)
		}
		got, err := UnmarshalEvent(data)
		if err != nil {
			t.Fatalf("UnmarshalEvent(%s): %v", data, err)
		}
		if _, isWake := ev.(ExternalWake); isWake {
			if w, ok := got.(ExternalWake); !ok || w.Source != "ipc" {
				t.Fatalf("wake decoded as %#v", got)
			}
			continue
		}
		if got != ev {
			t.Fatalf("round trip of %s = %#v, want %#v", data, got, ev)
		}
	}
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	cases := []string{
		`not json`,
		`{"type":"volume_up"}`,
		`{"type":"knob_rotate","data":{"direction":"up"}}`,
		`{"type":"contrast","data":{"value":0}}`,
	}
	for _, in := range cases {
		if _, err := UnmarshalEvent([]byte(in)); err == nil {
			t.Fatalf("%s: expected error", in)
		}
	}

	// A bare knob_press is a short press.
	ev, err := UnmarshalEvent([]byte(`{"type":"knob_press"}`))
	if err != nil || ev != (KnobPressed{}) {
		t.Fatalf("bare knob_press = %#v, %v", ev, err)
	}
}

func TestIPCServer_DeliversEvents(t *testing.T) {
	// Unix socket paths are length limited; keep it short.
	dir, err := os.MkdirTemp("", "evoled")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, socket, events, slog.Default()) }()

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, "IPC socket not created")

	if err := SendIPCEvent(socket, KnobRotated{Direction: CounterClockwise}); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}
	select {
	case ev := <-events:
		if ev != (KnobRotated{Direction: CounterClockwise}) {
			t.Fatalf("got %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}

	// Events the IPC envelope cannot carry are refused client side.
	if err := SendIPCEvent(socket, PanelReady{}); err == nil || !strings.Contains(err.Error(), "marshal") {
		t.Fatalf("err = %v, want marshal error", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runIPCServer: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("IPC server did not stop")
	}
}

func TestDeliverIPCLine_QueueFullAndBadLine(t *testing.T) {
	events := make(chan Event, 1)

	if r := deliverIPCLine([]byte(`{"type":"browse"}`), events); r.Status != "ok" {
		t.Fatalf("first delivery = %+v", r)
	}
	if r := deliverIPCLine([]byte(`{"type":"browse"}`), events); r.Status != "error" || r.Error != "event queue full" {
		t.Fatalf("full queue = %+v", r)
	}
	if r := deliverIPCLine([]byte(`{`), events); r.Status != "error" || !strings.HasPrefix(r.Error, "parse event") {
		t.Fatalf("bad line = %+v", r)
	}
}
