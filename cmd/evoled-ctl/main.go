package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// evoled-ctl - Command-line IPC Client
// ============================================================================
// Sends knob and control events to a running evoled daemon so the display
// can be driven without the encoder attached.
//
// Usage:
//   evoled-ctl cw
//   evoled-ctl long-press
//   evoled-ctl contrast 128
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/evoled.sock)
// ============================================================================

// EventEnvelope is the daemon's IPC wire format.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/evoled.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var env EventEnvelope

	switch args[0] {
	case "cw", "right":
		env = envelopeWith("knob_rotate", map[string]string{"direction": "cw"})

	case "ccw", "left":
		env = envelopeWith("knob_rotate", map[string]string{"direction": "ccw"})

	case "press":
		env = envelopeWith("knob_press", map[string]bool{"long": false})

	case "long-press":
		env = envelopeWith("knob_press", map[string]bool{"long": true})

	case "wake":
		env = EventEnvelope{Type: "wake"}

	case "browse":
		env = EventEnvelope{Type: "browse"}

	case "contrast":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: contrast requires a value (1..254)\n")
			os.Exit(1)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 || v > 254 {
			fmt.Fprintf(os.Stderr, "error: invalid contrast %q (want 1..254)\n", args[1])
			os.Exit(1)
		}
		env = envelopeWith("contrast", map[string]int{"value": v})

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err := sendEnvelope(socketPath, env); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func envelopeWith(typ string, data any) EventEnvelope {
	raw, err := json.Marshal(data)
	if err != nil {
		// Only fixed map literals are passed in.
		panic(err)
	}
	return EventEnvelope{Type: typ, Data: raw}
}

func sendEnvelope(socketPath string, env EventEnvelope) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Line-delimited JSON.
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}

	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `evoled-ctl - Control the evoled display daemon via IPC

Usage:
  evoled-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/evoled.sock)

Commands:
  cw, right           Turn the knob one detent clockwise
  ccw, left           Turn the knob one detent counter-clockwise
  press               Short press
  long-press          Long press (opens the playlist browser in volume mode)
  wake                Wake the display
  browse              Open the playlist browser
  contrast <1..254>   Set panel contrast
  help, -h, --help    Show this help message

Examples:
  evoled-ctl cw
  evoled-ctl contrast 200
  evoled-ctl -socket /run/evoled.sock wake
`)
}
