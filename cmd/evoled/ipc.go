package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// ============================================================================
// IPC socket
// ============================================================================
//
// evoled-ctl and plugin scripts drive the UI without hardware by writing one
// EventEnvelope per line to a Unix socket. Every line gets one reply line:
//
//	{"status":"ok"}
//	{"status":"error","error":"..."}
//
// Delivery is non-blocking; a full event queue is reported, not waited on.
// ============================================================================

const ipcReplyTimeout = 2 * time.Second

type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func ipcOK() IPCResponse { return IPCResponse{Status: "ok"} }

func ipcFailure(format string, args ...any) IPCResponse {
	return IPCResponse{Status: "error", Error: fmt.Sprintf(format, args...)}
}

// runIPCServer serves socketPath until ctx is canceled. A stale socket file
// from a previous run is replaced.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)
	defer ln.Close()

	// The plugin UI runs as another user.
	if err := os.Chmod(socketPath, 0o666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}
	logger.Info("IPC listening", "socket", socketPath)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		switch {
		case err == nil:
			go serveIPCConn(conn, events, logger)
		case ctx.Err() != nil || errors.Is(err, net.ErrClosed):
			logger.Debug("IPC listener closed")
			return nil
		default:
			logger.Warn("IPC accept failed", "error", err)
		}
	}
}

func serveIPCConn(conn net.Conn, events chan<- Event, logger *slog.Logger) {
	defer conn.Close()

	replies := json.NewEncoder(conn)
	lines := bufio.NewScanner(conn)
	for lines.Scan() {
		reply := deliverIPCLine(lines.Bytes(), events)
		if reply.Status != "ok" {
			logger.Debug("IPC event rejected", "line", lines.Text(), "reason", reply.Error)
		}
		if err := replies.Encode(reply); err != nil {
			logger.Debug("IPC reply failed", "error", err)
			return
		}
	}
}

func deliverIPCLine(line []byte, events chan<- Event) IPCResponse {
	ev, err := UnmarshalEvent(line)
	if err != nil {
		return ipcFailure("parse event: %v", err)
	}
	select {
	case events <- ev:
		return ipcOK()
	default:
		return ipcFailure("event queue full")
	}
}

// SendIPCEvent delivers one event to a running daemon and waits for its reply.
func SendIPCEvent(socketPath string, ev Event) error {
	payload, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := net.DialTimeout("unix", socketPath, ipcReplyTimeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcReplyTimeout))

	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("daemon refused event: %s", resp.Error)
	}
	return nil
}
