package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ============================================================================
// Control server
// ============================================================================
// The plugin's settings page and scripts drive the daemon through plain GET
// requests on the control port:
//
//	/exit                   stop the daemon
//	/contrast=<1..254>      set panel contrast
//	/sleep_after=<s>        screensaver delay
//	/deep_sleep_after=<s>   deep-sleep delay
//
// Every request wakes the display. The body is "1" on success and "0" when
// the command or its value was rejected. /metrics and /ws share the port.
// ============================================================================

// controlHandler turns control requests into events.
type controlHandler struct {
	post   func(Event)
	logger *slog.Logger
}

// Register registers the control routes on mux.
func (h *controlHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{command}", h.handle)
}

func (h *controlHandler) handle(w http.ResponseWriter, r *http.Request) {
	command := r.PathValue("command")
	ev, err := parseControlCommand(command)
	if err != nil {
		h.logger.Warn("control request rejected", "command", command, "error", err)
		h.post(ExternalWake{Source: "http"})
		writeControlReply(w, false)
		return
	}

	h.logger.Debug("control request", "command", command)

	// Reply before posting so /exit answers before the server shuts down.
	writeControlReply(w, true)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	h.post(ev)
}

func writeControlReply(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "text/plain")
	if ok {
		_, _ = w.Write([]byte("1"))
		return
	}
	_, _ = w.Write([]byte("0"))
}

// parseControlCommand maps one path segment ("contrast=128") to an event.
func parseControlCommand(command string) (Event, error) {
	name, value, hasValue := strings.Cut(command, "=")

	switch name {
	case "exit":
		return ExitRequested{}, nil

	case "wake":
		return ExternalWake{Source: "http"}, nil

	case "contrast":
		v, err := controlInt(value, hasValue)
		if err != nil {
			return nil, err
		}
		if v < minContrast || v > maxContrast {
			return nil, fmt.Errorf("contrast %d out of range %d..%d", v, minContrast, maxContrast)
		}
		return ContrastRequested{Value: v}, nil

	case "sleep_after":
		d, err := controlSeconds(value, hasValue)
		if err != nil {
			return nil, err
		}
		return IdleDelaysRequested{ScreensaverAfter: &d}, nil

	case "deep_sleep_after":
		d, err := controlSeconds(value, hasValue)
		if err != nil {
			return nil, err
		}
		return IdleDelaysRequested{DeepSleepAfter: &d}, nil

	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

func controlInt(value string, hasValue bool) (int, error) {
	if !hasValue {
		return 0, errors.New("missing value")
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", value)
	}
	return v, nil
}

func controlSeconds(value string, hasValue bool) (time.Duration, error) {
	v, err := controlInt(value, hasValue)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative delay %d", v)
	}
	return time.Duration(v) * time.Second, nil
}

// newControlMux builds the control port's routes. wsServer may be nil when the
// state websocket is disabled.
func newControlMux(post func(Event), wsServer *Server, metrics bool, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	(&controlHandler{post: post, logger: logger}).Register(mux)
	if metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	if wsServer != nil {
		wsServer.Register(mux, "GET /ws")
	}
	return mux
}

// runControlServer serves handler on port and shuts it down gracefully when
// ctx is canceled.
func runControlServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	logger.Info("control server listening", "port", port)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
