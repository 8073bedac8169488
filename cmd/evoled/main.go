package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

// eventQueueSize bounds the daemon's inbound event channel. Knob detents,
// telemetry, control requests, timers and panel completions all share it.
const eventQueueSize = 256

func printVersion() {
	fmt.Printf("evoled v%s\n", version)
	fmt.Println("OLED display and rotary knob controller for Volumio and moOde")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  evoled [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Drives a 256x64 OLED panel with playback, clock, screensaver and playlist")
	fmt.Println("  screens, and turns a rotary encoder into volume, play/pause and playlist")
	fmt.Println("  selection commands for the local player.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with a config file")
	fmt.Println("  evoled -config /etc/evoled.yaml")
	fmt.Println()
	fmt.Println("  # Preview the display in the terminal without hardware")
	fmt.Println("  evoled -display-driver terminal -knob=false -platform moode")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Flags override values from the config file")
	fmt.Println("  - The plugin's config.json overrides idle delays and contrast when readable")
	fmt.Println()
}

func main() {
	var (
		configPath   = flag.String("config", "", "Path to YAML config file (optional)")
		driver       = flag.String("display-driver", "", "Display driver: ssd1306, terminal, none")
		contrast     = flag.Int("contrast", 0, "Panel contrast (1..254)")
		sleepAfter   = flag.Int("sleep-after", 0, "Seconds of inactivity before the screensaver")
		deepSleep    = flag.Int("deep-sleep-after", 0, "Seconds of screensaver before the panel turns off")
		knobEnabled  = flag.Bool("knob", true, "Read the rotary encoder from GPIO")
		platform     = flag.String("platform", "", "Player platform: auto, volumio, moode")
		volumioURL   = flag.String("volumio-url", "", "Volumio base URL")
		moodeURL     = flag.String("moode-url", "", "moOde status URL")
		controlPort  = flag.Int("control-port", 0, "Control HTTP port (0 disables)")
		socketPath   = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		pluginConfig = flag.String("plugin-config", "", "Path to the plugin's config.json")
		logLevelStr  = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion  = flag.Bool("version", false, "Print version and exit")
		showHelp     = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "display-driver":
			o.DisplayDriver = driver
		case "contrast":
			o.DisplayContrast = contrast
		case "sleep-after":
			o.SleepAfterSec = sleepAfter
		case "deep-sleep-after":
			o.DeepSleepAfterSec = deepSleep
		case "knob":
			o.KnobEnabled = knobEnabled
		case "platform":
			o.Platform = platform
		case "volumio-url":
			o.VolumioURL = volumioURL
		case "moode-url":
			o.MoodeURL = moodeURL
		case "control-port":
			o.ControlPort = controlPort
		case "ipc-socket":
			o.SocketPath = socketPath
		case "plugin-config":
			o.PluginConfig = pluginConfig
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// The terminal preview owns stdout.
	var logOut io.Writer = os.Stdout
	if cfg.Display.Driver == "terminal" {
		logOut = os.Stderr
	}
	logger := setupLogger(logLevel, logOut)

	ApplyPluginConfig(&cfg, cfg.PluginConfig, logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("evoled stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("evoled stopped")
}

// run wires the subsystems and blocks until ctx is canceled, /exit is
// requested, or a required subsystem fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	runner := newShellRunner()

	platform, err := resolvePlatform(ctx, cfg.Player.Platform, runner, logger)
	if err != nil {
		return err
	}
	commands := defaultCommandSet(platform).withOverrides(cfg.Player.Commands)

	pollInterval := time.Duration(cfg.Player.PollIntervalMS) * time.Millisecond
	var backend Backend
	switch platform {
	case PlatformVolumio:
		b, err := NewVolumioBackend(cfg.Player.VolumioURL, pollInterval, logger)
		if err != nil {
			return fmt.Errorf("volumio backend: %w", err)
		}
		backend = b
	default:
		backend = NewMoodeBackend(cfg.Player.MoodeURL, pollInterval, logger)
	}

	dispatcher := NewDispatcher(runner, logger, DispatcherConfig{
		Timeout:    time.Duration(cfg.Player.CommandTimeoutMS) * time.Millisecond,
		MaxPending: cfg.Player.MaxPending,
	})

	// A missing panel only costs the display; the knob still controls the player.
	panel, err := openPanel(cfg.Display, logger)
	if err != nil {
		logger.Error("panel unavailable; running without display", "driver", cfg.Display.Driver, "error", err)
		panel = newNullPanel(cfg.Display.Width, cfg.Display.Height)
	}
	defer func() {
		if err := panel.PowerOff(); err != nil {
			logger.Warn("panel power off failed", "error", err)
		}
		if err := panel.Close(); err != nil {
			logger.Warn("panel close failed", "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	events := make(chan Event, eventQueueSize)
	post := func(ev Event) {
		select {
		case events <- ev:
		case <-gctx.Done():
		}
	}
	offer := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		default:
			return false
		}
	}

	var (
		broadcasts chan StateBroadcast
		wsServer   *Server
	)
	if cfg.Control.StateWS && cfg.Control.Port > 0 {
		broadcasts = make(chan StateBroadcast, 64)
		wsServer = NewServer(logger, events, ServerConfig{})
		g.Go(func() error {
			wsServer.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, wsServer.Hub(), broadcasts, logger)
			return nil
		})
	}

	seed := uint64(time.Now().UnixNano())
	renderer := NewRenderer(panel, rand.New(rand.NewPCG(seed, seed>>1)), time.Now)

	effects := NewEffects(gctx, EffectsDeps{
		Panel:      panel,
		Renderer:   renderer,
		Dispatcher: dispatcher,
		Lists:      newListSource(platform, cfg.Player.VolumioURL, runner),
		Footer:     backend,
		Post:       post,
		Offer:      offer,
		Shutdown:   cancel,
	}, logger)

	screensaverAfter, deepSleepAfter := cfg.IdleDelays()
	state := NewDaemonState(screensaverAfter, deepSleepAfter, cfg.Display.Contrast)
	daemon := NewDaemon(state, cfg.SessionConfig(commands), effects, broadcasts, logger)

	g.Go(func() error {
		return daemon.Run(gctx, events)
	})

	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return backend.Subscribe(gctx, func(u TelemetryUpdate) {
			post(TelemetryReceived{Update: u})
		})
	})

	if cfg.Knob.Enabled {
		knob, err := OpenKnob(cfg.Knob, post, logger)
		if err != nil {
			logger.Error("knob unavailable; continuing without it", "error", err)
		} else {
			defer knob.Close()
			g.Go(func() error {
				if err := knob.Run(gctx); err != nil {
					logger.Error("knob stopped", "error", err)
				}
				return nil
			})
		}
	}

	if cfg.Control.SocketPath != "" {
		g.Go(func() error {
			if err := runIPCServer(gctx, cfg.Control.SocketPath, events, logger); err != nil {
				logger.Error("IPC server stopped", "error", err)
			}
			return nil
		})
	}

	if cfg.Control.Port > 0 {
		mux := newControlMux(post, wsServer, cfg.Control.Metrics, logger)
		g.Go(func() error {
			return runControlServer(gctx, cfg.Control.Port, mux, logger)
		})
	}

	logger.Info("evoled running",
		"version", version,
		"platform", platform,
		"display", cfg.Display.Driver,
		"knob", cfg.Knob.Enabled,
		"control_port", cfg.Control.Port,
		"ipc", cfg.Control.SocketPath)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
