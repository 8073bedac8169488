package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the evoled daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
type Config struct {
	Display DisplayConfig `yaml:"display"`
	Idle    IdleConfig    `yaml:"idle"`
	Knob    KnobConfig    `yaml:"knob"`
	Player  PlayerConfig  `yaml:"player"`
	Control ControlConfig `yaml:"control"`
	Logging LoggingConfig `yaml:"logging"`

	// PluginConfig is the player plugin's persisted settings file. Its values
	// replace the idle delays and contrast above when it can be read.
	PluginConfig string `yaml:"plugin_config,omitempty"`
}

type DisplayConfig struct {
	Driver     string `yaml:"driver"` // "ssd1306", "terminal" or "none"
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	SPIPort    string `yaml:"spi_port"`
	DCPin      string `yaml:"dc_pin"`
	ResetPin   string `yaml:"reset_pin,omitempty"`
	Rotated    bool   `yaml:"rotated,omitempty"`
	Contrast   int    `yaml:"contrast"`
	MainRateMS int    `yaml:"main_rate_ms"`
}

type IdleConfig struct {
	SleepAfterSec     int `yaml:"sleep_after_sec"`
	DeepSleepAfterSec int `yaml:"deep_sleep_after_sec"`
}

type KnobConfig struct {
	Enabled        bool `yaml:"enabled"`
	CLK            int  `yaml:"clk"`
	DT             int  `yaml:"dt"`
	SW             int  `yaml:"sw"`
	StepsPerDetent int  `yaml:"steps_per_detent"`
	LongPressMS    int  `yaml:"long_press_ms"` // 0 disables long press
}

type PlayerConfig struct {
	Platform         string           `yaml:"platform"` // "auto", "volumio" or "moode"
	VolumioURL       string           `yaml:"volumio_url"`
	MoodeURL         string           `yaml:"moode_url"`
	PollIntervalMS   int              `yaml:"poll_interval_ms"`
	CommandTimeoutMS int              `yaml:"command_timeout_ms"`
	MaxPending       int              `yaml:"max_pending"`
	Commands         CommandTemplates `yaml:"commands,omitempty"`
}

// CommandTemplates override the platform's built-in player commands.
// Empty fields keep the built-in command.
type CommandTemplates struct {
	VolumeUp   string `yaml:"volume_up,omitempty"`
	VolumeDown string `yaml:"volume_down,omitempty"`
	Toggle     string `yaml:"toggle,omitempty"`
	PlayList   string `yaml:"play_list,omitempty"`
}

type ControlConfig struct {
	Port       int    `yaml:"port"`
	SocketPath string `yaml:"socket_path"`
	Metrics    bool   `yaml:"metrics"`
	StateWS    bool   `yaml:"state_ws"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Display: DisplayConfig{
			Driver:     "ssd1306",
			Width:      defaultPanelWidth,
			Height:     defaultPanelHeight,
			SPIPort:    "",
			DCPin:      "GPIO27",
			Contrast:   defaultContrast,
			MainRateMS: defaultMainRateMS,
		},
		Idle: IdleConfig{
			SleepAfterSec:     defaultSleepAfterSec,
			DeepSleepAfterSec: defaultDeepSleepAfterSec,
		},
		Knob: KnobConfig{
			Enabled:        true,
			CLK:            defaultKnobCLK,
			DT:             defaultKnobDT,
			SW:             defaultKnobSW,
			StepsPerDetent: defaultStepsPerDetent,
			LongPressMS:    defaultLongPressMS,
		},
		Player: PlayerConfig{
			Platform:         string(PlatformAuto),
			VolumioURL:       defaultVolumioURL,
			MoodeURL:         defaultMoodeURL,
			PollIntervalMS:   defaultPollIntervalMS,
			CommandTimeoutMS: defaultCommandTimeoutMS,
			MaxPending:       defaultMaxPending,
		},
		Control: ControlConfig{
			Port:       defaultControlPort,
			SocketPath: defaultIPCSocket,
			Metrics:    true,
			StateWS:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// ============================================================================
// Plugin settings file
// ============================================================================

// pluginSetting is one entry of the plugin's config.json: {"value": ...}.
// Values are stored as strings or numbers depending on the UI that wrote them.
// pluginSetting is one entry of the plugin's config.json. The UI stores values
// as numbers or strings depending on which form saved them.
type pluginSetting struct {
	Value looseString `json:"value"`
}

type pluginSettings struct {
	SleepAfter     *pluginSetting `json:"sleep_after"`
	DeepSleepAfter *pluginSetting `json:"deep_sleep_after"`
	Contrast       *pluginSetting `json:"contrast"`
}

// ApplyPluginConfig overlays the plugin's persisted settings on cfg. A missing
// or malformed file, or an out-of-range value, is logged and leaves the
// affected settings unchanged; it never fails startup.
func ApplyPluginConfig(cfg *Config, path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		logger.Warn("plugin config not readable; using defaults", "path", path, "error", err)
		return
	}

	var s pluginSettings
	if err := json.Unmarshal(b, &s); err != nil {
		logger.Warn("plugin config malformed; using defaults", "path", path, "error", err)
		return
	}

	if v, ok := pluginInt(s.SleepAfter, 0, 1<<31-1); ok {
		cfg.Idle.SleepAfterSec = v
	} else if s.SleepAfter != nil {
		logger.Warn("plugin config: invalid sleep_after", "value", s.SleepAfter.Value.v)
	}
	if v, ok := pluginInt(s.DeepSleepAfter, 0, 1<<31-1); ok {
		cfg.Idle.DeepSleepAfterSec = v
	} else if s.DeepSleepAfter != nil {
		logger.Warn("plugin config: invalid deep_sleep_after", "value", s.DeepSleepAfter.Value.v)
	}
	if v, ok := pluginInt(s.Contrast, minContrast, maxContrast); ok {
		cfg.Display.Contrast = v
	} else if s.Contrast != nil {
		logger.Warn("plugin config: invalid contrast", "value", s.Contrast.Value.v)
	}
}

func pluginInt(s *pluginSetting, lo, hi int) (int, bool) {
	if s == nil || !s.Value.ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(s.Value.v))
	if err != nil || v < lo || v > hi {
		return 0, false
	}
	return v, true
}

// ============================================================================
// Flag overrides and validation
// ============================================================================

// FlagOverrides applies overrides from flags on top of a loaded config.
// Flags pass pointers; each override is only applied if the pointer is non-nil.
type FlagOverrides struct {
	DisplayDriver   *string
	DisplayContrast *int

	SleepAfterSec     *int
	DeepSleepAfterSec *int

	KnobEnabled *bool

	Platform   *string
	VolumioURL *string
	MoodeURL   *string

	ControlPort *int
	SocketPath  *string

	PluginConfig *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a "zero value").
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.DisplayDriver != nil {
		cfg.Display.Driver = *o.DisplayDriver
	}
	if o.DisplayContrast != nil {
		cfg.Display.Contrast = *o.DisplayContrast
	}

	if o.SleepAfterSec != nil {
		cfg.Idle.SleepAfterSec = *o.SleepAfterSec
	}
	if o.DeepSleepAfterSec != nil {
		cfg.Idle.DeepSleepAfterSec = *o.DeepSleepAfterSec
	}

	if o.KnobEnabled != nil {
		cfg.Knob.Enabled = *o.KnobEnabled
	}

	if o.Platform != nil {
		cfg.Player.Platform = *o.Platform
	}
	if o.VolumioURL != nil {
		cfg.Player.VolumioURL = *o.VolumioURL
	}
	if o.MoodeURL != nil {
		cfg.Player.MoodeURL = *o.MoodeURL
	}

	if o.ControlPort != nil {
		cfg.Control.Port = *o.ControlPort
	}
	if o.SocketPath != nil {
		cfg.Control.SocketPath = *o.SocketPath
	}

	if o.PluginConfig != nil {
		cfg.PluginConfig = *o.PluginConfig
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Display
	switch c.Display.Driver {
	case "ssd1306", "terminal", "none":
	default:
		return fmt.Errorf("display.driver must be one of ssd1306, terminal, none (got %q)", c.Display.Driver)
	}
	if c.Display.Width < minPanelSize || c.Display.Height < minPanelSize {
		return fmt.Errorf("display.width and display.height must be >= %d (got %dx%d)", minPanelSize, c.Display.Width, c.Display.Height)
	}
	if c.Display.Driver == "ssd1306" && c.Display.DCPin == "" {
		return errors.New("display.dc_pin must not be empty for the ssd1306 driver")
	}
	if c.Display.Contrast < minContrast || c.Display.Contrast > maxContrast {
		return fmt.Errorf("display.contrast must be between %d and %d", minContrast, maxContrast)
	}
	if c.Display.MainRateMS <= 0 {
		return errors.New("display.main_rate_ms must be > 0")
	}

	// Idle
	if c.Idle.SleepAfterSec < 0 || c.Idle.DeepSleepAfterSec < 0 {
		return errors.New("idle delays must be >= 0")
	}

	// Knob
	if c.Knob.Enabled {
		if c.Knob.CLK < 0 || c.Knob.DT < 0 || c.Knob.SW < 0 {
			return errors.New("knob gpio lines must be >= 0")
		}
		if c.Knob.CLK == c.Knob.DT || c.Knob.CLK == c.Knob.SW || c.Knob.DT == c.Knob.SW {
			return errors.New("knob.clk, knob.dt and knob.sw must be distinct")
		}
		if c.Knob.StepsPerDetent <= 0 {
			return errors.New("knob.steps_per_detent must be > 0")
		}
		if c.Knob.LongPressMS < 0 {
			return errors.New("knob.long_press_ms must be >= 0")
		}
	}

	// Player
	switch Platform(strings.ToLower(c.Player.Platform)) {
	case PlatformAuto, PlatformVolumio, PlatformMoode:
	default:
		return fmt.Errorf("player.platform must be auto, volumio or moode (got %q)", c.Player.Platform)
	}
	if c.Player.VolumioURL == "" || c.Player.MoodeURL == "" {
		return errors.New("player.volumio_url and player.moode_url must not be empty")
	}
	if c.Player.PollIntervalMS <= 0 {
		return errors.New("player.poll_interval_ms must be > 0")
	}
	if c.Player.CommandTimeoutMS <= 0 {
		return errors.New("player.command_timeout_ms must be > 0")
	}
	if c.Player.MaxPending <= 0 {
		return errors.New("player.max_pending must be > 0")
	}

	// Control
	if c.Control.Port < 0 || c.Control.Port > 65535 {
		return errors.New("control.port must be between 0 and 65535 (0 disables)")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// SessionConfig converts the render cadence and resolved commands into the
// reducer's configuration.
func (c *Config) SessionConfig(commands CommandSet) SessionConfig {
	cfg := DefaultSessionConfig(commands)
	cfg.PlaybackRate = time.Duration(c.Display.MainRateMS) * time.Millisecond
	return cfg
}

// IdleDelays returns the screensaver and deep-sleep delays.
func (c *Config) IdleDelays() (screensaver, deepSleep time.Duration) {
	return time.Duration(c.Idle.SleepAfterSec) * time.Second,
		time.Duration(c.Idle.DeepSleepAfterSec) * time.Second
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
