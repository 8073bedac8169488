package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Platform is the music player distribution running on the host.
type Platform string

const (
	PlatformAuto    Platform = "auto"
	PlatformVolumio Platform = "volumio"
	PlatformMoode   Platform = "moode"
)

// detectPlatform probes for the volumio CLI; a host without it is treated as moOde.
func detectPlatform(ctx context.Context, runner CommandRunner, logger *slog.Logger) Platform {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := runner.Run(probeCtx, "volumio status"); err != nil {
		logger.Info("volumio CLI not available, assuming moode", "error", err)
		return PlatformMoode
	}
	return PlatformVolumio
}

// resolvePlatform returns the configured platform, probing when it is "auto".
func resolvePlatform(ctx context.Context, configured string, runner CommandRunner, logger *slog.Logger) (Platform, error) {
	switch p := Platform(strings.ToLower(configured)); p {
	case PlatformVolumio, PlatformMoode:
		return p, nil
	case PlatformAuto, "":
		return detectPlatform(ctx, runner, logger), nil
	default:
		return "", fmt.Errorf("unknown platform %q (want auto, volumio or moode)", configured)
	}
}

// CommandSet holds the player control command lines for a platform.
// PlayList is a template: {name} and {uri} are replaced by shell-quoted values.
type CommandSet struct {
	VolumeUp   string
	VolumeDown string
	Toggle     string
	PlayList   string
}

// defaultCommandSet returns the built-in commands for a platform.
func defaultCommandSet(p Platform) CommandSet {
	switch p {
	case PlatformVolumio:
		return CommandSet{
			VolumeUp:   "volumio volume plus",
			VolumeDown: "volumio volume minus",
			Toggle:     "volumio toggle",
			PlayList:   `curl -s -G --data-urlencode name={name} "http://localhost:3000/api/v1/commands/?cmd=playplaylist"`,
		}
	default:
		return CommandSet{
			VolumeUp:   "mpc volume +5",
			VolumeDown: "mpc volume -5",
			Toggle:     "mpc toggle",
			PlayList:   "mpc clear && mpc load {name} && mpc play",
		}
	}
}

// withOverrides replaces each command that has a non-empty override.
func (c CommandSet) withOverrides(o CommandTemplates) CommandSet {
	if o.VolumeUp != "" {
		c.VolumeUp = o.VolumeUp
	}
	if o.VolumeDown != "" {
		c.VolumeDown = o.VolumeDown
	}
	if o.Toggle != "" {
		c.Toggle = o.Toggle
	}
	if o.PlayList != "" {
		c.PlayList = o.PlayList
	}
	return c
}

// PlayListLine expands the PlayList template for item.
func (c CommandSet) PlayListLine(item ListItem) string {
	if c.PlayList == "" {
		return ""
	}
	uri := item.URI
	if uri == "" {
		uri = item.Name
	}
	return strings.NewReplacer(
		"{name}", shellQuote(item.Name),
		"{uri}", shellQuote(uri),
	).Replace(c.PlayList)
}

// shellQuote wraps s in single quotes for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
