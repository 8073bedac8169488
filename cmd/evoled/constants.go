package main

import "time"

// Panel defaults (256x64 4-bit grayscale class panel, SPI attached)
const (
	defaultPanelWidth  = 256
	defaultPanelHeight = 64
	defaultContrast    = 254
	minContrast        = 1
	maxContrast        = 254

	// minPanelSize is the smallest accepted width and height in pixels.
	minPanelSize = 16
)

// Render cadences per display mode
const (
	defaultMainRateMS   = 40 // playback frame interval (ms)
	clockRefreshRate    = time.Second
	screensaverTickRate = 40 * time.Millisecond
	listRefreshRate     = 200 * time.Millisecond

	// Frames a freshly changed title/artist stays put before it starts scrolling.
	scrollSettleFrames = 20
)

// Idle timeline defaults
const (
	defaultSleepAfterSec     = 60
	defaultDeepSleepAfterSec = 120
)

// Knob defaults (GPIO numbers are BCM, as exported through sysfs)
const (
	defaultKnobCLK         = 5
	defaultKnobDT          = 6
	defaultKnobSW          = 13
	defaultStepsPerDetent  = 4
	defaultLongPressMS     = 800
	knobEpollWaitTimeoutMS = 250
)

// Player backend defaults
const (
	defaultVolumioURL       = "http://localhost:3000"
	defaultMoodeURL         = "http://localhost/engine-mpd.php"
	defaultPollIntervalMS   = 1000
	defaultCommandTimeoutMS = 10000
	defaultMaxPending       = 32
	listFetchTimeout        = 5 * time.Second
)

// Control surface defaults
const (
	defaultControlPort = 4153
	defaultIPCSocket   = "/tmp/evoled.sock"
)
