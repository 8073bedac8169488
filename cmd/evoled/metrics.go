package main

import "github.com/prometheus/client_golang/prometheus"

// Process-wide counters, exposed on the control server at /metrics.
var (
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evoled_frames_total",
			Help: "Render requests per display mode, by result (rendered or skipped while the panel was busy).",
		},
		[]string{"mode", "result"},
	)

	modeTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evoled_mode_transitions_total",
			Help: "Display mode entries, by target mode.",
		},
		[]string{"mode"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evoled_commands_total",
			Help: "Player control commands, by result (ok, failed, dropped).",
		},
		[]string{"result"},
	)

	commandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evoled_command_duration_seconds",
			Help:    "Wall time of player control commands.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	telemetryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evoled_telemetry_updates_total",
			Help: "Player telemetry updates received, by backend and kind (state or supplemental).",
		},
		[]string{"backend", "kind"},
	)
)

func init() {
	prometheus.MustRegister(framesTotal, modeTransitionsTotal, commandsTotal, commandDuration, telemetryTotal)
}
