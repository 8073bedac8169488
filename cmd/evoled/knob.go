package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Knob reads the rotary encoder and its push button from GPIO and posts
// KnobRotated / KnobPressed events.
type Knob struct {
	clk, dt, sw *gpioLine

	decoder *QuadratureDecoder
	press   *pressTracker
	logger  *slog.Logger
}

// knobPhases samples CLK as phase A and DT as phase B.
type knobPhases struct {
	clk, dt *gpioLine
}

func (p knobPhases) ReadPhases() (a, b bool, err error) {
	if a, err = p.clk.Value(); err != nil {
		return false, false, err
	}
	if b, err = p.dt.Value(); err != nil {
		return false, false, err
	}
	return a, b, nil
}

// OpenKnob exports the knob's GPIO lines. post must not block for long; it
// is called from the GPIO watcher goroutine.
func OpenKnob(cfg KnobConfig, post func(Event), logger *slog.Logger) (*Knob, error) {
	clk, err := openGPIOLine(cfg.CLK, "both")
	if err != nil {
		return nil, fmt.Errorf("knob CLK: %w", err)
	}
	dt, err := openGPIOLine(cfg.DT, "none")
	if err != nil {
		clk.Close()
		return nil, fmt.Errorf("knob DT: %w", err)
	}
	sw, err := openGPIOLine(cfg.SW, "both")
	if err != nil {
		clk.Close()
		dt.Close()
		return nil, fmt.Errorf("knob SW: %w", err)
	}

	k := &Knob{clk: clk, dt: dt, sw: sw, logger: logger}
	k.decoder = NewQuadratureDecoder(knobPhases{clk: clk, dt: dt}, cfg.StepsPerDetent, func(d Direction) {
		post(KnobRotated{Direction: d})
	}, logger)
	k.press = newPressTracker(time.Duration(cfg.LongPressMS)*time.Millisecond, time.Now, func(long bool) {
		post(KnobPressed{Long: long})
	})

	logger.Info("knob ready", "clk", cfg.CLK, "dt", cfg.DT, "sw", cfg.SW, "steps_per_detent", cfg.StepsPerDetent)
	return k, nil
}

// Run watches the lines until ctx is canceled.
func (k *Knob) Run(ctx context.Context) error {
	return watchGPIOLines(ctx, []*gpioLine{k.clk, k.dt, k.sw}, func(l *gpioLine) {
		switch l {
		case k.clk:
			k.decoder.OnEdge()
		case k.sw:
			high, err := k.sw.Value()
			if err != nil {
				k.logger.Debug("button read failed", "error", err)
				return
			}
			// Active low: the button pulls the line to ground.
			k.press.OnLevel(!high)
		}
	})
}

func (k *Knob) Close() error {
	k.clk.Close()
	k.dt.Close()
	return k.sw.Close()
}
