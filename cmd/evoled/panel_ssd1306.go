package main

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// ssd1306Panel drives an SSD1306 over SPI. Transfers run on a single worker
// goroutine; the framebuffer is thresholded into a 1-bit buffer before the
// transfer is queued, so the renderer may start on the next frame right away.
type ssd1306Panel struct {
	*Canvas

	logger *slog.Logger
	port   spi.PortCloser

	mu       sync.Mutex // guards dev
	dev      *ssd1306.Dev
	contrast int

	mono  *image1bit.VerticalLSB
	jobs  chan func()
	stop  chan struct{}
	close sync.Once
}

func openSSD1306Panel(cfg DisplayConfig, logger *slog.Logger) (*ssd1306Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", cfg.SPIPort, err)
	}

	dc := gpioreg.ByName(cfg.DCPin)
	if dc == nil {
		port.Close()
		return nil, fmt.Errorf("DC pin %q not found", cfg.DCPin)
	}

	if cfg.ResetPin != "" {
		if err := resetPanel(cfg.ResetPin); err != nil {
			port.Close()
			return nil, err
		}
	}

	dev, err := ssd1306.NewSPI(port, dc, &ssd1306.Opts{W: cfg.Width, H: cfg.Height, Rotated: cfg.Rotated})
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("ssd1306 init (%dx%d): %w", cfg.Width, cfg.Height, err)
	}

	p := &ssd1306Panel{
		Canvas:   NewCanvas(cfg.Width, cfg.Height),
		logger:   logger,
		port:     port,
		dev:      dev,
		contrast: cfg.Contrast,
		mono:     image1bit.NewVerticalLSB(dev.Bounds()),
		jobs:     make(chan func(), 1),
		stop:     make(chan struct{}),
	}
	if err := dev.SetContrast(byte(cfg.Contrast)); err != nil {
		logger.Warn("ssd1306 initial contrast failed", "error", err)
	}
	go p.worker()
	return p, nil
}

func resetPanel(name string) error {
	rst := gpioreg.ByName(name)
	if rst == nil {
		return fmt.Errorf("reset pin %q not found", name)
	}
	if err := rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("reset pin low: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := rst.Out(gpio.High); err != nil {
		return fmt.Errorf("reset pin high: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

func (p *ssd1306Panel) worker() {
	for {
		select {
		case <-p.stop:
			return
		case job := <-p.jobs:
			job()
		}
	}
}

// enqueue hands job to the worker. The session keeps at most one transfer
// outstanding, so this only waits if the caller broke that rule.
func (p *ssd1306Panel) enqueue(job func()) {
	select {
	case p.jobs <- job:
	case <-p.stop:
	}
}

func (p *ssd1306Panel) Present(_ bool, done func()) {
	p.threshold()
	p.enqueue(func() {
		p.mu.Lock()
		err := p.dev.Draw(p.dev.Bounds(), p.mono, image.Point{})
		p.mu.Unlock()
		if err != nil {
			p.logger.Warn("ssd1306 draw failed", "error", err)
		}
		done()
	})
}

// threshold converts the grayscale framebuffer: any lit pixel is on.
func (p *ssd1306Panel) threshold() {
	img := p.Image()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			bit := image1bit.Off
			if row[x-b.Min.X] > 0 {
				bit = image1bit.On
			}
			p.mono.SetBit(x, y, bit)
		}
	}
}

func (p *ssd1306Panel) SetContrast(value int, done func()) {
	p.enqueue(func() {
		p.mu.Lock()
		p.contrast = value
		err := p.dev.SetContrast(byte(value))
		p.mu.Unlock()
		if err != nil {
			p.logger.Warn("ssd1306 set contrast failed", "error", err, "value", value)
		}
		done()
	})
}

// PowerOn leaves the halted state. The controller resumes on the next command,
// so the current contrast is re-sent and the last frame redrawn.
func (p *ssd1306Panel) PowerOn() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dev.SetContrast(byte(p.contrast)); err != nil {
		return fmt.Errorf("ssd1306 power on: %w", err)
	}
	if err := p.dev.Draw(p.dev.Bounds(), p.mono, image.Point{}); err != nil {
		return fmt.Errorf("ssd1306 power on redraw: %w", err)
	}
	return nil
}

func (p *ssd1306Panel) PowerOff() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dev.Halt(); err != nil {
		return fmt.Errorf("ssd1306 halt: %w", err)
	}
	return nil
}

func (p *ssd1306Panel) Close() error {
	p.close.Do(func() { close(p.stop) })
	return p.port.Close()
}
