package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// terminalPreviewInterval limits how often the preview repaints.
const terminalPreviewInterval = 200 * time.Millisecond

// terminalPanel previews frames on a terminal, two pixel rows per text row.
// It exists for development on hosts without the OLED attached.
type terminalPanel struct {
	*Canvas

	out   io.Writer
	style lipgloss.Style
	now   func() time.Time

	mu        sync.Mutex
	lastPaint time.Time
	off       bool
}

func newTerminalPanel(w, h int, out io.Writer) *terminalPanel {
	if out == nil {
		out = os.Stdout
	}
	return &terminalPanel{
		Canvas: NewCanvas(w, h),
		out:    out,
		now:    time.Now,
		style: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Foreground(lipgloss.Color("214")),
	}
}

func (p *terminalPanel) Present(immediate bool, done func()) {
	p.mu.Lock()
	now := p.now()
	paint := !p.off && (immediate || now.Sub(p.lastPaint) >= terminalPreviewInterval)
	var frame string
	if paint {
		p.lastPaint = now
		frame = p.style.Render(p.halfBlocks())
	}
	p.mu.Unlock()

	go func() {
		if paint {
			// Cursor home, then the frame.
			fmt.Fprint(p.out, "\x1b[H"+frame+"\n")
		}
		done()
	}()
}

// halfBlocks maps each pair of framebuffer rows to one line of block glyphs.
func (p *terminalPanel) halfBlocks() string {
	w, h := p.Width(), p.Height()
	var b strings.Builder
	for y := 0; y < h; y += 2 {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < w; x++ {
			top := p.Pixel(x, y) > 0
			bottom := p.Pixel(x, y+1) > 0
			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func (p *terminalPanel) SetContrast(value int, done func()) {
	go done()
}

func (p *terminalPanel) PowerOn() error {
	p.mu.Lock()
	p.off = false
	p.mu.Unlock()
	return nil
}

func (p *terminalPanel) PowerOff() error {
	p.mu.Lock()
	p.off = true
	p.mu.Unlock()
	_, err := fmt.Fprint(p.out, "\x1b[H\x1b[2J")
	return err
}

func (p *terminalPanel) Close() error { return nil }
