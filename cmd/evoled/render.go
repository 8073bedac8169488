package main

import (
	"math/rand/v2"
	"strconv"
	"time"
)

// Playback layout, in pixels from the panel edges.
const (
	titleY       = 1
	artistY      = 16
	footerY      = 30
	iconRowInset = 20 // icon row top, from the bottom edge
	seekBarInset = 7  // seek bar top, from the bottom edge
	seekBarH     = 4

	clockScale  = 3
	clockCellW  = 8
	listRowH    = 10
	listTextPad = 2
)

// 8x8 icons, MSB leftmost.
var (
	iconVolume    = []uint16{0x08, 0x18, 0xf8, 0xf8, 0xf8, 0x18, 0x08, 0x00}
	iconRepeatAll = []uint16{0x7c, 0x82, 0x82, 0x00, 0x82, 0x82, 0x7c, 0x00}
	iconRepeatOne = []uint16{0x7c, 0x82, 0x92, 0x10, 0x92, 0x82, 0x7c, 0x00}
	iconPlay      = []uint16{0x40, 0x60, 0x70, 0x78, 0x70, 0x60, 0x40, 0x00}
	iconPause     = []uint16{0x6c, 0x6c, 0x6c, 0x6c, 0x6c, 0x6c, 0x6c, 0x00}
	iconStop      = []uint16{0x00, 0x7e, 0x7e, 0x7e, 0x7e, 0x7e, 0x7e, 0x00}
)

const iconBitmapWidth = 8

// scrollLine is the horizontal scroll position of one text line.
type scrollLine struct {
	text   string
	offset int
}

// Renderer draws frames for each display mode onto a Panel. It is only used
// from the daemon goroutine.
type Renderer struct {
	panel Panel
	now   func() time.Time

	title, artist scrollLine
	settle        int

	rng   *rand.Rand
	snake *snake
}

// NewRenderer returns a renderer for panel. rng seeds the screensaver.
func NewRenderer(panel Panel, rng *rand.Rand, now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	r := &Renderer{panel: panel, now: now, rng: rng}
	r.ResetScroll()
	r.ResetAnimation()
	return r
}

// ResetScroll puts both text lines back at their start and restarts the settle delay.
func (r *Renderer) ResetScroll() {
	r.title = scrollLine{}
	r.artist = scrollLine{}
	r.settle = scrollSettleFrames
}

// ResetAnimation restarts the screensaver.
func (r *Renderer) ResetAnimation() {
	r.snake = newSnake(r.panel.Width(), r.panel.Height(), r.rng)
}

// Render draws one frame of cmd.Mode into the panel's framebuffer.
func (r *Renderer) Render(cmd CmdRenderFrame) {
	r.panel.ClearBuffer()
	switch cmd.Mode {
	case ModePlayback:
		r.drawPlayback(cmd.Player)
	case ModeClock:
		r.drawClock()
	case ModeScreensaver:
		r.snake.step()
		r.snake.draw(r.panel)
	case ModeListBrowser:
		r.drawList(cmd.List)
	}
}

// ============================================================================
// Playback
// ============================================================================

func (r *Renderer) drawPlayback(s PlayerSnapshot) {
	p := r.panel
	w, h := p.Width(), p.Height()

	scrolling := r.settle == 0
	if r.settle > 0 {
		r.settle--
	}
	r.drawScrolling(&r.title, s.Title, titleY, scrolling)
	r.drawScrolling(&r.artist, s.Artist, artistY, scrolling)

	if s.Footer != "" {
		r.drawCentred(s.Footer, footerY)
	}

	iconY := h - iconRowInset
	if s.VolumeKnown {
		r.drawIcon(4, iconY, iconVolume)
		p.SetCursor(14, iconY-1)
		p.WriteText(defaultFace, 1, volumeLabel(s), colorOn)
	}
	switch s.Repeat {
	case RepeatAll:
		r.drawIcon(w-24, iconY, iconRepeatAll)
	case RepeatSingle:
		r.drawIcon(w-24, iconY, iconRepeatOne)
	}
	switch s.Status {
	case StatusPlaying:
		r.drawIcon(w-10, iconY, iconPlay)
	case StatusPaused:
		r.drawIcon(w-10, iconY, iconPause)
	case StatusStopped:
		r.drawIcon(w-10, iconY, iconStop)
	}
	if s.SeekString != "" {
		r.drawCentred(s.SeekString, iconY-1)
	}

	r.drawSeekBar(s.Ratio)
}

func volumeLabel(s PlayerSnapshot) string {
	if s.Muted || s.Volume == 0 {
		return "X"
	}
	return strconv.Itoa(s.Volume)
}

// drawScrolling draws text centred when it fits, otherwise scrolled by its
// offset. A line that has fully left the panel re-enters from the right edge.
func (r *Renderer) drawScrolling(line *scrollLine, text string, y int, advance bool) {
	p := r.panel
	if line.text != text {
		*line = scrollLine{text: text}
	}
	if text == "" {
		return
	}
	w := p.Width()
	tw := p.MeasureText(defaultFace, 1, text)
	if tw <= w {
		p.SetCursor((w-tw)/2, y)
		p.WriteText(defaultFace, 1, text, colorOn)
		return
	}

	if advance {
		line.offset++
		if line.offset > tw {
			line.offset = -w
		}
	}
	p.SetCursor(-line.offset, y)
	p.WriteText(defaultFace, 1, text, colorOn)
}

func (r *Renderer) drawCentred(text string, y int) {
	p := r.panel
	tw := p.MeasureText(defaultFace, 1, text)
	p.SetCursor((p.Width()-tw)/2, y)
	p.WriteText(defaultFace, 1, text, colorOn)
}

// drawSeekBar draws a bordered bar whose fill is ratio * (width - 6).
func (r *Renderer) drawSeekBar(ratio float64) {
	p := r.panel
	w, h := p.Width(), p.Height()
	x0, x1 := 3, w-4
	y0, y1 := h-seekBarInset, h-seekBarInset+seekBarH-1

	p.DrawLine(x0, y0, x1, y0, colorOn)
	p.DrawLine(x0, y1, x1, y1, colorOn)
	p.DrawLine(x0, y0, x0, y1, colorOn)
	p.DrawLine(x1, y0, x1, y1, colorOn)

	ratio = min(max(ratio, 0), 1)
	if fill := int(ratio * float64(w-6)); fill > 0 {
		p.FillRect(x0, y0, fill, seekBarH, colorOn)
	}
}

func (r *Renderer) drawIcon(x, y int, rows []uint16) {
	for dy, row := range rows {
		for dx := 0; dx < iconBitmapWidth; dx++ {
			if row&(1<<(iconBitmapWidth-1-dx)) != 0 {
				r.panel.FillRect(x+dx, y+dy, 1, 1, colorOn)
			}
		}
	}
}

// ============================================================================
// Clock and list browser
// ============================================================================

func (r *Renderer) drawClock() {
	p := r.panel
	text := r.now().Format("15:04")
	cell := clockCellW * clockScale
	x := (p.Width() - cell*len(text)) / 2
	y := (p.Height() - defaultFace.Metrics().Height.Ceil()*clockScale) / 2

	for i, ch := range text {
		p.SetCursor(x+i*cell, y)
		p.WriteText(defaultFace, clockScale, string(ch), colorOn)
	}
}

func (r *Renderer) drawList(l SelectableList) {
	p := r.panel
	start, end := l.Window(p.Height() / listRowH)
	for i := start; i < end; i++ {
		y := (i - start) * listRowH
		c := colorOn
		if i == l.Selected {
			p.FillRect(0, y, p.Width(), listRowH, colorOn)
			c = colorOff
		}
		p.SetCursor(listTextPad, y-1)
		p.WriteText(defaultFace, 1, l.Items[i].Name, c)
	}
}
