package main

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Panel is the pixel driver the renderer draws on.
//
// Drawing calls only touch the in-memory framebuffer. Present and SetContrast
// hand work to the device and call done once it has finished; done may be
// called from another goroutine but never from inside Present or SetContrast.
type Panel interface {
	Width() int
	Height() int

	ClearBuffer()
	SetCursor(x, y int)
	WriteText(face font.Face, scale int, text string, c color.Gray)
	MeasureText(face font.Face, scale int, text string) int
	DrawLine(x0, y0, x1, y1 int, c color.Gray)
	FillRect(x, y, w, h int, c color.Gray)

	Present(immediate bool, done func())
	SetContrast(value int, done func())
	PowerOn() error
	PowerOff() error
	Close() error
}

var (
	colorOn  = color.Gray{Y: 0xff}
	colorOff = color.Gray{Y: 0x00}
)

// defaultFace is the only face the renderer uses.
var defaultFace font.Face = basicfont.Face7x13

// ============================================================================
// Canvas: framebuffer shared by all panel drivers
// ============================================================================

// Canvas is an 8-bit grayscale framebuffer implementing the drawing half of Panel.
type Canvas struct {
	img    *image.Gray
	cursor image.Point
}

// NewCanvas allocates a w x h framebuffer.
func NewCanvas(w, h int) *Canvas {
	return &Canvas{img: image.NewGray(image.Rect(0, 0, w, h))}
}

func (c *Canvas) Width() int  { return c.img.Rect.Dx() }
func (c *Canvas) Height() int { return c.img.Rect.Dy() }

// Image exposes the framebuffer to drivers. Callers must not retain it across frames.
func (c *Canvas) Image() *image.Gray { return c.img }

func (c *Canvas) ClearBuffer() {
	clear(c.img.Pix)
	c.cursor = image.Point{}
}

// SetCursor sets the top-left corner of the next WriteText.
func (c *Canvas) SetCursor(x, y int) { c.cursor = image.Pt(x, y) }

// Pixel reports the framebuffer value at (x, y); out of range reads as off.
func (c *Canvas) Pixel(x, y int) uint8 {
	if !(image.Point{X: x, Y: y}).In(c.img.Rect) {
		return 0
	}
	return c.img.GrayAt(x, y).Y
}

func (c *Canvas) set(x, y int, v color.Gray) {
	if (image.Point{X: x, Y: y}).In(c.img.Rect) {
		c.img.SetGray(x, y, v)
	}
}

// FillRect fills w x h pixels at (x, y), clipped to the framebuffer.
func (c *Canvas) FillRect(x, y, w, h int, v color.Gray) {
	r := image.Rect(x, y, x+w, y+h).Intersect(c.img.Rect)
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			c.img.SetGray(px, py, v)
		}
	}
}

// DrawLine draws a Bresenham line including both end points.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int, v color.Gray) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		c.set(x0, y0, v)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// MeasureText returns the advance width of text in pixels.
func (c *Canvas) MeasureText(face font.Face, scale int, text string) int {
	if scale < 1 {
		scale = 1
	}
	return font.MeasureString(face, text).Ceil() * scale
}

// WriteText draws text at the cursor, each glyph pixel expanded to a
// scale x scale block, and advances the cursor past it.
func (c *Canvas) WriteText(face font.Face, scale int, text string, v color.Gray) {
	if scale < 1 {
		scale = 1
	}
	ascent := face.Metrics().Ascent.Ceil()
	dot := fixed.P(0, ascent)
	prev := rune(-1)

	for _, r := range text {
		if prev >= 0 {
			dot.X += face.Kern(prev, r)
		}
		dr, mask, mp, advance, ok := face.Glyph(dot, r)
		if !ok {
			dr, mask, mp, advance, _ = face.Glyph(dot, '?')
		}
		if mask != nil {
			c.blitMask(dr, mask, mp, scale, v)
		}
		dot.X += advance
		prev = r
	}
	c.cursor.X += dot.X.Ceil() * scale
}

func (c *Canvas) blitMask(dr image.Rectangle, mask image.Image, mp image.Point, scale int, v color.Gray) {
	for y := dr.Min.Y; y < dr.Max.Y; y++ {
		for x := dr.Min.X; x < dr.Max.X; x++ {
			_, _, _, a := mask.At(mp.X+x-dr.Min.X, mp.Y+y-dr.Min.Y).RGBA()
			if a < 0x8000 {
				continue
			}
			c.FillRect(c.cursor.X+x*scale, c.cursor.Y+y*scale, scale, scale, v)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ============================================================================
// Null panel
// ============================================================================

// nullPanel keeps the session running without a display attached.
type nullPanel struct {
	*Canvas
}

func newNullPanel(w, h int) *nullPanel { return &nullPanel{Canvas: NewCanvas(w, h)} }

func (p *nullPanel) Present(_ bool, done func())    { go done() }
func (p *nullPanel) SetContrast(_ int, done func()) { go done() }
func (p *nullPanel) PowerOn() error                 { return nil }
func (p *nullPanel) PowerOff() error                { return nil }
func (p *nullPanel) Close() error                   { return nil }

// openPanel builds the configured panel driver.
func openPanel(cfg DisplayConfig, logger *slog.Logger) (Panel, error) {
	switch cfg.Driver {
	case "ssd1306":
		p, err := openSSD1306Panel(cfg, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "terminal":
		return newTerminalPanel(cfg.Width, cfg.Height, nil), nil
	case "none", "":
		logger.Info("no display driver configured; frames are discarded")
		return newNullPanel(cfg.Width, cfg.Height), nil
	default:
		return nil, fmt.Errorf("unknown display driver %q", cfg.Driver)
	}
}
