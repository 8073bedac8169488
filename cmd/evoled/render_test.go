package main

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"
)

func newTestRenderer(now time.Time) (*Renderer, *fakePanel) {
	p := newFakePanel()
	r := NewRenderer(p, rand.New(rand.NewPCG(1, 2)), func() time.Time { return now })
	return r, p
}

// litIn reports whether any pixel in [x0,x1) x [y0,y1) is on.
func litIn(c *Canvas, x0, y0, x1, y1 int) bool {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if c.Pixel(x, y) != 0 {
				return true
			}
		}
	}
	return false
}

func TestCanvas_FillRectClips(t *testing.T) {
	c := NewCanvas(8, 8)
	c.FillRect(-2, -2, 4, 4, colorOn)

	if c.Pixel(0, 0) == 0 || c.Pixel(1, 1) == 0 {
		t.Fatalf("expected clipped corner to be filled")
	}
	if c.Pixel(2, 2) != 0 {
		t.Fatalf("pixel (2,2) should be outside the rect")
	}

	c.ClearBuffer()
	if litIn(c, 0, 0, 8, 8) {
		t.Fatalf("ClearBuffer left pixels on")
	}
}

func TestCanvas_DrawLineIncludesEndpoints(t *testing.T) {
	c := NewCanvas(16, 16)
	c.DrawLine(10, 12, 2, 3, colorOn)

	if c.Pixel(10, 12) == 0 || c.Pixel(2, 3) == 0 {
		t.Fatalf("line end points not drawn")
	}
	if c.Pixel(15, 0) != 0 {
		t.Fatalf("unexpected pixel far from the line")
	}
}

func TestCanvas_MeasureAndWriteText(t *testing.T) {
	c := NewCanvas(64, 32)

	if got := c.MeasureText(defaultFace, 1, "abc"); got != 21 {
		t.Fatalf("MeasureText scale 1 = %d, want 21", got)
	}
	if got := c.MeasureText(defaultFace, 2, "abc"); got != 42 {
		t.Fatalf("MeasureText scale 2 = %d, want 42", got)
	}

	c.SetCursor(5, 2)
	c.WriteText(defaultFace, 1, "HI", colorOn)
	if c.cursor.X != 5+14 {
		t.Fatalf("cursor.X = %d, want %d", c.cursor.X, 5+14)
	}
	if !litIn(c, 5, 2, 19, 15) {
		t.Fatalf("expected glyph pixels inside the text box")
	}
	if litIn(c, 0, 0, 5, 32) || litIn(c, 19, 0, 64, 32) {
		t.Fatalf("glyph pixels outside the text box")
	}
}

func TestRenderer_ShortTitleIsCentred(t *testing.T) {
	r, p := newTestRenderer(time.Now())
	r.Render(CmdRenderFrame{Mode: ModePlayback, Player: PlayerSnapshot{Title: "ab"}})

	// 14 px wide on a 256 px panel: starts at 121.
	if !litIn(p.Canvas, 121, titleY, 135, titleY+13) {
		t.Fatalf("title not drawn at the centre")
	}
	if litIn(p.Canvas, 0, titleY, 121, titleY+13) || litIn(p.Canvas, 135, titleY, 256, titleY+13) {
		t.Fatalf("title pixels outside the centred box")
	}
}

func TestRenderer_LongTitleScrollsAfterSettle(t *testing.T) {
	r, _ := newTestRenderer(time.Now())
	s := PlayerSnapshot{Title: strings.Repeat("x", 40)} // 280 px

	for i := 0; i < scrollSettleFrames; i++ {
		r.Render(CmdRenderFrame{Mode: ModePlayback, Player: s})
	}
	if r.title.offset != 0 {
		t.Fatalf("offset = %d during settle, want 0", r.title.offset)
	}

	r.Render(CmdRenderFrame{Mode: ModePlayback, Player: s})
	r.Render(CmdRenderFrame{Mode: ModePlayback, Player: s})
	if r.title.offset != 2 {
		t.Fatalf("offset = %d after settle, want 2", r.title.offset)
	}

	r.ResetScroll()
	r.Render(CmdRenderFrame{Mode: ModePlayback, Player: s})
	if r.title.offset != 0 {
		t.Fatalf("offset = %d after ResetScroll, want 0", r.title.offset)
	}
}

func TestRenderer_SeekBarFill(t *testing.T) {
	r, p := newTestRenderer(time.Now())
	h := p.Height()
	inside := h - seekBarInset + 1

	r.Render(CmdRenderFrame{Mode: ModePlayback, Player: PlayerSnapshot{Ratio: 0.5}})
	// Fill is 0.5 * 250 = 125 px from x=3.
	if p.Pixel(127, inside) == 0 {
		t.Fatalf("expected fill at x=127")
	}
	if p.Pixel(200, inside) != 0 {
		t.Fatalf("unexpected fill at x=200")
	}
	// The border is always drawn.
	if p.Pixel(3, inside) == 0 || p.Pixel(p.Width()-4, inside) == 0 {
		t.Fatalf("seek bar border missing")
	}

	r.Render(CmdRenderFrame{Mode: ModePlayback, Player: PlayerSnapshot{Ratio: 0}})
	if p.Pixel(10, inside) != 0 {
		t.Fatalf("ratio 0 should leave the bar empty")
	}
}

func TestRenderer_StatusIcon(t *testing.T) {
	r, p := newTestRenderer(time.Now())
	iconY := p.Height() - iconRowInset
	x := p.Width() - 10

	r.Render(CmdRenderFrame{Mode: ModePlayback, Player: PlayerSnapshot{Status: StatusPaused}})
	// Pause rows are 0x6c: columns 1,2 on, column 0 off.
	if p.Pixel(x+1, iconY) == 0 || p.Pixel(x, iconY) != 0 {
		t.Fatalf("pause icon not drawn as expected")
	}

	r.Render(CmdRenderFrame{Mode: ModePlayback, Player: PlayerSnapshot{Status: StatusUnknown}})
	if litIn(p.Canvas, x, iconY, x+8, iconY+8) {
		t.Fatalf("unknown status should draw no icon")
	}
}

func TestVolumeLabel(t *testing.T) {
	cases := []struct {
		s    PlayerSnapshot
		want string
	}{
		{PlayerSnapshot{Volume: 40}, "40"},
		{PlayerSnapshot{Volume: 40, Muted: true}, "X"},
		{PlayerSnapshot{Volume: 0}, "X"},
	}
	for _, tc := range cases {
		if got := volumeLabel(tc.s); got != tc.want {
			t.Fatalf("volumeLabel(%+v) = %q, want %q", tc.s, got, tc.want)
		}
	}
}

func TestRenderer_ClockIsCentred(t *testing.T) {
	r, p := newTestRenderer(time.Date(2024, 5, 1, 9, 7, 0, 0, time.Local))
	r.Render(CmdRenderFrame{Mode: ModeClock})

	// "09:07" is 5 cells of 24 px: x in [68, 188).
	if !litIn(p.Canvas, 68, 0, 188, p.Height()) {
		t.Fatalf("clock not drawn")
	}
	if litIn(p.Canvas, 0, 0, 68, p.Height()) || litIn(p.Canvas, 188, 0, p.Width(), p.Height()) {
		t.Fatalf("clock pixels outside the centred box")
	}
}

func TestRenderer_ListSelectionInverted(t *testing.T) {
	r, p := newTestRenderer(time.Now())
	l := NewSelectableList([]ListItem{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	l.MoveSelection(1)

	r.Render(CmdRenderFrame{Mode: ModeListBrowser, List: l})

	if p.Pixel(p.Width()-1, listRowH+5) == 0 {
		t.Fatalf("selected row should be filled")
	}
	if p.Pixel(p.Width()-1, 5) != 0 || p.Pixel(p.Width()-1, 2*listRowH+5) != 0 {
		t.Fatalf("unselected rows should not be filled")
	}
}

func TestRenderer_ScreensaverDrawsSnake(t *testing.T) {
	r, p := newTestRenderer(time.Now())
	r.Render(CmdRenderFrame{Mode: ModeScreensaver})

	if !litIn(p.Canvas, 0, 0, p.Width(), p.Height()) {
		t.Fatalf("screensaver frame is blank")
	}
}
