package main

import (
	"image"
	"math/rand/v2"
	"testing"
	"time"
)

func TestSnake_SerpentineAndReset(t *testing.T) {
	s := newSnake(20, 8, rand.New(rand.NewPCG(3, 4)))
	s.pickups = nil

	for range 19 {
		s.step()
	}
	if s.head != image.Pt(19, 0) || s.dir != 1 {
		t.Fatalf("head=%v dir=%d, want (19,0) moving right", s.head, s.dir)
	}

	s.step()
	if s.head != image.Pt(19, snakeLaneHeight) || s.dir != -1 {
		t.Fatalf("head=%v dir=%d, want next lane moving left", s.head, s.dir)
	}

	for range 19 {
		s.step()
	}
	if s.head != image.Pt(0, snakeLaneHeight) {
		t.Fatalf("head=%v, want (0,%d)", s.head, snakeLaneHeight)
	}

	// Passing the bottom restarts the animation.
	s.step()
	if s.head != image.Pt(0, 0) || s.length != snakeInitialLength || len(s.tail) != 0 {
		t.Fatalf("expected reset, got head=%v length=%d tail=%d", s.head, s.length, len(s.tail))
	}
	if len(s.pickups) != snakePickups {
		t.Fatalf("pickups=%d after reset, want %d", len(s.pickups), snakePickups)
	}
}

func TestSnake_PickupGrowsTail(t *testing.T) {
	s := newSnake(64, 16, rand.New(rand.NewPCG(5, 6)))
	s.pickups = []image.Point{{X: 3, Y: 0}}

	for range 3 {
		s.step()
	}
	if s.length != snakeInitialLength+snakeGrowth {
		t.Fatalf("length=%d, want %d", s.length, snakeInitialLength+snakeGrowth)
	}
	if len(s.pickups) != 0 {
		t.Fatalf("pickup not consumed")
	}
}

func TestSnake_TailBoundedAndPickupsOnLanes(t *testing.T) {
	s := newSnake(defaultPanelWidth, defaultPanelHeight, rand.New(rand.NewPCG(7, 8)))

	for _, p := range s.pickups {
		if p.X < 0 || p.X >= defaultPanelWidth || p.Y%snakeLaneHeight != 0 || p.Y >= defaultPanelHeight {
			t.Fatalf("pickup %v off the sweep path", p)
		}
	}

	for range 5000 {
		s.step()
		if len(s.tail) > s.length {
			t.Fatalf("tail=%d exceeds length=%d", len(s.tail), s.length)
		}
	}
}

func TestSnake_PanelShorterThanLane(t *testing.T) {
	s := newSnake(8, 3, rand.New(rand.NewPCG(9, 10)))
	for _, p := range s.pickups {
		if p.Y != 0 {
			t.Fatalf("pickup %v off the only lane", p)
		}
	}
	for range 20 {
		s.step()
	}

	r := NewRenderer(newNullPanel(128, 3), rand.New(rand.NewPCG(1, 2)), time.Now)
	r.ResetAnimation()
}
