package main

import (
	"image"
	"math/rand/v2"
)

const (
	snakeInitialLength = 10
	snakeGrowth        = 5
	snakePickups       = 7

	// snakeLaneHeight is the vertical distance between two sweeps.
	snakeLaneHeight = 4
)

// snake is the screensaver animation: a head sweeping the panel in a
// serpentine path, dragging a tail and eating pickups that lengthen it.
// When the sweep runs off the bottom everything starts over.
type snake struct {
	w, h int
	rng  *rand.Rand

	head    image.Point
	dir     int // +1 right, -1 left
	length  int
	tail    []image.Point
	pickups []image.Point
}

func newSnake(w, h int, rng *rand.Rand) *snake {
	s := &snake{w: w, h: h, rng: rng}
	s.reset()
	return s
}

func (s *snake) reset() {
	s.head = image.Pt(0, 0)
	s.dir = 1
	s.length = snakeInitialLength
	s.tail = s.tail[:0]
	s.pickups = s.pickups[:0]
	lanes := max(1, s.h/snakeLaneHeight)
	for range snakePickups {
		s.pickups = append(s.pickups, image.Pt(s.rng.IntN(max(1, s.w)), s.rng.IntN(lanes)*snakeLaneHeight))
	}
}

// step advances the head one pixel and handles pickups and the bottom edge.
func (s *snake) step() {
	s.tail = append(s.tail, s.head)
	if len(s.tail) > s.length {
		s.tail = s.tail[len(s.tail)-s.length:]
	}

	next := s.head.Add(image.Pt(s.dir, 0))
	if next.X < 0 || next.X >= s.w {
		next = image.Pt(s.head.X, s.head.Y+snakeLaneHeight)
		s.dir = -s.dir
	}
	s.head = next

	if s.head.Y >= s.h {
		s.reset()
		return
	}

	for i, p := range s.pickups {
		if p == s.head {
			s.length += snakeGrowth
			s.pickups = append(s.pickups[:i], s.pickups[i+1:]...)
			break
		}
	}
}

func (s *snake) draw(p Panel) {
	for _, pt := range s.pickups {
		p.FillRect(pt.X, pt.Y, 1, 1, colorOn)
	}
	for _, pt := range s.tail {
		p.FillRect(pt.X, pt.Y, 1, 1, colorOn)
	}
	p.FillRect(s.head.X, s.head.Y, 2, 2, colorOn)
}
