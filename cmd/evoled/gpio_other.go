//go:build !linux

package main

import (
	"context"
	"errors"
)

var errGPIOUnsupported = errors.New("gpio edge detection requires linux")

type gpioLine struct {
	num int
}

func openGPIOLine(num int, edge string) (*gpioLine, error) {
	return nil, errGPIOUnsupported
}

func (l *gpioLine) Value() (bool, error) { return false, errGPIOUnsupported }
func (l *gpioLine) Close() error         { return nil }

func watchGPIOLines(ctx context.Context, lines []*gpioLine, onEdge func(*gpioLine)) error {
	return errGPIOUnsupported
}
