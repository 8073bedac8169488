//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// sysfsGPIORoot is the sysfs GPIO class directory.
var sysfsGPIORoot = "/sys/class/gpio"

// gpioLine is one exported sysfs GPIO input.
type gpioLine struct {
	num  int
	edge string
	fd   int
	buf  [1]byte
}

// openGPIOLine exports line num as an input with the given edge trigger
// ("none", "rising", "falling" or "both") and opens its value file.
func openGPIOLine(num int, edge string) (*gpioLine, error) {
	dir := filepath.Join(sysfsGPIORoot, "gpio"+strconv.Itoa(num))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeSysfs(filepath.Join(sysfsGPIORoot, "export"), strconv.Itoa(num)); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", num, err)
		}
		// udev needs a moment to fix permissions on a fresh export.
		time.Sleep(100 * time.Millisecond)
	}
	if err := writeSysfs(filepath.Join(dir, "direction"), "in"); err != nil {
		return nil, fmt.Errorf("gpio %d direction: %w", num, err)
	}
	if err := writeSysfs(filepath.Join(dir, "edge"), edge); err != nil {
		return nil, fmt.Errorf("gpio %d edge: %w", num, err)
	}

	fd, err := unix.Open(filepath.Join(dir, "value"), unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio %d value: %w", num, err)
	}
	l := &gpioLine{num: num, edge: edge, fd: fd}

	// A pending edge from before we opened would fire immediately; consume it.
	if _, err := l.Value(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func writeSysfs(path, value string) error {
	return os.WriteFile(path, []byte(value), 0)
}

// Value reads the current level (true = high).
func (l *gpioLine) Value() (bool, error) {
	n, err := unix.Pread(l.fd, l.buf[:], 0)
	if err != nil {
		return false, fmt.Errorf("read gpio %d: %w", l.num, err)
	}
	if n != 1 {
		return false, fmt.Errorf("read gpio %d: short read", l.num)
	}
	return l.buf[0] == '1', nil
}

func (l *gpioLine) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}

// watchGPIOLines blocks until ctx is canceled, calling onEdge from this
// goroutine for every edge interrupt on one of lines.
func watchGPIOLines(ctx context.Context, lines []*gpioLine, onEdge func(*gpioLine)) error {
	if len(lines) == 0 {
		return fmt.Errorf("no gpio lines to watch")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	byFd := make(map[int32]*gpioLine, len(lines))
	for _, l := range lines {
		if l.edge == "none" {
			continue
		}
		byFd[int32(l.fd)] = l
		// sysfs value files signal edges as priority data.
		event := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: int32(l.fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, l.fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add gpio %d: %w", l.num, err)
		}
	}

	if len(byFd) == 0 {
		return fmt.Errorf("no gpio lines with edge detection")
	}
	events := make([]unix.EpollEvent, len(byFd))
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.EpollWait(epfd, events, knobEpollWaitTimeoutMS)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			if l, ok := byFd[events[i].Fd]; ok {
				onEdge(l)
			}
		}
	}
}
