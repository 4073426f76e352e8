//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"magnetswipe"
)

// evdevBackend reads a magnetometer exposed as a Linux input device.
type evdevBackend struct {
	path  string
	scale float32
}

// epollWaitMS bounds each epoll_wait so cancellation is noticed promptly.
const epollWaitMS = 250

// Run waits on the device with epoll and turns EV_ABS frames into samples.
// The rate hint is ignored: the driver decides the cadence.
func (b *evdevBackend) Run(ctx context.Context, _ time.Duration, sink readingSink) error {
	f, err := os.OpenFile(b.path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", b.path, err)
	}
	defer f.Close()

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fd := int(f.Fd())
	event := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
	}

	epollEvents := make([]unix.EpollEvent, 1)
	buf := make([]byte, inputEventSize*64)
	events := make([]inputEvent, 0, 64)
	frame := newEvdevFrame(b.scale)
	reliable := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollWaitMS)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}
		if n == 0 {
			continue
		}
		if epollEvents[0].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			return fmt.Errorf("device error/hangup: %s", b.path)
		}

		nr, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("read from %s: %w", b.path, err)
		}

		events, _, err = decodeInputEvents(buf[:nr], events[:0])
		if err != nil {
			// Partial reads never happen on evdev; skip malformed chunks.
			continue
		}

		for _, ev := range events {
			s, ok, resync := frame.feed(ev)
			if resync {
				reliable = false
				sink.Accuracy(magnetswipe.AccuracyUnreliable)
				continue
			}
			if !ok {
				continue
			}
			if !reliable {
				reliable = true
				sink.Accuracy(magnetswipe.AccuracyHigh)
			}
			sink.Sample(s.Vector, s.Timestamp)
		}
	}
}
