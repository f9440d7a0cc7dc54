// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package eventloop

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// epoll is the Linux [Multiplexer].
type epoll struct {
	buf    []unix.EpollEvent // preallocated, reused by every Wait
	epfd   int
	closed atomic.Bool
}

// NewEpoll is the default [MultiplexerFactory] on Linux. It creates a
// close-on-exec epoll instance, and a buffer of maxEvents records.
func NewEpoll(maxEvents int) (Multiplexer, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epoll{
		buf:  make([]unix.EpollEvent, maxEvents),
		epfd: epfd,
	}, nil
}

func (p *epoll) Wait(events []Readiness, timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrLoopTerminated
	}

	buf := p.buf
	if len(events) < len(buf) {
		buf = buf[:len(events)]
	}

	n, err := unix.EpollWait(p.epfd, buf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		events[i] = Readiness{
			Tag:   epollTag(&buf[i]),
			Flags: epollToFlags(buf[i].Events),
		}
	}

	return n, nil
}

func (p *epoll) Control(op Op, fd int, interest Flags, tag uint64) error {
	if p.closed.Load() {
		return ErrLoopTerminated
	}

	var ctl int
	switch op {
	case OpAdd:
		ctl = unix.EPOLL_CTL_ADD
	case OpModify:
		ctl = unix.EPOLL_CTL_MOD
	case OpDelete:
		// a non-nil event is required by kernels before 2.6.9
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	default:
		return unix.EINVAL
	}

	ev := unix.EpollEvent{Events: flagsToEpoll(interest)}
	setEpollTag(&ev, tag)
	return unix.EpollCtl(p.epfd, ctl, fd, &ev)
}

func (p *epoll) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.epfd)
}

// The 64-bit epoll_data union is laid out as the Fd and Pad fields on every
// architecture x/sys supports.
func setEpollTag(ev *unix.EpollEvent, tag uint64) {
	ev.Fd = int32(uint32(tag))
	ev.Pad = int32(uint32(tag >> 32))
}

func epollTag(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}

// flagsToEpoll converts Flags to epoll event flags.
func flagsToEpoll(f Flags) uint32 {
	var events uint32
	if f&Readable != 0 {
		events |= unix.EPOLLIN
	}
	if f&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	if f&Priority != 0 {
		events |= unix.EPOLLPRI
	}
	if f&PeerClosed != 0 {
		events |= unix.EPOLLRDHUP
	}
	if f&HangUp != 0 {
		events |= unix.EPOLLHUP
	}
	if f&Error != 0 {
		events |= unix.EPOLLERR
	}
	if f&EdgeTriggered != 0 {
		events |= unix.EPOLLET
	}
	return events
}

// epollToFlags converts epoll event flags to Flags.
func epollToFlags(events uint32) Flags {
	var f Flags
	if events&unix.EPOLLIN != 0 {
		f |= Readable
	}
	if events&unix.EPOLLOUT != 0 {
		f |= Writable
	}
	if events&unix.EPOLLPRI != 0 {
		f |= Priority
	}
	if events&unix.EPOLLRDHUP != 0 {
		f |= PeerClosed
	}
	if events&unix.EPOLLHUP != 0 {
		f |= HangUp
	}
	if events&unix.EPOLLERR != 0 {
		f |= Error
	}
	return f
}
