// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package eventloop

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// eventfdWaker is the loop's wake source when the [Multiplexer] doesn't
// implement [Waker]: a non-blocking eventfd, registered under tag 0.
type eventfdWaker struct {
	fd int
}

func newWakeSource() (*eventfdWaker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdWaker{fd: fd}, nil
}

func (w *eventfdWaker) FD() int { return w.fd }

// Wake increments the counter. EAGAIN means the counter is saturated, so a
// wake is already pending.
func (w *eventfdWaker) Wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(w.fd, buf[:]); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// drain resets the counter, which a single read does.
func (w *eventfdWaker) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(w.fd, buf[:]); err != unix.EINTR {
			return
		}
	}
}

func (w *eventfdWaker) Close() error {
	return unix.Close(w.fd)
}
