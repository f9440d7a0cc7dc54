// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package listener

import (
	"net/netip"
	"sync"
	"syscall"
	"testing"

	"github.com/joeycumines/go-reactor/eventloop"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type (
	// fakeSockets hands out eventfds in place of sockets, so the loop can
	// register (and close) them like the real thing.
	fakeSockets struct {
		socketErr error
		bindErr   error
		listenErr error
		accepts   []fakeAccept
		closed    []int
		options   []SocketOption
		bound     netip.AddrPort
		mu        sync.Mutex
		listenFD  int
		backlog   int
		calls     int
	}

	fakeAccept struct {
		err  error
		peer netip.AddrPort
	}
)

func newFakeSockets() *fakeSockets {
	return &fakeSockets{listenFD: -1}
}

func newEventFD() (int, error) {
	return unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
}

// queue appends connections from each peer, in order.
func (s *fakeSockets) queue(peers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, peer := range peers {
		s.accepts = append(s.accepts, fakeAccept{peer: netip.MustParseAddrPort(peer)})
	}
}

func (s *fakeSockets) queueErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepts = append(s.accepts, fakeAccept{err: err})
}

func (s *fakeSockets) closedFDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.closed...)
}

func (s *fakeSockets) acceptCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSockets) Socket(addr netip.AddrPort) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socketErr != nil {
		return -1, s.socketErr
	}
	fd, err := newEventFD()
	if err != nil {
		return -1, err
	}
	s.listenFD = fd
	return fd, nil
}

func (s *fakeSockets) SetOption(fd int, opt SocketOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = append(s.options, opt)
	return nil
}

func (s *fakeSockets) Bind(fd int, addr netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindErr != nil {
		return s.bindErr
	}
	if addr.Port() == 0 {
		addr = netip.AddrPortFrom(addr.Addr(), 4242)
	}
	s.bound = addr
	return nil
}

func (s *fakeSockets) Listen(fd int, backlog int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listenErr != nil {
		return s.listenErr
	}
	s.backlog = backlog
	return nil
}

func (s *fakeSockets) Accept(fd int) (int, netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if fd != s.listenFD {
		return -1, netip.AddrPort{}, syscall.EBADF
	}
	if len(s.accepts) == 0 {
		return -1, netip.AddrPort{}, syscall.EAGAIN
	}
	next := s.accepts[0]
	s.accepts = s.accepts[1:]
	if next.err != nil {
		return -1, netip.AddrPort{}, next.err
	}
	conn, err := newEventFD()
	if err != nil {
		return -1, netip.AddrPort{}, err
	}
	return conn, next.peer, nil
}

func (s *fakeSockets) Getsockname(fd int) (netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound, nil
}

func (s *fakeSockets) Close(fd int) error {
	s.mu.Lock()
	s.closed = append(s.closed, fd)
	s.mu.Unlock()
	return unix.Close(fd)
}

// newTestLoop returns a loop that is never run, closed on cleanup.
func newTestLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l, err := eventloop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// drain invokes the listener's readiness callback, as the loop would.
func drain(t *testing.T, l *eventloop.Loop, x *Listener) {
	t.Helper()
	ev := l.Event(x.ID())
	require.NotNil(t, ev)
	require.True(t, x.onReady(ev))
}
