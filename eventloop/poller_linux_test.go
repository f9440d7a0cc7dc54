// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package eventloop

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// rawPipe returns a non-blocking pipe, leaving both ends to the test.
func rawPipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	return p[0], p[1]
}

func TestEpoll_tagRoundTrip(t *testing.T) {
	for _, tag := range []uint64{0, 1, 1<<32 | 5, math.MaxUint32, math.MaxUint64} {
		var ev unix.EpollEvent
		setEpollTag(&ev, tag)
		assert.Equal(t, tag, epollTag(&ev))
	}
}

func TestEpoll_flagsRoundTrip(t *testing.T) {
	for _, f := range []Flags{Readable, Writable, Priority, PeerClosed, HangUp, Error, DefaultInterest} {
		assert.Equal(t, f, epollToFlags(flagsToEpoll(f)), f.String())
	}
	assert.Equal(t, uint32(unix.EPOLLET), flagsToEpoll(EdgeTriggered))
	assert.Zero(t, epollToFlags(unix.EPOLLET))
}

func TestEpoll_waitReportsTag(t *testing.T) {
	mux, err := NewEpoll(8)
	require.NoError(t, err)
	r, w := testPipe(t)
	defer unix.Close(r)

	const tag = 7<<32 | 3
	require.NoError(t, mux.Control(OpAdd, r, Readable|EdgeTriggered, tag))
	assert.ErrorIs(t, mux.Control(OpAdd, r, Readable, tag), unix.EEXIST)

	events := make([]Readiness, 8)
	n, err := mux.Wait(events, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	requireOpenReadEnd(t, w)
	n, err = mux.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, uint64(tag), events[0].Tag)
	assert.Equal(t, Readable, events[0].Flags)

	// edge-triggered, no new data
	n, err = mux.Wait(events, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, mux.Control(OpModify, r, Readable, tag+1))
	n, err = mux.Wait(events, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, uint64(tag+1), events[0].Tag)

	require.NoError(t, mux.Control(OpDelete, r, 0, 0))
	assert.ErrorIs(t, mux.Control(OpDelete, r, 0, 0), unix.ENOENT)

	require.NoError(t, mux.Close())
	require.NoError(t, mux.Close())
	assert.ErrorIs(t, mux.Control(OpAdd, r, Readable, tag), ErrLoopTerminated)
	_, err = mux.Wait(events, 0)
	assert.ErrorIs(t, err, ErrLoopTerminated)
}

func TestWakeSource(t *testing.T) {
	wake, err := newWakeSource()
	require.NoError(t, err)
	defer wake.Close()

	mux, err := NewEpoll(1)
	require.NoError(t, err)
	defer mux.Close()
	require.NoError(t, mux.Control(OpAdd, wake.FD(), Readable, 0))

	require.NoError(t, wake.Wake())
	require.NoError(t, wake.Wake())

	events := make([]Readiness, 1)
	n, err := mux.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Zero(t, events[0].Tag)

	wake.drain()
	n, err = mux.Wait(events, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// runLoop runs l on a new goroutine, shutting it down on cleanup.
func runLoop(t *testing.T, l *Loop) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Shutdown(ctx)
	})
	return done
}

func TestLoop_epoll_readableUntilDone(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	r, w := testPipe(t)

	var got []byte
	closed := make(chan CloseReason, 1)
	_, err = l.Register(Spec{
		FD: r,
		OnReady: func(ev *Event) bool {
			buf := make([]byte, 64)
			for {
				n, err := unix.Read(ev.FD(), buf)
				if n > 0 {
					got = append(got, buf[:n]...)
				}
				if err != nil || n <= 0 {
					break
				}
			}
			return len(got) < 3
		},
		OnClose: func(ev *Event) { closed <- ev.Reason() },
	}, 0)
	require.NoError(t, err)

	runLoop(t, l)

	for _, b := range []byte("abc") {
		_, err := unix.Write(w, []byte{b})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case reason := <-closed:
		assert.Equal(t, ReasonDone, reason)
	case <-time.After(5 * time.Second):
		t.Fatal("event not closed")
	}
	assert.Equal(t, "abc", string(got))
	requireClosedReadEnd(t, w)
}

func TestLoop_epoll_hangUpClosesSuspended(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	r, w := rawPipe(t)

	closed := make(chan CloseReason, 1)
	id, err := l.Register(Spec{
		FD:      r,
		OnReady: func(ev *Event) bool { t.Error("suspended event dispatched"); return true },
		OnClose: func(ev *Event) { closed <- ev.Reason() },
	}, 0)
	require.NoError(t, err)
	l.Event(id).Suspend()

	runLoop(t, l)
	require.NoError(t, unix.Close(w))

	select {
	case reason := <-closed:
		assert.Equal(t, ReasonHangUp, reason)
	case <-time.After(5 * time.Second):
		t.Fatal("event not closed")
	}
}

func TestLoop_epoll_timeout(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	r, _ := testPipe(t)

	closed := make(chan CloseReason, 1)
	start := time.Now()
	_, err = l.Register(Spec{
		FD:      r,
		OnClose: func(ev *Event) { closed <- ev.Reason() },
	}, 20*time.Millisecond)
	require.NoError(t, err)

	runLoop(t, l)

	select {
	case reason := <-closed:
		assert.Equal(t, ReasonTimeout, reason)
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("event not closed")
	}
	assert.Equal(t, uint64(1), l.Stats().Timeouts)
}

func TestLoop_epoll_shutdownWakesIndefiniteWait(t *testing.T) {
	l, err := New(WithMaxWait(0))
	require.NoError(t, err)
	r, w := testPipe(t)

	closed := make(chan CloseReason, 1)
	_, err = l.Register(Spec{FD: r, OnClose: func(ev *Event) { closed <- ev.Reason() }}, 0)
	require.NoError(t, err)

	done := runLoop(t, l)
	require.Eventually(t, func() bool { return l.State() == StateSleeping }, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
	require.NoError(t, <-done)

	assert.Equal(t, ReasonShutdown, <-closed)
	assert.Equal(t, StateTerminated, l.State())
	requireClosedReadEnd(t, w)
}

func TestLoop_epoll_regularFileRejected(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	f, err := os.CreateTemp(t.TempDir(), "regular")
	require.NoError(t, err)
	defer f.Close()
	fd, err := unix.Dup(int(f.Fd()))
	require.NoError(t, err)

	var reasons []CloseReason
	id, err := l.Register(Spec{FD: fd, OnClose: func(ev *Event) { reasons = append(reasons, ev.Reason()) }}, 0)
	assert.Zero(t, id)

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, OpAdd, regErr.Op)
	assert.Equal(t, fd, regErr.FD)
	assert.ErrorIs(t, err, unix.EPERM)
	assert.Equal(t, []CloseReason{ReasonRegistrationFailed}, reasons)
	assert.Zero(t, l.Len())
}
