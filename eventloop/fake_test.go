// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type (
	// fakeMux is a Multiplexer, and Waker, driven by the test. Unless block
	// is set, Wait returns immediately.
	fakeMux struct {
		regs     map[int]fakeReg
		ctlErr   func(op Op, fd int) error
		signal   chan struct{}
		queue    []Readiness
		waitErrs []error
		timeouts []int
		ops      []fakeOp
		mu       sync.Mutex
		wakes    int
		closed   bool
		block    bool
	}

	fakeReg struct {
		tag      uint64
		interest Flags
	}

	fakeOp struct {
		tag      uint64
		fd       int
		op       Op
		interest Flags
	}

	fakeClock struct {
		now time.Time
		mu  sync.Mutex
	}
)

var errFakeClosed = errors.New(`fake: closed`)

func newFakeMux() *fakeMux {
	return &fakeMux{
		regs:   make(map[int]fakeReg),
		signal: make(chan struct{}, 1),
	}
}

func (m *fakeMux) factory(maxEvents int) (Multiplexer, error) { return m, nil }

func (m *fakeMux) Wait(events []Readiness, timeoutMs int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timeouts = append(m.timeouts, timeoutMs)

	if m.closed {
		return 0, errFakeClosed
	}

	if len(m.waitErrs) != 0 {
		err := m.waitErrs[0]
		m.waitErrs = m.waitErrs[1:]
		return 0, err
	}

	if len(m.queue) == 0 && m.block {
		var deadline <-chan time.Time
		if timeoutMs >= 0 {
			timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
			defer timer.Stop()
			deadline = timer.C
		}
		m.mu.Unlock()
		select {
		case <-m.signal:
		case <-deadline:
		}
		m.mu.Lock()
	}

	n := copy(events, m.queue)
	m.queue = append(m.queue[:0], m.queue[n:]...)
	return n, nil
}

func (m *fakeMux) Control(op Op, fd int, interest Flags, tag uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ops = append(m.ops, fakeOp{op: op, fd: fd, interest: interest, tag: tag})

	if m.closed {
		return errFakeClosed
	}
	if m.ctlErr != nil {
		if err := m.ctlErr(op, fd); err != nil {
			return err
		}
	}

	_, exists := m.regs[fd]
	switch op {
	case OpAdd:
		if exists {
			return fmt.Errorf(`fake: fd %d exists`, fd)
		}
		m.regs[fd] = fakeReg{interest: interest, tag: tag}
	case OpModify:
		if !exists {
			return fmt.Errorf(`fake: fd %d not found`, fd)
		}
		m.regs[fd] = fakeReg{interest: interest, tag: tag}
	case OpDelete:
		if !exists {
			return fmt.Errorf(`fake: fd %d not found`, fd)
		}
		delete(m.regs, fd)
	}
	return nil
}

func (m *fakeMux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMux) Wake() error {
	m.mu.Lock()
	m.wakes++
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *fakeMux) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// push queues a record for the current registration of fd.
func (m *fakeMux) push(fd int, flags Flags) {
	m.mu.Lock()
	reg, ok := m.regs[fd]
	if !ok {
		m.mu.Unlock()
		panic(fmt.Sprintf(`fake: push for unregistered fd %d`, fd))
	}
	m.queue = append(m.queue, Readiness{Tag: reg.tag, Flags: flags})
	m.mu.Unlock()
	m.notify()
}

func (m *fakeMux) pushTag(tag uint64, flags Flags) {
	m.mu.Lock()
	m.queue = append(m.queue, Readiness{Tag: tag, Flags: flags})
	m.mu.Unlock()
	m.notify()
}

func (m *fakeMux) registration(fd int) (fakeReg, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[fd]
	return reg, ok
}

func (m *fakeMux) lastTimeout() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timeouts) == 0 {
		return 0
	}
	return m.timeouts[len(m.timeouts)-1]
}

func (m *fakeMux) waits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timeouts)
}

func (m *fakeMux) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newStepLoop returns a loop backed by a non-blocking fakeMux and a
// fakeClock, driven one cycle at a time, on the test goroutine, via step.
func newStepLoop(t *testing.T, opts ...LoopOption) (*Loop, *fakeMux, *fakeClock) {
	t.Helper()
	mux := newFakeMux()
	clock := newFakeClock()
	l, err := New(append([]LoopOption{
		WithMultiplexer(mux.factory),
		WithClock(clock.Now),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if _, ok := l.state.BeginTermination(); ok {
			l.terminate()
		}
	})
	return l, mux, clock
}

func step(t *testing.T, l *Loop) {
	t.Helper()
	l.state.TryTransition(StateAwake, StateRunning)
	require.NoError(t, l.runCycle())
}
