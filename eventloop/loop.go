// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joeycumines/go-reactor/timerwheel"
	"github.com/joeycumines/logiface"
)

var loopIDCounter atomic.Uint64

// Loop is a single-threaded reactor. See the package documentation for the
// cycle it runs, and which methods are safe to call from other goroutines.
type Loop struct { // betteralign:ignore
	state fastState

	mux    Multiplexer
	waker  Waker
	wake   *eventfdWaker // nil if mux implements Waker
	logger *logiface.Logger[logiface.Event]
	clock  func() time.Time
	epoch  time.Time
	wheel  *timerwheel.Wheel

	// loopDone is closed once the loop has terminated
	loopDone chan struct{}

	table   table
	fds     []EventID // descriptor to owning event, grown on demand
	events  []Readiness
	scratch []EventID
	closing []EventID // close requested, see Event.RequestClose

	stats loopStats

	loopGoroutineID atomic.Uint64

	id      uint64
	tick    time.Duration
	maxWait time.Duration
	now     uint64
	cycle   uint64

	doneOnce sync.Once
	wakeMu   sync.Mutex // guards waker against release
	released bool
}

// New creates a loop, acquiring its multiplexer and wake source. Failure to
// acquire either is reported as an [*InitError].
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	mux, err := cfg.multiplexer(cfg.maxEvents)
	if err != nil {
		return nil, &InitError{Op: `multiplexer`, Err: err}
	}

	loop := &Loop{
		mux:      mux,
		logger:   cfg.logger,
		clock:    cfg.clock,
		wheel:    timerwheel.New(cfg.levels, 0),
		loopDone: make(chan struct{}),
		table:    newTable(cfg.capacity),
		events:   make([]Readiness, cfg.maxEvents),
		id:       loopIDCounter.Add(1),
		tick:     cfg.tick,
		maxWait:  cfg.maxWait,
	}
	loop.epoch = loop.clock()

	if waker, ok := mux.(Waker); ok {
		loop.waker = waker
	} else {
		wake, err := newWakeSource()
		if err != nil {
			_ = mux.Close()
			return nil, &InitError{Op: `wake source`, Err: err}
		}
		// level-triggered, drained on every report
		if err := mux.Control(OpAdd, wake.FD(), Readable, 0); err != nil {
			_ = wake.Close()
			_ = mux.Close()
			return nil, &InitError{Op: `wake source`, Err: err}
		}
		loop.wake = wake
		loop.waker = wake
	}

	return loop, nil
}

// Run runs the event loop and blocks until fully stopped.
//
// Run blocks until the loop terminates, via Shutdown(), Close(), ctx
// cancellation, or a multiplexer failure. It returns nil after a requested
// shutdown, ctx.Err() after cancellation, or the (wrapped) wait error. In
// every case, all remaining events are closed with [ReasonShutdown], and the
// multiplexer is released.
//
// The calling goroutine is locked to its OS thread for the duration.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		switch l.state.Load() {
		case StateTerminating, StateTerminated:
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	// Close loopDone when run exits to signal completion to Shutdown waiters
	defer l.markDone()

	return l.run(ctx)
}

// run is the main loop goroutine.
func (l *Loop) run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	// Start context watcher goroutine to wake loop on cancellation
	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = l.wakeup()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	l.logger.Info().
		Uint64(`loop`, l.id).
		Int(`events`, l.table.live).
		Log(`eventloop: running`)

	l.refreshNow()

	for {
		if err := ctx.Err(); err != nil {
			l.state.BeginTermination()
			l.terminate()
			return err
		}

		if l.state.Load() == StateTerminating {
			l.terminate()
			return nil
		}

		if err := l.runCycle(); err != nil {
			l.state.BeginTermination()
			l.terminate()
			return err
		}
	}
}

// runCycle performs one wait, then dispatches readiness, then sweeps the
// timer wheel.
func (l *Loop) runCycle() error {
	l.closeRequested()

	timeout := l.waitTimeout()

	// a failed CAS means termination was requested
	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return nil
	}

	n, err := l.mux.Wait(l.events, timeout)

	l.state.TryTransition(StateSleeping, StateRunning)

	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			return nil
		}
		l.logger.Crit().
			Uint64(`loop`, l.id).
			Err(err).
			Log(`eventloop: wait failed, terminating loop`)
		return fmt.Errorf("eventloop: wait: %w", err)
	}

	n = min(n, len(l.events))

	l.refreshNow()
	l.cycle++
	l.stats.cycles.Add(1)

	for i := 0; i < n; i++ {
		r := l.events[i]
		l.events[i] = Readiness{}
		l.dispatch(r)
	}

	l.closeRequested()

	l.wheel.Run(l.now, l.expire)

	return nil
}

// waitTimeout determines how long to block in Wait, in milliseconds, -1
// meaning indefinitely.
func (l *Loop) waitTimeout() int {
	at, ok := l.wheel.WakeAt()
	if !ok {
		if l.maxWait <= 0 {
			return -1
		}
		return durationToMillis(l.maxWait)
	}

	if at <= l.now {
		return 0
	}

	d := time.Duration(math.MaxInt64)
	if ticks := at - l.now; ticks < uint64(math.MaxInt64/l.tick) {
		d = time.Duration(ticks) * l.tick
	}
	if l.maxWait > 0 && d > l.maxWait {
		d = l.maxWait
	}

	return durationToMillis(d)
}

// durationToMillis rounds up, so a wait never ends before a deadline.
func durationToMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	if d >= math.MaxInt32*time.Millisecond {
		return math.MaxInt32
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// refreshNow updates the current tick. It never moves backwards.
func (l *Loop) refreshNow() {
	elapsed := l.clock().Sub(l.epoch)
	if elapsed <= 0 {
		return
	}
	if now := uint64(elapsed / l.tick); now > l.now {
		l.now = now
	}
}

// ticks converts a positive duration to ticks, rounding up.
func (l *Loop) ticks(d time.Duration) uint64 {
	n := uint64(d / l.tick)
	if d%l.tick != 0 {
		n++
	}
	return n
}

func (l *Loop) dispatch(r Readiness) {
	if r.Tag == 0 {
		if l.wake != nil {
			l.wake.drain()
		}
		return
	}

	ev := l.table.get(EventID(r.Tag))
	if ev == nil || ev.state != StateRegistered || ev.cycle == l.cycle {
		return
	}
	ev.cycle = l.cycle

	if r.Flags&Readable != 0 {
		ev.flags |= flagReadable
	}
	if r.Flags&Writable != 0 {
		ev.flags |= flagWritable
	}

	// termination preempts suspension
	if r.Flags&TerminalFlags != 0 {
		l.destroy(ev, terminalReason(r.Flags))
		return
	}

	if ev.flags&flagCloseRequested != 0 {
		l.destroy(ev, ReasonRequested)
		return
	}

	if ev.flags&flagSuspended != 0 {
		return
	}

	l.stats.dispatches.Add(1)
	ok, panicked := l.callReady(ev)

	if ev.state != StateRegistered {
		// unregistered by the callback
		return
	}

	switch {
	case panicked:
		l.destroy(ev, ReasonPanic)
	case !ok:
		l.destroy(ev, ReasonDone)
	case ev.flags&flagCloseRequested != 0:
		l.destroy(ev, ReasonRequested)
	case ev.rearm && ev.timer != 0 && ev.timeout != 0:
		l.wheel.Link(ev.timer, l.now+ev.timeout)
	}
}

// closeRequested destroys every event still pending closure via
// [Event.RequestClose]. OnClose callbacks may add to the list.
func (l *Loop) closeRequested() {
	for i := 0; i < len(l.closing); i++ {
		if ev := l.table.get(l.closing[i]); ev != nil && ev.state == StateRegistered {
			l.destroy(ev, ReasonRequested)
		}
	}
	clear(l.closing)
	l.closing = l.closing[:0]
}

func (l *Loop) callReady(ev *Event) (ok, panicked bool) {
	if ev.onReady == nil {
		return true, false
	}
	defer func() {
		if r := recover(); r != nil {
			l.stats.panics.Add(1)
			l.logPanic(ev, `OnReady`, r)
			ok, panicked = false, true
		}
	}()
	return ev.onReady(ev), false
}

func (l *Loop) callClose(ev *Event) {
	if ev.onClose == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.stats.panics.Add(1)
			l.logPanic(ev, `OnClose`, r)
		}
	}()
	ev.onClose(ev)
}

// expire is the timer wheel callback.
func (l *Loop) expire(timer timerwheel.TimerID, owner uint64) {
	ev := l.table.get(EventID(owner))
	if ev == nil || ev.timer != timer || ev.state != StateRegistered {
		return
	}

	if ev.cycle == l.cycle {
		// already dispatched this cycle, fire on the next
		l.wheel.Link(timer, l.now)
		return
	}
	ev.cycle = l.cycle

	l.stats.timeouts.Add(1)
	l.destroy(ev, ReasonTimeout)
}

// destroy closes a registered event: OnClose, then removal from the
// multiplexer, then closure of the descriptor, then release of the slot.
func (l *Loop) destroy(ev *Event, reason CloseReason) {
	if ev.state != StateRegistered {
		return
	}
	ev.state = StateClosing
	ev.reason = reason

	if ev.timer != 0 {
		l.wheel.Free(ev.timer)
		ev.timer = 0
	}

	l.callClose(ev)

	if fd := ev.fd; fd >= 0 {
		if err := l.mux.Control(OpDelete, fd, 0, uint64(ev.id)); err != nil {
			eventFields(l.logger.Debug(), ev).
				Err(err).
				Log(`eventloop: multiplexer delete failed`)
		}
		if err := ev.CloseFD(); err != nil {
			eventFields(l.logger.Err(), ev).
				Err(err).
				Log(`eventloop: close failed`)
		}
	}

	l.releaseFD(ev.regFD, ev.id)
	l.table.remove(ev.id)
	ev.state = StateDestroyed
	ev.onReady = nil
	ev.onClose = nil

	l.stats.destructions.Add(1)
	l.stats.live.Add(-1)
	l.logClosed(ev)
}

// Register installs spec.FD, edge-triggered, returning the id carried by its
// readiness records. If timeout is positive, the event is closed with
// [ReasonTimeout] once it elapses, rounded up to whole ticks.
//
// Validation failures ([ErrFDOutOfRange], [ErrInvalidSpec],
// [ErrLoopTerminated]) leave the descriptor with the caller. A descriptor
// already owned by a live Event is rejected with a [*RegistrationError]
// wrapping [ErrFDAlreadyRegistered], and also stays with the caller. If the
// multiplexer rejects the descriptor, OnClose is invoked, the descriptor is
// closed, and a [*RegistrationError] is returned.
func (l *Loop) Register(spec Spec, timeout time.Duration) (EventID, error) {
	if !l.state.CanAcceptWork() {
		return 0, ErrLoopTerminated
	}
	if spec.FD < 0 || spec.FD >= MaxFDLimit {
		return 0, ErrFDOutOfRange
	}
	if spec.Interest&^validFlags != 0 {
		return 0, ErrInvalidSpec
	}
	if spec.FD < len(l.fds) && l.fds[spec.FD] != 0 {
		return 0, &RegistrationError{FD: spec.FD, Op: OpAdd, Err: ErrFDAlreadyRegistered}
	}

	interest := spec.Interest
	if interest == 0 {
		interest = DefaultInterest
	}
	interest |= requiredInterest

	ev := &Event{
		onReady:  spec.OnReady,
		onClose:  spec.OnClose,
		data:     spec.Data,
		loop:     l,
		fd:       spec.FD,
		regFD:    spec.FD,
		interest: interest,
		rearm:    spec.RearmOnReady,
	}
	ev.id = l.table.insert(ev)

	if err := l.mux.Control(OpAdd, spec.FD, interest, uint64(ev.id)); err != nil {
		l.table.remove(ev.id)
		ev.state = StateClosing
		ev.reason = ReasonRegistrationFailed
		l.callClose(ev)
		_ = ev.CloseFD()
		ev.state = StateDestroyed
		eventFields(l.logger.Debug(), ev).
			Err(err).
			Log(`eventloop: registration failed`)
		return 0, &RegistrationError{FD: spec.FD, Op: OpAdd, Err: err}
	}

	l.claimFD(spec.FD, ev.id)
	ev.state = StateRegistered
	l.stats.registrations.Add(1)
	l.stats.live.Add(1)

	if timeout > 0 {
		l.refreshNow()
		l.armTimer(ev, l.ticks(timeout))
	}

	if b := l.logger.Debug(); b.Enabled() {
		eventFields(b, ev).
			Stringer(`interest`, interest).
			Dur(`timeout`, timeout).
			Log(`eventloop: event registered`)
	}

	return ev.id, nil
}

// Unregister closes the event with [ReasonUnregistered]. Unknown or stale
// ids are ignored.
func (l *Loop) Unregister(id EventID) {
	if ev := l.table.get(id); ev != nil {
		l.destroy(ev, ReasonUnregistered)
	}
}

// Modify replaces the interest set of a registered event, zero meaning
// [DefaultInterest]. PeerClosed, Error and EdgeTriggered are always added.
func (l *Loop) Modify(id EventID, interest Flags) error {
	ev, err := l.lookup(id)
	if err != nil {
		return err
	}
	if ev.fd < 0 {
		return ErrNotRegistered
	}
	if interest&^validFlags != 0 {
		return ErrInvalidSpec
	}
	if interest == 0 {
		interest = DefaultInterest
	}
	interest |= requiredInterest

	if err := l.mux.Control(OpModify, ev.fd, interest, uint64(id)); err != nil {
		return &RegistrationError{FD: ev.fd, Op: OpModify, Err: err}
	}
	ev.interest = interest
	return nil
}

// SetTimeout re-arms the event's timer to fire timeout from now, or
// disarms it if timeout <= 0.
func (l *Loop) SetTimeout(id EventID, timeout time.Duration) error {
	ev, err := l.lookup(id)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		if ev.timer != 0 {
			l.wheel.Free(ev.timer)
			ev.timer = 0
		}
		ev.timeout = 0
		return nil
	}
	l.refreshNow()
	l.armTimer(ev, l.ticks(timeout))
	return nil
}

func (l *Loop) armTimer(ev *Event, ticks uint64) {
	if ev.timer == 0 {
		ev.timer = l.wheel.Alloc(uint64(ev.id))
	}
	ev.timeout = ticks
	l.wheel.Link(ev.timer, l.now+ticks)
}

func (l *Loop) lookup(id EventID) (*Event, error) {
	ev := l.table.get(id)
	if ev == nil || ev.state != StateRegistered {
		return nil, ErrNotRegistered
	}
	return ev, nil
}

func (l *Loop) claimFD(fd int, id EventID) {
	if fd >= len(l.fds) {
		// Grow in chunks to minimize allocations
		newSize := max(fd*2+1, 64)
		if newSize > MaxFDLimit {
			newSize = MaxFDLimit
		}
		newFds := make([]EventID, newSize)
		copy(newFds, l.fds)
		l.fds = newFds
	}
	l.fds[fd] = id
}

func (l *Loop) releaseFD(fd int, id EventID) {
	if fd >= 0 && fd < len(l.fds) && l.fds[fd] == id {
		l.fds[fd] = 0
	}
}

// Event returns the registered event identified by id, or nil.
func (l *Loop) Event(id EventID) *Event {
	if ev, err := l.lookup(id); err == nil {
		return ev
	}
	return nil
}

// Len returns the number of registered events.
func (l *Loop) Len() int {
	return l.table.live
}

// Now returns the current tick, as of the last refresh.
func (l *Loop) Now() uint64 {
	return l.now
}

// Tick returns the duration of one tick.
func (l *Loop) Tick() time.Duration {
	return l.tick
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return l.stats.snapshot()
}

// Shutdown gracefully shuts down the event loop.
//
// Every live event is closed with [ReasonShutdown], then the multiplexer is
// released. Shutdown blocks until termination completes or ctx expires,
// except when called from a loop callback, in which case it returns
// immediately, and the loop terminates once the callback returns. If the
// loop was never run, it terminates on the calling goroutine.
func (l *Loop) Shutdown(ctx context.Context) error {
	prev, ok := l.state.BeginTermination()
	if !ok && prev == StateTerminated {
		return ErrLoopTerminated
	}

	if ok {
		if prev == StateAwake {
			l.terminate()
			return nil
		}
		_ = l.wakeup()
	}

	if l.isLoopThread() {
		return nil
	}

	// Wait for termination via channel, NOT polling
	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close requests termination without waiting for it. If the loop was never
// run, resources are released immediately.
func (l *Loop) Close() error {
	prev, ok := l.state.BeginTermination()
	if !ok {
		if prev == StateTerminated {
			return ErrLoopTerminated
		}
		return nil
	}
	if prev == StateAwake {
		l.terminate()
		return nil
	}
	_ = l.wakeup()
	return nil
}

// Done returns a channel that is closed once the loop has terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.loopDone
}

// terminate closes every event, then releases the wake source and the
// multiplexer. It runs on the loop goroutine, or on the Shutdown or Close
// caller if the loop never ran.
func (l *Loop) terminate() {
	ids := l.table.ids(l.scratch[:0])
	for _, id := range ids {
		if ev := l.table.get(id); ev != nil {
			l.destroy(ev, ReasonShutdown)
		}
	}
	clear(ids)
	l.scratch = ids[:0]

	l.wakeMu.Lock()
	l.released = true
	if l.wake != nil {
		_ = l.mux.Control(OpDelete, l.wake.FD(), 0, 0)
		if err := l.wake.Close(); err != nil {
			l.logger.Err().Err(err).Log(`eventloop: wake source close failed`)
		}
	}
	if err := l.mux.Close(); err != nil {
		l.logger.Err().Err(err).Log(`eventloop: multiplexer close failed`)
	}
	l.wakeMu.Unlock()

	l.state.Store(StateTerminated)

	l.logger.Info().
		Uint64(`loop`, l.id).
		Uint64(`cycles`, l.stats.cycles.Load()).
		Log(`eventloop: terminated`)

	l.markDone()
}

func (l *Loop) markDone() {
	l.doneOnce.Do(func() { close(l.loopDone) })
}

// wakeup interrupts a blocked Wait. Safe from any goroutine.
func (l *Loop) wakeup() error {
	l.wakeMu.Lock()
	defer l.wakeMu.Unlock()
	if l.released {
		return ErrLoopTerminated
	}
	return l.waker.Wake()
}

// isLoopThread checks if we're on the loop goroutine.
func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}
