// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"github.com/joeycumines/go-reactor/timerwheel"
)

type (
	// EventID identifies a registration: a table index plus a generation
	// counter, so ids of destroyed events never resolve, even after their
	// slot is reused. The zero value is reserved for the loop's wake source.
	EventID uint64

	// EventState is the registration state of an [Event].
	EventState uint8

	// CloseReason records why an [Event] was closed.
	CloseReason uint8

	// Spec describes a descriptor to register with [Loop.Register].
	Spec struct {
		// OnReady is invoked, at most once per cycle, when readiness is
		// observed and the event isn't suspended. Returning false closes
		// the event. Optional.
		OnReady func(ev *Event) bool

		// OnClose is invoked exactly once, before the event is destroyed.
		// The descriptor is still open, and may be closed via
		// [Event.CloseFD]. Optional.
		OnClose func(ev *Event)

		// Data is an opaque value, available via [Event.Data].
		Data any

		// FD is the non-blocking descriptor. Ownership passes to the loop,
		// if registration succeeds or fails with a RegistrationError.
		FD int

		// Interest is the set of conditions to watch, DefaultInterest if
		// zero. PeerClosed, Error and EdgeTriggered are always added.
		Interest Flags

		// RearmOnReady restarts the timeout each time OnReady returns true,
		// turning it into an idle timeout.
		RearmOnReady bool
	}

	// Event is a registered descriptor, owned by its [Loop]. All methods
	// must be called from the loop goroutine.
	Event struct {
		onReady  func(ev *Event) bool
		onClose  func(ev *Event)
		data     any
		loop     *Loop
		id       EventID
		timer    timerwheel.TimerID
		timeout  uint64 // ticks, 0 if none
		cycle    uint64 // last cycle it was dispatched
		fd       int
		regFD    int
		interest Flags
		flags    eventFlags
		state    EventState
		reason   CloseReason
		rearm    bool
	}

	eventFlags uint8
)

const (
	flagReadable eventFlags = 1 << iota
	flagWritable
	flagCloseRequested
	flagSuspended
)

const (
	// StateUnregistered is an event that was never successfully registered.
	StateUnregistered EventState = iota
	// StateRegistered is a live event.
	StateRegistered
	// StateClosing is an event whose OnClose is running or about to run.
	StateClosing
	// StateDestroyed is an event removed from its loop.
	StateDestroyed
)

const (
	// ReasonNone indicates the event hasn't been closed.
	ReasonNone CloseReason = iota
	// ReasonDone indicates OnReady returned false.
	ReasonDone
	// ReasonRequested indicates [Event.RequestClose] was called.
	ReasonRequested
	// ReasonPeerClosed indicates the peer shut down its writing half.
	ReasonPeerClosed
	// ReasonHangUp indicates the descriptor hung up.
	ReasonHangUp
	// ReasonError indicates an error condition on the descriptor.
	ReasonError
	// ReasonTimeout indicates the event's timer expired.
	ReasonTimeout
	// ReasonUnregistered indicates [Loop.Unregister] was called.
	ReasonUnregistered
	// ReasonShutdown indicates the loop terminated.
	ReasonShutdown
	// ReasonPanic indicates OnReady panicked.
	ReasonPanic
	// ReasonRegistrationFailed indicates the multiplexer rejected the
	// descriptor.
	ReasonRegistrationFailed
)

// String returns a human-readable representation of the state.
func (s EventState) String() string {
	switch s {
	case StateUnregistered:
		return "Unregistered"
	case StateRegistered:
		return "Registered"
	case StateClosing:
		return "Closing"
	case StateDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// String returns a human-readable representation of the reason.
func (r CloseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonDone:
		return "done"
	case ReasonRequested:
		return "requested"
	case ReasonPeerClosed:
		return "peer closed"
	case ReasonHangUp:
		return "hang-up"
	case ReasonError:
		return "error"
	case ReasonTimeout:
		return "timeout"
	case ReasonUnregistered:
		return "unregistered"
	case ReasonShutdown:
		return "shutdown"
	case ReasonPanic:
		return "panic"
	case ReasonRegistrationFailed:
		return "registration failed"
	default:
		return "unknown"
	}
}

// terminalReason maps terminal readiness to a close reason, most severe first.
func terminalReason(f Flags) CloseReason {
	switch {
	case f&Error != 0:
		return ReasonError
	case f&HangUp != 0:
		return ReasonHangUp
	default:
		return ReasonPeerClosed
	}
}

// ID returns the registration id. Events rejected by the multiplexer keep
// the id they were briefly assigned, which never resolves.
func (x *Event) ID() EventID { return x.id }

// Loop returns the owning loop.
func (x *Event) Loop() *Loop { return x.loop }

// Data returns [Spec.Data].
func (x *Event) Data() any { return x.data }

// State returns the registration state.
func (x *Event) State() EventState { return x.state }

// Reason returns why the event was closed, or ReasonNone.
func (x *Event) Reason() CloseReason { return x.reason }

// Interest returns the current interest set.
func (x *Event) Interest() Flags { return x.interest }

// FD returns the descriptor, or -1 once closed.
func (x *Event) FD() int { return x.fd }

// CloseFD closes the descriptor. It is idempotent, subsequent calls return
// nil, and [Event.FD] returns -1 afterwards.
func (x *Event) CloseFD() error {
	if x.fd < 0 {
		return nil
	}
	fd := x.fd
	x.fd = -1
	if x.loop != nil {
		x.loop.releaseFD(x.regFD, x.id)
	}
	return closeFD(fd)
}

// Readable reports whether the multiplexer has signaled readability since
// the last [Event.ClearReadable]. With edge-triggered registrations, it
// should be cleared only once reads return EAGAIN.
func (x *Event) Readable() bool { return x.flags&flagReadable != 0 }

// Writable reports whether the multiplexer has signaled writability since
// the last [Event.ClearWritable].
func (x *Event) Writable() bool { return x.flags&flagWritable != 0 }

// ClearReadable resets the readable flag.
func (x *Event) ClearReadable() { x.flags &^= flagReadable }

// ClearWritable resets the writable flag.
func (x *Event) ClearWritable() { x.flags &^= flagWritable }

// Suspend stops OnReady being invoked until [Event.Resume]. Terminal
// conditions and timeouts still close the event.
func (x *Event) Suspend() { x.flags |= flagSuspended }

// Resume reverses [Event.Suspend].
func (x *Event) Resume() { x.flags &^= flagSuspended }

// Suspended reports whether the event is suspended.
func (x *Event) Suspended() bool { return x.flags&flagSuspended != 0 }

// RequestClose marks the event to be closed once the current callback
// returns. Requests made from another event's callback, or between cycles,
// are carried out after the readiness pass of the current (or next) cycle,
// before timers are swept.
func (x *Event) RequestClose() {
	if x.flags&flagCloseRequested != 0 {
		return
	}
	x.flags |= flagCloseRequested
	if x.loop != nil && x.state == StateRegistered {
		x.loop.closing = append(x.loop.closing, x.id)
	}
}

// Closing reports whether the event is closing, or has been asked to.
func (x *Event) Closing() bool {
	return x.flags&flagCloseRequested != 0 || x.state >= StateClosing
}
