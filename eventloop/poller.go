// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"strings"
)

// MaxFDLimit is the maximum FD value we support.
const MaxFDLimit = 100000000 // 100M, enough for production with ulimit -n > 1M

// Flags is a set of readiness conditions, used both as the interest set of a
// registration, and as the conditions reported by [Multiplexer.Wait].
type Flags uint32

const (
	// Readable indicates the descriptor has data (or a pending connection)
	// to read.
	Readable Flags = 1 << iota
	// Writable indicates the descriptor can accept writes.
	Writable
	// Priority indicates out-of-band or urgent data.
	Priority
	// PeerClosed indicates the peer shut down its writing half.
	PeerClosed
	// HangUp indicates both halves of the connection are closed.
	HangUp
	// Error indicates an error condition on the descriptor.
	Error
	// EdgeTriggered requests a notification only on state transitions.
	EdgeTriggered
)

const (
	// DefaultInterest is the interest set used when [Spec.Interest] is zero.
	DefaultInterest = Readable | Writable | Priority | PeerClosed | HangUp | Error

	// TerminalFlags are the conditions that close an Event unconditionally.
	TerminalFlags = PeerClosed | HangUp | Error

	// always added to the interest of every registration
	requiredInterest = PeerClosed | Error | EdgeTriggered

	validFlags = DefaultInterest | EdgeTriggered
)

var flagNames = [...]string{
	`Readable`,
	`Writable`,
	`Priority`,
	`PeerClosed`,
	`HangUp`,
	`Error`,
	`EdgeTriggered`,
}

// String returns the set flag names, joined by `|`.
func (f Flags) String() string {
	if f == 0 {
		return `0`
	}
	var b strings.Builder
	for i, name := range flagNames {
		if f&(1<<i) == 0 {
			continue
		}
		if b.Len() != 0 {
			b.WriteByte('|')
		}
		b.WriteString(name)
	}
	if f&^validFlags != 0 {
		if b.Len() != 0 {
			b.WriteByte('|')
		}
		b.WriteString(`Unknown`)
	}
	return b.String()
}

// Op is a [Multiplexer.Control] operation.
type Op uint8

const (
	// OpAdd installs a descriptor.
	OpAdd Op = iota + 1
	// OpModify replaces the interest set of an installed descriptor.
	OpModify
	// OpDelete removes a descriptor.
	OpDelete
)

// String returns a human-readable representation of the op.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Readiness is a single record reported by [Multiplexer.Wait].
type Readiness struct {
	// Tag is the value supplied to [Multiplexer.Control], the [EventID] of
	// the registration, or 0 for the loop's wake source.
	Tag   uint64
	Flags Flags
}

// Multiplexer models the OS readiness facility (epoll). Implementations are
// used from a single goroutine, with the exception of [Waker.Wake].
type Multiplexer interface {
	// Wait blocks until at least one record is available, or timeoutMs
	// elapses (-1 meaning indefinitely), filling events and returning the
	// count. Interruption by a signal may be reported as (0, nil), or as
	// an error matching syscall.EINTR.
	Wait(events []Readiness, timeoutMs int) (int, error)

	// Control adds, modifies or deletes the registration of fd.
	Control(op Op, fd int, interest Flags, tag uint64) error

	// Close releases the multiplexer.
	Close() error
}

// Waker may be implemented by a [Multiplexer] that provides its own means to
// interrupt Wait. Wake must be safe to call from any goroutine. If the
// multiplexer doesn't implement Waker, the loop installs an eventfd.
type Waker interface {
	Wake() error
}

// MultiplexerFactory constructs a [Multiplexer] able to report up to
// maxEvents records per Wait.
type MultiplexerFactory func(maxEvents int) (Multiplexer, error)
