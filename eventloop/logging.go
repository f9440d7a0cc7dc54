// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"github.com/joeycumines/logiface"
)

// Logging is configured per loop via WithLogger, and is disabled when no
// logger is set, since the builders of a nil *logiface.Logger are no-ops.
//
// Levels:
//   - Crit: the multiplexer failed, and the loop is terminating
//   - Err: a callback panicked, or a descriptor could not be released
//   - Info: loop start and stop
//   - Debug: per-event lifecycle (registration, closure)

// eventFields adds the fields identifying ev.
func eventFields(b *logiface.Builder[logiface.Event], ev *Event) *logiface.Builder[logiface.Event] {
	return b.
		Uint64(`event`, uint64(ev.id)).
		Int(`fd`, ev.regFD)
}

func (l *Loop) logPanic(ev *Event, callback string, r any) {
	eventFields(l.logger.Err(), ev).
		Str(`callback`, callback).
		Err(PanicError{Value: r}).
		Log(`eventloop: callback panicked`)
}

func (l *Loop) logClosed(ev *Event) {
	if b := l.logger.Debug(); b.Enabled() {
		eventFields(b, ev).
			Str(`reason`, ev.reason.String()).
			Log(`eventloop: event closed`)
	}
}
