// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// Stats is a snapshot of loop counters, see [Loop.Stats].
type Stats struct {
	// Cycles is the number of completed waits.
	Cycles uint64
	// Dispatches is the number of OnReady invocations.
	Dispatches uint64
	// Timeouts is the number of events closed by their timer.
	Timeouts uint64
	// Registrations is the number of successful registrations.
	Registrations uint64
	// Destructions is the number of events closed, for any reason.
	Destructions uint64
	// Panics is the number of recovered callback panics.
	Panics uint64
	// Live is the number of registered events.
	Live int64
}

// loopStats is written by the loop goroutine and read from any goroutine.
type loopStats struct {
	cycles        atomic.Uint64
	dispatches    atomic.Uint64
	timeouts      atomic.Uint64
	registrations atomic.Uint64
	destructions  atomic.Uint64
	panics        atomic.Uint64
	live          atomic.Int64
}

func (s *loopStats) snapshot() Stats {
	return Stats{
		Cycles:        s.cycles.Load(),
		Dispatches:    s.dispatches.Load(),
		Timeouts:      s.timeouts.Load(),
		Registrations: s.registrations.Load(),
		Destructions:  s.destructions.Load(),
		Panics:        s.panics.Load(),
		Live:          s.live.Load(),
	}
}
