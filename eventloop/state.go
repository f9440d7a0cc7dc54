// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateAwake → StateRunning               [Run()]
//	StateAwake → StateTerminating           [Shutdown() or Close() before Run]
//	StateRunning → StateSleeping            [before Multiplexer.Wait, via CAS]
//	StateSleeping → StateRunning            [after Multiplexer.Wait, via CAS]
//	StateRunning → StateTerminating         [Shutdown(), Close(), ctx, wait error]
//	StateSleeping → StateTerminating        [Shutdown(), Close(), ctx]
//	StateTerminating → StateTerminated      [teardown complete]
//	StateTerminated → (terminal)
//
// Use TryTransition (CAS) for the temporary states (Running, Sleeping), and
// Store only for the irreversible ones.
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = 0
	// StateTerminated indicates the loop has been stopped and its resources
	// released.
	StateTerminated LoopState = 1
	// StateSleeping indicates the loop is blocked in Multiplexer.Wait.
	StateSleeping LoopState = 2
	// StateRunning indicates the loop is dispatching readiness or timers.
	StateRunning LoopState = 3
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating LoopState = 4
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding, the only
// loop field written from goroutines other than the loop's.
type fastState struct { // betteralign:ignore
	_ [64]byte      // Cache line padding (before value) //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      // Pad to complete cache line (64 - 8 = 56) //nolint:unused
}

// Load returns the current state atomically.
func (s *fastState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state, without validation.
func (s *fastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *fastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// BeginTermination moves any non-terminal state to StateTerminating,
// returning the state it replaced, and false if the loop was already
// terminating or terminated.
func (s *fastState) BeginTermination() (LoopState, bool) {
	for {
		current := s.Load()
		if current == StateTerminating || current == StateTerminated {
			return current, false
		}
		if s.TryTransition(current, StateTerminating) {
			return current, true
		}
	}
}

// IsRunning returns true if the loop is currently running or sleeping.
func (s *fastState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateSleeping
}

// CanAcceptWork returns true if new registrations are accepted.
func (s *fastState) CanAcceptWork() bool {
	state := s.Load()
	return state == StateAwake || state == StateRunning || state == StateSleeping
}
