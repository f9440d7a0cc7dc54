// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrFDOutOfRange is returned for negative descriptors, or those at or
	// above MaxFDLimit.
	ErrFDOutOfRange = errors.New("eventloop: fd out of range (max 100000000)")

	// ErrFDAlreadyRegistered is wrapped by the RegistrationError returned when
	// registering a descriptor that is already owned by a live Event.
	ErrFDAlreadyRegistered = errors.New("eventloop: fd already registered")

	// ErrInvalidSpec is returned when a Spec carries unsupported interest flags.
	ErrInvalidSpec = errors.New("eventloop: invalid event spec")

	// ErrNotRegistered is returned for unknown or stale event ids, or events
	// whose descriptor has already been closed.
	ErrNotRegistered = errors.New("eventloop: event not registered")
)

// InitError indicates the loop could not acquire an OS resource during
// [New]: the multiplexer, or the wake source.
type InitError struct {
	Err error
	Op  string
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("eventloop: init %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InitError) Unwrap() error {
	return e.Err
}

// RegistrationError indicates an add or modify request for a descriptor was
// rejected. When the multiplexer rejected it, by the time it is returned from
// [Loop.Register], the Event has been closed, and its descriptor released.
// If Err is [ErrFDAlreadyRegistered], no Event was created, and the
// descriptor remains the caller's to close.
type RegistrationError struct {
	Err error
	FD  int
	Op  Op
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("eventloop: %s fd %d: %v", e.Op, e.FD, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: callback panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As] for error matching
// through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
