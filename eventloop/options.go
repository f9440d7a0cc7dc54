// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-reactor/timerwheel"
	"github.com/joeycumines/logiface"
)

const (
	// DefaultMaxEvents is the default size of the readiness buffer.
	DefaultMaxEvents = 1024

	// DefaultTick is the default timer resolution.
	DefaultTick = time.Millisecond

	// DefaultMaxWait is the default cap on a single Multiplexer.Wait.
	DefaultMaxWait = 10 * time.Second
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger      *logiface.Logger[logiface.Event]
	multiplexer MultiplexerFactory
	clock       func() time.Time
	maxEvents   int
	tick        time.Duration
	maxWait     time.Duration
	levels      int
	capacity    int
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the structured logger. A nil logger (the default) disables
// logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxEvents sets the number of readiness records retrieved per wait.
// The buffer is allocated once, in New.
func WithMaxEvents(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return fmt.Errorf("eventloop: invalid max events: %d", n)
		}
		opts.maxEvents = n
		return nil
	}}
}

// WithTick sets the duration of one timer wheel tick. Timeouts are rounded
// up to a whole number of ticks.
func WithTick(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if d <= 0 {
			return fmt.Errorf("eventloop: invalid tick: %s", d)
		}
		opts.tick = d
		return nil
	}}
}

// WithWheelLevels sets the number of timer wheel levels, each covering 64
// times the span of the one below.
func WithWheelLevels(levels int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if levels < 1 || levels > timerwheel.MaxLevels {
			return fmt.Errorf("eventloop: invalid wheel levels: %d", levels)
		}
		opts.levels = levels
		return nil
	}}
}

// WithMaxWait caps how long a single wait may block. A value <= 0 allows
// the loop to block indefinitely when no timers are pending.
func WithMaxWait(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.maxWait = d
		return nil
	}}
}

// WithCapacity pre-sizes the event table for n concurrent registrations.
func WithCapacity(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 0 {
			return fmt.Errorf("eventloop: invalid capacity: %d", n)
		}
		opts.capacity = n
		return nil
	}}
}

// WithMultiplexer replaces the default (epoll) multiplexer.
func WithMultiplexer(factory MultiplexerFactory) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if factory == nil {
			return errors.New("eventloop: nil multiplexer factory")
		}
		opts.multiplexer = factory
		return nil
	}}
}

// WithClock replaces [time.Now] as the source of the current tick. Readings
// earlier than the previous are treated as no time having elapsed.
func WithClock(clock func() time.Time) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if clock == nil {
			return errors.New("eventloop: nil clock")
		}
		opts.clock = clock
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		multiplexer: NewEpoll,
		clock:       time.Now,
		maxEvents:   DefaultMaxEvents,
		tick:        DefaultTick,
		maxWait:     DefaultMaxWait,
		levels:      timerwheel.DefaultLevels,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
