// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package eventloop implements a single-threaded I/O reactor: a loop that
// multiplexes readiness notifications over many non-blocking descriptors,
// dispatches per-descriptor callbacks, and enforces per-descriptor timeouts
// using a hierarchical timer wheel (see package timerwheel).
//
// # Architecture
//
// A [Loop] owns a [Multiplexer] (epoll, by default), a table of [Event]
// values keyed by [EventID], and a timer wheel. Each cycle of [Loop.Run]:
//
//  1. Computes a wait timeout from the earliest pending deadline, capped by
//     [WithMaxWait].
//  2. Blocks in [Multiplexer.Wait], the only point at which the loop sleeps.
//  3. Refreshes the current tick, then dispatches each readiness record, in
//     the order reported, to its Event.
//  4. Sweeps the timer wheel, closing every Event whose deadline elapsed.
//
// Readiness records carry the EventID (index plus generation), never a
// pointer, so a record that arrives for a destroyed Event is ignored, even
// if its table slot has since been reused.
//
// # Event Lifecycle
//
// An Event moves through [StateUnregistered], [StateRegistered],
// [StateClosing] and [StateDestroyed]. It is closed when its OnReady callback
// returns false, when the multiplexer reports a terminal condition (peer
// closed, hang-up, or error, regardless of [Event.Suspend]), when its timer
// expires, when it is unregistered, or when the loop shuts down. Closing
// invokes OnClose exactly once, then removes the descriptor from the
// multiplexer, closes it, and frees the table slot.
//
// # Thread Safety
//
// The loop is single-threaded: callbacks, [Loop.Register], [Loop.Unregister],
// [Loop.Modify], [Loop.SetTimeout] and every [Event] method must be called
// from the goroutine running [Loop.Run] (or before Run is called).
// [Loop.Shutdown], [Loop.Close], [Loop.State] and [Loop.Stats] are safe to
// call from any goroutine.
//
// # Usage
//
//	loop, err := eventloop.New(eventloop.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	_, err = loop.Register(eventloop.Spec{
//	    FD: fd,
//	    OnReady: func(ev *eventloop.Event) bool {
//	        // read until EAGAIN
//	        return true
//	    },
//	    OnClose: func(ev *eventloop.Event) {
//	        log.Printf("closed: %s", ev.Reason())
//	    },
//	}, 30*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
//
// # Error Types
//
//   - [InitError]: the loop could not acquire its multiplexer or wake source
//   - [RegistrationError]: the multiplexer rejected a descriptor
package eventloop
