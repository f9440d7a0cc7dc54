// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package timerwheel implements a hierarchical timer wheel, tracking absolute
// tick deadlines with O(1) link and unlink, and amortized O(1) expiry.
//
// # Layout
//
// A [Wheel] has between 1 and [MaxLevels] levels, each an array of [Slots]
// intrusive lists. Level n covers deadlines whose highest bit differing from
// the cursor lies in bits [n*SlotBits, (n+1)*SlotBits), and the slot is the
// deadline's digit at that level. Deadlines beyond the span of the top level
// are parked in the top level, and re-filed each time their slot is swept.
//
// Nodes live in an index-addressed arena. Lists store head and tail indices,
// nodes store previous and next indices, and a [TimerID] pairs an arena index
// with a generation, so a handle to a freed node can never alias a new one.
//
// # Time
//
// Deadlines are absolute ticks, not durations. [Wheel.Run] advances the cursor
// to the supplied tick, cascading every elapsed slot back through
// [Wheel.Link], and invokes the expiry callback for each due timer, once, in
// deadline order. A tick earlier than the cursor is treated as no elapsed
// time: nothing fires, and the cursor is left where it was.
//
// # Thread Safety
//
// A Wheel is not safe for concurrent use. It is intended to be owned by a
// single event loop goroutine.
package timerwheel
