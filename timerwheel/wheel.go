// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package timerwheel

import (
	"cmp"
	"fmt"
	"math"
	"math/bits"
	"slices"
)

const (
	// SlotBits is the number of deadline bits resolved by each level.
	SlotBits = 6
	// Slots is the number of slots per level.
	Slots = 1 << SlotBits
	// MaxLevels is the largest supported level count.
	MaxLevels = 64 / SlotBits
	// DefaultLevels gives a span of 64^6 ticks, a little over two years at
	// millisecond resolution.
	DefaultLevels = 6

	slotMask = Slots - 1
)

// list indices with special meaning, stored in node.list
const (
	listNone   int32 = -1 // unlinked
	listFiring int32 = -2 // collected by Run, callback pending
)

type (
	// TimerID identifies a timer allocated by [Wheel.Alloc]. The zero value is
	// never a valid timer.
	TimerID uint64

	// Wheel is a hierarchical timer wheel. The zero value is not usable, see
	// [New].
	Wheel struct {
		nodes   []node
		heads   []int32 // levels*Slots slot lists, then the expired list
		tails   []int32
		pending []uint64 // per level, bit n set if slot n is non-empty
		due     []dueTimer
		lastRun uint64
		free    int32
		levels  int
		linked  int
	}

	node struct {
		expireAt uint64
		owner    uint64
		prev     int32
		next     int32
		list     int32
		gen      uint32
		used     bool
	}

	dueTimer struct {
		at uint64
		id TimerID
	}
)

// New initialises a wheel with the given number of levels, and its cursor set
// to now. It panics if levels is not within [1, MaxLevels].
func New(levels int, now uint64) *Wheel {
	if levels < 1 || levels > MaxLevels {
		panic(fmt.Errorf(`timerwheel: invalid levels: %d`, levels))
	}
	lists := levels*Slots + 1
	w := Wheel{
		heads:   make([]int32, lists),
		tails:   make([]int32, lists),
		pending: make([]uint64, levels),
		lastRun: now,
		free:    listNone,
		levels:  levels,
	}
	for i := range w.heads {
		w.heads[i] = listNone
		w.tails[i] = listNone
	}
	return &w
}

// Levels returns the number of levels the wheel was created with.
func (w *Wheel) Levels() int { return w.levels }

// Now returns the cursor, i.e. the tick of the last [Wheel.Run] that
// advanced it.
func (w *Wheel) Now() uint64 { return w.lastRun }

// Len returns the number of linked timers, including those that are due but
// not yet fired.
func (w *Wheel) Len() int { return w.linked }

// Alloc reserves an unlinked timer, associated with owner. The owner value is
// opaque to the wheel, and is passed to the expiry callback.
func (w *Wheel) Alloc(owner uint64) TimerID {
	var i int32
	if w.free != listNone {
		i = w.free
		w.free = w.nodes[i].next
	} else {
		if len(w.nodes) >= math.MaxInt32 {
			panic(`timerwheel: too many timers`)
		}
		w.nodes = append(w.nodes, node{})
		i = int32(len(w.nodes) - 1)
	}
	n := &w.nodes[i]
	n.gen++
	if n.gen == 0 {
		n.gen = 1
	}
	n.used = true
	n.owner = owner
	n.expireAt = 0
	n.prev = listNone
	n.next = listNone
	n.list = listNone
	return makeTimerID(i, n.gen)
}

// Free unlinks the timer, if linked, and releases it. It returns false if id
// is not a live timer.
func (w *Wheel) Free(id TimerID) bool {
	i, ok := w.resolve(id)
	if !ok {
		return false
	}
	w.unlinkNode(i)
	n := &w.nodes[i]
	n.used = false
	n.owner = 0
	n.next = w.free
	w.free = i
	return true
}

// Link arms the timer to expire at the absolute tick expireAt. A linked timer
// is unlinked first. It returns false if id is not a live timer.
func (w *Wheel) Link(id TimerID, expireAt uint64) bool {
	i, ok := w.resolve(id)
	if !ok {
		return false
	}
	w.unlinkNode(i)
	w.nodes[i].expireAt = expireAt
	w.linkNode(i)
	return true
}

// Unlink disarms the timer, returning true if it was linked. If the timer
// was due within an in-progress [Wheel.Run], it will not fire.
func (w *Wheel) Unlink(id TimerID) bool {
	i, ok := w.resolve(id)
	if !ok || w.nodes[i].list == listNone {
		return false
	}
	w.unlinkNode(i)
	return true
}

// Linked reports whether the timer is armed.
func (w *Wheel) Linked(id TimerID) bool {
	i, ok := w.resolve(id)
	return ok && w.nodes[i].list != listNone
}

// Deadline returns the expiry tick of an armed timer.
func (w *Wheel) Deadline(id TimerID) (uint64, bool) {
	i, ok := w.resolve(id)
	if !ok || w.nodes[i].list == listNone {
		return 0, false
	}
	return w.nodes[i].expireAt, true
}

// WakeAt returns the earliest tick at which the wheel needs servicing via
// [Wheel.Run]. It is never later than the earliest deadline, but may be
// earlier, for timers that must first be cascaded to a finer level. The bool
// is false if no timers are linked.
func (w *Wheel) WakeAt() (uint64, bool) {
	if w.linked == 0 {
		return 0, false
	}
	if w.heads[w.expiredList()] != listNone {
		return w.lastRun, true
	}
	result := uint64(math.MaxUint64)
	for level := 0; level < w.levels; level++ {
		pending := w.pending[level]
		if pending == 0 {
			continue
		}
		shift := uint(level * SlotBits)
		digit := w.lastRun >> shift
		// bit k of rotated is the slot k positions ahead of the cursor
		rotated := bits.RotateLeft64(pending, -int(digit&slotMask)) &^ 1
		distance := uint64(Slots)
		if rotated != 0 {
			distance = uint64(bits.TrailingZeros64(rotated))
		}
		at := (digit + distance) << shift
		if at>>shift != digit+distance || at < w.lastRun {
			at = math.MaxUint64
		}
		result = min(result, at)
	}
	return result, true
}

// Run advances the cursor to now, and calls expire for every timer whose
// deadline is at or before now. Each timer is unlinked before its callback,
// which may re-link or free it, or any other timer. Timers fire in deadline
// order, and in link order within the same tick. It returns the number of
// callbacks made.
//
// If now is before the cursor, Run does nothing.
func (w *Wheel) Run(now uint64, expire func(id TimerID, owner uint64)) int {
	if now < w.lastRun {
		return 0
	}
	if now > w.lastRun {
		w.advance(now)
	}

	expired := w.expiredList()
	if w.heads[expired] == listNone {
		return 0
	}

	due := w.due[:0]
	for i := w.heads[expired]; i != listNone; i = w.nodes[i].next {
		n := &w.nodes[i]
		n.list = listFiring
		due = append(due, dueTimer{at: n.expireAt, id: makeTimerID(i, n.gen)})
	}
	w.heads[expired] = listNone
	w.tails[expired] = listNone

	slices.SortStableFunc(due, func(a, b dueTimer) int {
		return cmp.Compare(a.at, b.at)
	})

	var fired int
	for _, d := range due {
		i, ok := w.resolve(d.id)
		if !ok || w.nodes[i].list != listFiring {
			// unlinked, re-linked, or freed by an earlier callback
			continue
		}
		n := &w.nodes[i]
		n.list = listNone
		n.prev = listNone
		n.next = listNone
		w.linked--
		fired++
		if expire != nil {
			expire(d.id, n.owner)
		}
	}

	clear(due)
	w.due = due[:0]
	return fired
}

// advance moves the cursor from lastRun to now, re-filing the contents of
// every slot the cursor passed over. Timers that are now due land on the
// expired list.
func (w *Wheel) advance(now uint64) {
	var (
		elapsed = now - w.lastRun
		todo    = listNone
		tail    = listNone
	)

	for level := 0; level < w.levels; level++ {
		shift := uint(level * SlotBits)

		var passed uint64
		if elapsed>>shift >= slotMask {
			passed = math.MaxUint64
		} else {
			oldSlot := (w.lastRun >> shift) & slotMask
			newSlot := (now >> shift) & slotMask
			steps := (newSlot - oldSlot) & slotMask
			// slots oldSlot+1 through newSlot, inclusive
			passed = bits.RotateLeft64((uint64(1)<<steps)-1, int((oldSlot+1)&slotMask))
		}

		for slots := passed & w.pending[level]; slots != 0; slots &= slots - 1 {
			list := int32(level*Slots + bits.TrailingZeros64(slots))
			head, last := w.heads[list], w.tails[list]
			w.heads[list] = listNone
			w.tails[list] = listNone
			if todo == listNone {
				todo = head
			} else {
				w.nodes[tail].next = head
				w.nodes[head].prev = tail
			}
			tail = last
		}
		w.pending[level] &^= passed

		if passed&1 == 0 {
			// this level did not wrap, so no coarser level has moved
			break
		}
	}

	w.lastRun = now

	for i := todo; i != listNone; {
		next := w.nodes[i].next
		w.linked--
		w.linkNode(i)
		i = next
	}
}

func (w *Wheel) linkNode(i int32) {
	n := &w.nodes[i]

	var list int32
	if n.expireAt <= w.lastRun {
		list = w.expiredList()
	} else {
		level := (bits.Len64(w.lastRun^n.expireAt) - 1) / SlotBits
		if level >= w.levels {
			level = w.levels - 1
		}
		slot := (n.expireAt >> uint(level*SlotBits)) & slotMask
		list = int32(level*Slots) + int32(slot)
		w.pending[level] |= 1 << slot
	}

	n.list = list
	n.next = listNone
	n.prev = w.tails[list]
	if n.prev == listNone {
		w.heads[list] = i
	} else {
		w.nodes[n.prev].next = i
	}
	w.tails[list] = i
	w.linked++
}

func (w *Wheel) unlinkNode(i int32) {
	n := &w.nodes[i]
	switch n.list {
	case listNone:
		return
	case listFiring:
		// still referenced by Run's due batch, which checks list
		n.list = listNone
		n.prev = listNone
		n.next = listNone
		w.linked--
		return
	}

	list := n.list
	if n.prev == listNone {
		w.heads[list] = n.next
	} else {
		w.nodes[n.prev].next = n.next
	}
	if n.next == listNone {
		w.tails[list] = n.prev
	} else {
		w.nodes[n.next].prev = n.prev
	}

	if w.heads[list] == listNone && list != w.expiredList() {
		level := list / Slots
		w.pending[level] &^= 1 << uint(list%Slots)
	}

	n.list = listNone
	n.prev = listNone
	n.next = listNone
	w.linked--
}

func (w *Wheel) expiredList() int32 { return int32(w.levels * Slots) }

func (w *Wheel) resolve(id TimerID) (int32, bool) {
	i, gen := id.split()
	if i < 0 || int(i) >= len(w.nodes) {
		return 0, false
	}
	n := &w.nodes[i]
	if !n.used || n.gen != gen {
		return 0, false
	}
	return i, true
}

func makeTimerID(index int32, gen uint32) TimerID {
	return TimerID(uint64(gen)<<32 | uint64(uint32(index)))
}

func (x TimerID) split() (int32, uint32) {
	return int32(uint32(x)), uint32(x >> 32)
}
