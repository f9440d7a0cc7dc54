// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"math"
)

// table is a dense arena of events, addressed by EventID.
type table struct {
	slots []tableSlot
	free  []uint32
	live  int
}

type tableSlot struct {
	ev  *Event
	gen uint32
}

func newTable(capacity int) table {
	return table{slots: make([]tableSlot, 0, capacity)}
}

func makeEventID(index, gen uint32) EventID {
	return EventID(uint64(gen)<<32 | uint64(index))
}

func (id EventID) split() (index, gen uint32) {
	return uint32(id), uint32(id >> 32)
}

// insert stores ev, returning its id. Generations start at 1, so no id is 0.
func (t *table) insert(ev *Event) EventID {
	var index uint32
	if n := len(t.free); n != 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if uint64(len(t.slots)) >= math.MaxUint32 {
			panic(`eventloop: event table full`)
		}
		t.slots = append(t.slots, tableSlot{})
		index = uint32(len(t.slots) - 1)
	}
	s := &t.slots[index]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.ev = ev
	t.live++
	return makeEventID(index, s.gen)
}

func (t *table) get(id EventID) *Event {
	index, gen := id.split()
	if gen == 0 || uint64(index) >= uint64(len(t.slots)) {
		return nil
	}
	s := &t.slots[index]
	if s.gen != gen {
		return nil
	}
	return s.ev
}

func (t *table) remove(id EventID) bool {
	index, gen := id.split()
	if gen == 0 || uint64(index) >= uint64(len(t.slots)) {
		return false
	}
	s := &t.slots[index]
	if s.gen != gen || s.ev == nil {
		return false
	}
	s.ev = nil
	t.free = append(t.free, index)
	t.live--
	return true
}

// ids appends the ids of every live event to dst.
func (t *table) ids(dst []EventID) []EventID {
	for i := range t.slots {
		if t.slots[i].ev != nil {
			dst = append(dst, makeEventID(uint32(i), t.slots[i].gen))
		}
	}
	return dst
}
