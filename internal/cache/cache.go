// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package cache tracks recently written keys so diagnostics (and future
// read acceleration) can see where the hottest records landed.  It is a
// write-observation cache: every successful write is recorded here, but
// lookups on the read path never consult it.
package cache

import "time"

const (
	// SlotSize is the number of arena bytes one slot reserves.  The slot
	// region is carved from the tail of the runtime partition, so this
	// constant feeds directly into partition layout math.
	SlotSize = 4 + 2 + 2 + 4 // key + record size + offset + stamp

	// MaxSlots caps how many slots a configuration may request.
	MaxSlots = 64
)

// Slot remembers a single write: which key, how many bytes the full record
// occupies, where it starts within its partition, and when it was recorded.
// A zero Key marks the slot empty.
type Slot struct {
	Key    uint32
	Size   uint16
	Offset uint16
	Stamp  uint32
}

// Tracker holds a fixed number of slots and reuses them LRU-style: an empty
// slot is taken first, otherwise the slot with the oldest stamp is
// overwritten.
type Tracker struct {
	slots []Slot
	now   func() uint32
}

// New returns a tracker with n slots stamped from a millisecond clock that
// starts at zero when the tracker is created.
func New(n int) *Tracker {
	start := time.Now()
	return NewWithClock(n, func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	})
}

// NewWithClock is New with a caller-supplied stamp source.
func NewWithClock(n int, now func() uint32) *Tracker {
	if n < 0 {
		n = 0
	}
	return &Tracker{
		slots: make([]Slot, n),
		now:   now,
	}
}

// Record notes a successful write of key at offset within its partition.
// size is the full record size, header included.  With zero slots, or for
// the reserved key 0, Record is a no-op.
func (t *Tracker) Record(key uint32, size, offset uint16) {
	if len(t.slots) == 0 || key == 0 {
		return
	}

	victim := 0
	for i := range t.slots {
		if t.slots[i].Key == 0 {
			victim = i
			break
		}
		if t.slots[i].Stamp < t.slots[victim].Stamp {
			victim = i
		}
	}

	t.slots[victim] = Slot{
		Key:    key,
		Size:   size,
		Offset: offset,
		Stamp:  t.now(),
	}
}

// Lookup reports the first slot tracking key.  Purely diagnostic.
func (t *Tracker) Lookup(key uint32) (Slot, bool) {
	for i := range t.slots {
		if t.slots[i].Key == key {
			return t.slots[i], true
		}
	}
	return Slot{}, false
}

// Len counts occupied slots.
func (t *Tracker) Len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].Key != 0 {
			n++
		}
	}
	return n
}

// Cap reports the total slot count.
func (t *Tracker) Cap() int {
	return len(t.slots)
}

// Slots returns a copy of the slot array in slot order.
func (t *Tracker) Slots() []Slot {
	out := make([]Slot, len(t.slots))
	copy(out, t.slots)
	return out
}

// Reset empties every slot.
func (t *Tracker) Reset() {
	for i := range t.slots {
		t.slots[i] = Slot{}
	}
}
