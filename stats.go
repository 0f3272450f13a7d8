// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keep

import (
	"fmt"
	"strings"
)

// PartitionStats is a point-in-time snapshot of one partition's usage.
type PartitionStats struct {
	Size    int
	Used    int
	Free    int
	Entries int
}

// Stats is a point-in-time snapshot of the whole database.  TotalFree is
// measured against the full arena, so it also counts bytes outside any
// partition (unassigned space and the cache reservation).
type Stats struct {
	TotalSize  int
	TotalUsed  int
	TotalFree  int
	Partitions [NumPartitions]PartitionStats

	CacheSlots    int
	CacheOccupied int
	CacheReserved int
}

// Stats never mutates state.  On an uninitialized handle every usage field
// is zero.
func (db *DB) Stats() Stats {
	s := Stats{TotalSize: ArenaSize}
	if !db.initialized {
		return s
	}

	for i := range db.parts {
		p := db.parts[i]
		s.Partitions[i] = PartitionStats{
			Size:    p.Total(),
			Used:    p.Used(),
			Free:    p.Free(),
			Entries: p.Count(),
		}
		s.TotalUsed += p.Used()
	}
	s.TotalFree = ArenaSize - s.TotalUsed
	s.CacheSlots = db.tracker.Cap()
	s.CacheOccupied = db.tracker.Len()
	s.CacheReserved = db.cacheReserved
	return s
}

// TotalUsedBytes sums used bytes across all partitions, headers included.
func (db *DB) TotalUsedBytes() int {
	if !db.initialized {
		return 0
	}
	total := 0
	for i := range db.parts {
		total += db.parts[i].Used()
	}
	return total
}

// TotalFreeBytes is the arena size minus TotalUsedBytes.
func (db *DB) TotalFreeBytes() int {
	if !db.initialized {
		return 0
	}
	return ArenaSize - db.TotalUsedBytes()
}

// MemoryMap renders a human-readable usage dump, one line per partition.
func (db *DB) MemoryMap() string {
	if !db.initialized {
		return "database not initialized\n"
	}

	var b strings.Builder
	used := db.TotalUsedBytes()
	b.WriteString("=== Database Memory Map ===\n")
	fmt.Fprintf(&b, "Total arena: %d bytes\n", ArenaSize)
	fmt.Fprintf(&b, "Total used: %d bytes (%.1f%%)\n", used, float64(used)*100/ArenaSize)
	fmt.Fprintf(&b, "Total free: %d bytes\n\n", db.TotalFreeBytes())

	for i := range db.parts {
		p := db.parts[i]
		fmt.Fprintf(&b, "%s: %d/%d bytes (%.1f%%), %d entries\n",
			PartitionID(i), p.Used(), p.Total(),
			float64(p.Used())*100/float64(p.Total()), p.Count())
	}

	if db.tracker.Cap() > 0 {
		fmt.Fprintf(&b, "cache: %d/%d slots, %d bytes reserved\n",
			db.tracker.Len(), db.tracker.Cap(), db.cacheReserved)
	}
	return b.String()
}
