// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package keep is a fixed-capacity, partitioned key-value store for state
// that must survive power and sleep cycles inside a single small memory
// region.  The whole database lives in one 16 KiB arena that never grows,
// never fragments, and needs no allocator; it can be heap memory or a
// memory-mapped image file.
//
// The arena is carved into four partitions in a fixed order:
//
//	┌──────────────────┐ 0
//	│ rom              │   factory data, written during provisioning
//	├──────────────────┤
//	│ save             │   durable application state (all public writes)
//	├──────────────────┤
//	│ backup           │   durable fallback copy
//	├──────────────────┤
//	│ runtime          │   derived working values
//	│        ┌─────────┤
//	│        │ cache   │   write-observation slots (optional carve)
//	└────────┴─────────┘ 16384
//
// Reads search runtime, save, backup, then rom, and stop at the first
// partition holding the key.  Within a partition entries are append-only:
// rewriting a key appends a new record that stays shadowed behind the
// oldest one, and space is consumed monotonically until the partition
// reports full.  Every partition carries a CRC-32 over its entry region,
// refreshed on each write, so corruption is detected cheaply.
//
// Entries are addressed by 32-bit keys with three caller-defined fields
// (namespace, category, id) and carry 1 to 255 payload bytes plus a 6-byte
// header.  Typed helpers store little-endian integers; everything else is
// opaque bytes with an advisory type tag.
package keep
