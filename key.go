// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keep

import "fmt"

// Key addresses one entry: an 8-bit namespace groups a subsystem, an 8-bit
// category groups a kind of data within it, and a 16-bit id distinguishes
// individual items.
//
//	 31      24 23      16 15                  0
//	+----------+----------+--------------------+
//	| namespace| category |         id         |
//	+----------+----------+--------------------+
//
// Zero and all-ones keys are reserved, as is the all-ones value of each
// field.  Callers own the meaning of the fields; the engine treats a key as
// opaque beyond validity.
type Key uint32

// MakeKey packs the three fields into a Key.  It never validates; call
// Valid before storing anything under the result.
func MakeKey(namespace, category uint8, id uint16) Key {
	return Key(uint32(namespace)<<24 | uint32(category)<<16 | uint32(id))
}

// Namespace unpacks the subsystem field.
func (k Key) Namespace() uint8 {
	return uint8(k >> 24)
}

// Category unpacks the data-kind field.
func (k Key) Category() uint8 {
	return uint8(k >> 16)
}

// ID unpacks the item field.
func (k Key) ID() uint16 {
	return uint16(k)
}

// Valid reports whether k may address an entry.  Zero and 0xFFFFFFFF are
// reserved whole-key sentinels; each field additionally reserves its
// all-ones value.
func (k Key) Valid() bool {
	if k == 0 || k == 0xFFFFFFFF {
		return false
	}
	return k.Namespace() != 0xFF && k.Category() != 0xFF && k.ID() != 0xFFFF
}

func (k Key) String() string {
	return fmt.Sprintf("%02x:%02x:%04x", k.Namespace(), k.Category(), k.ID())
}
