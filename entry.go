// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keep

import "fmt"

// EntryType tags what an entry's payload holds.  The engine stores the tag
// but never interprets it; only the typed accessors assign meaning.  Four
// bits on media, so values above 15 cannot be represented.
type EntryType uint8

const (
	EntryU8         EntryType = 0x01
	EntryU16        EntryType = 0x02
	EntryU32        EntryType = 0x03
	EntryBytes      EntryType = 0x04 // default for Set
	EntryString     EntryType = 0x05
	EntryStruct     EntryType = 0x06
	EntryArray      EntryType = 0x07
	EntryIndex      EntryType = 0x08 // reference to another entry
	EntryCompressed EntryType = 0x09
)

func (t EntryType) String() string {
	switch t {
	case EntryU8:
		return "u8"
	case EntryU16:
		return "u16"
	case EntryU32:
		return "u32"
	case EntryBytes:
		return "bytes"
	case EntryString:
		return "string"
	case EntryStruct:
		return "struct"
	case EntryArray:
		return "array"
	case EntryIndex:
		return "index"
	case EntryCompressed:
		return "compressed"
	}
	return fmt.Sprintf("type(%#x)", uint8(t))
}

// EntryFlags carry advisory per-entry metadata.  Four bits on media.
type EntryFlags uint8

const (
	FlagReadOnly   EntryFlags = 0x01
	FlagCompressed EntryFlags = 0x02
	FlagEncrypted  EntryFlags = 0x04
	FlagCached     EntryFlags = 0x08
)

// packTypeFlags combines a type tag and flags into the single on-media
// byte: type in the high nibble, flags in the low.
func packTypeFlags(typ EntryType, flags EntryFlags) byte {
	return byte(typ)<<4 | byte(flags)&0x0f
}
