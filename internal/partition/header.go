// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package partition

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed on-media size of a partition header.
	HeaderSize = 16

	// Magic marks the first two bytes of every formatted partition.
	// Distinct from 0x0000 and 0xFFFF so that both fresh and worn-out
	// flash read as unformatted.
	Magic = 0xDB01

	// Version is the current partition format version.
	Version = 2

	headerMagicOff      = 0
	headerVersionOff    = 2
	headerEntryCountOff = 3
	headerUsedBytesOff  = 4
	headerTotalSizeOff  = 6
	headerChecksumOff   = 8
	headerReservedOff   = 12
)

// Header is the decoded form of the 16-byte structure at offset 0 of every
// partition:
//
//	magic(2) | version(1) | entryCount(1) | usedBytes(2) | totalSize(2) | checksum(4) | reserved(4)
//
// All fields little-endian.  usedBytes includes the header itself; checksum
// covers bytes [HeaderSize, usedBytes) only.
type Header struct {
	Magic      uint16
	Version    uint8
	EntryCount uint8
	UsedBytes  uint16
	TotalSize  uint16
	Checksum   uint32
	Reserved   uint32
}

// MarshalTo encodes h into the first HeaderSize bytes of b.
func (h *Header) MarshalTo(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header buffer too short: %d < %d", len(b), HeaderSize)
	}
	// bounds check elimination
	_ = b[HeaderSize-1]

	binary.LittleEndian.PutUint16(b[headerMagicOff:], h.Magic)
	b[headerVersionOff] = h.Version
	b[headerEntryCountOff] = h.EntryCount
	binary.LittleEndian.PutUint16(b[headerUsedBytesOff:], h.UsedBytes)
	binary.LittleEndian.PutUint16(b[headerTotalSizeOff:], h.TotalSize)
	binary.LittleEndian.PutUint32(b[headerChecksumOff:], h.Checksum)
	binary.LittleEndian.PutUint32(b[headerReservedOff:], h.Reserved)

	return nil
}

// UnmarshalBytes decodes a header from the first HeaderSize bytes of b.  It
// performs no validation beyond the length check; use (*Partition).Verify to
// judge whether the decoded contents are trustworthy.
func (h *Header) UnmarshalBytes(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header buffer too short: %d < %d", len(b), HeaderSize)
	}
	b = b[:HeaderSize]

	h.Magic = binary.LittleEndian.Uint16(b[headerMagicOff:])
	h.Version = b[headerVersionOff]
	h.EntryCount = b[headerEntryCountOff]
	h.UsedBytes = binary.LittleEndian.Uint16(b[headerUsedBytesOff:])
	h.TotalSize = binary.LittleEndian.Uint16(b[headerTotalSizeOff:])
	h.Checksum = binary.LittleEndian.Uint32(b[headerChecksumOff:])
	h.Reserved = binary.LittleEndian.Uint32(b[headerReservedOff:])

	return nil
}
