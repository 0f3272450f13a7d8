// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package imagefile

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed on-disk size of an image file header.  The
	// arena payload starts at this offset.
	HeaderSize = 32

	// magicImage spells "keep" when the first four bytes are read
	// little-endian.
	magicImage = 0x7065_656b

	fileFormatVersion = 1

	headerMagicOff       = 0
	headerVersionOff     = 4
	headerPayloadLenOff  = 8
	headerFingerprintOff = 16
)

// fileHeader fronts every image file:
//
//	+-------+---------+------------+----------+-------------+----------+
//	| magic | version | payloadLen | reserved | fingerprint | reserved |
//	|   4   |    4    |     4      |    4     |      8      |    8     |
//	+-------+---------+------------+----------+-------------+----------+
//
// fingerprint is a farm.Hash64 over the whole payload, refreshed on Sync
// and Close.  An image that was not cleanly synced fails Open.
type fileHeader struct {
	magic         uint32
	formatVersion uint32
	payloadLen    uint32
	fingerprint   uint64
}

func newFileHeader(payloadLen uint32) *fileHeader {
	return &fileHeader{
		magic:         magicImage,
		formatVersion: fileFormatVersion,
		payloadLen:    payloadLen,
	}
}

func (h *fileHeader) MarshalTo(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header buffer too short: %d < %d", len(b), HeaderSize)
	}

	binary.LittleEndian.PutUint32(b[headerMagicOff:], h.magic)
	binary.LittleEndian.PutUint32(b[headerVersionOff:], h.formatVersion)
	binary.LittleEndian.PutUint32(b[headerPayloadLenOff:], h.payloadLen)
	binary.LittleEndian.PutUint64(b[headerFingerprintOff:], h.fingerprint)

	return nil
}

func (h *fileHeader) UnmarshalBytes(headerBytes []byte) error {
	if len(headerBytes) < HeaderSize {
		return fmt.Errorf("headerBytes too short: %d < %d", len(headerBytes), HeaderSize)
	}

	headerBytes = headerBytes[:HeaderSize]

	h.magic = binary.LittleEndian.Uint32(headerBytes[headerMagicOff:])
	if h.magic != magicImage {
		return fmt.Errorf("bad magic number on image file (%x) -- not a keep image or corrupted", h.magic)
	}

	h.formatVersion = binary.LittleEndian.Uint32(headerBytes[headerVersionOff:])
	if h.formatVersion != fileFormatVersion {
		return fmt.Errorf("this version of the keep library can only read v%d image files; found v%d", fileFormatVersion, h.formatVersion)
	}

	h.payloadLen = binary.LittleEndian.Uint32(headerBytes[headerPayloadLenOff:])
	h.fingerprint = binary.LittleEndian.Uint64(headerBytes[headerFingerprintOff:])

	return nil
}
