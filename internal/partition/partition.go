// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package partition implements the on-media format of a single keep
// partition: a 16-byte header followed by append-only variable-length
// entries.
//
//	              <------------- totalSize ------------->
//	+------------+---------+---------+---------+ - - - - +
//	|   header   | entry 0 | entry 1 | entry 2 |  free   |
//	|  16 bytes  |         |         |         |         |
//	+------------+---------+---------+---------+ - - - - +
//	              <------ usedBytes - 16 ----->
//
// Each entry is a 6-byte header (key, type/flags, payload size) followed
// immediately by its payload.  Entries are never removed or relocated;
// writing an existing key again appends a second record, and lookups
// always return the first match in write order.  A CRC-32 over the entry
// region, stored in the partition header, is refreshed on every append.
package partition

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/bpowers/keep/internal/zero"
)

const (
	// EntryHeaderSize is the fixed per-entry overhead preceding the payload.
	EntryHeaderSize = 4 + 1 + 1 // 32-bit key + 8-bit type/flags + 8-bit payload size

	// MaxEntrySize is the largest payload a single entry can carry.
	MaxEntrySize = (1 << 8) - 1

	// MaxEntries is the most entries one partition can index.
	MaxEntries = (1 << 8) - 1

	entryKeyOff       = 0
	entryTypeFlagsOff = 4
	entrySizeOff      = 5
)

// Checksum is the integrity hash stored in every partition header: CRC-32
// with the reflected 0xEDB88320 polynomial, 0xFFFFFFFF initial value, and a
// final complement.  The empty region hashes to 0, which is also the value a
// freshly formatted header carries.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Partition is a view over one partition's exact byte range.  The underlying
// buffer is the source of truth: header fields are read and written in place
// so that views over a memory-mapped arena stay coherent with the file.
type Partition struct {
	buf []byte
}

// View wraps an existing byte range without touching its contents.  The
// caller is expected to Verify before trusting a view over bytes it did not
// format itself.
func View(buf []byte) *Partition {
	return &Partition{buf: buf}
}

// Format writes a fresh header over buf and zero-fills the entry region,
// discarding whatever the buffer held before.
func Format(buf []byte) (*Partition, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%d bytes is smaller than a partition header: %w", len(buf), ErrInvalidConfig)
	}

	h := Header{
		Magic:     Magic,
		Version:   Version,
		UsedBytes: HeaderSize,
		TotalSize: uint16(len(buf)),
	}
	p := &Partition{buf: buf}
	if err := h.MarshalTo(p.buf); err != nil {
		return nil, fmt.Errorf("header.MarshalTo: %w", err)
	}
	zero.Bytes(p.buf[HeaderSize:])

	return p, nil
}

// Header decodes and returns a copy of the partition's current header.
func (p *Partition) Header() (Header, error) {
	var h Header
	if err := h.UnmarshalBytes(p.buf); err != nil {
		return Header{}, err
	}
	return h, nil
}

func (p *Partition) magic() uint16 {
	return binary.LittleEndian.Uint16(p.buf[headerMagicOff:])
}

// Version reports the format version recorded in the header.
func (p *Partition) Version() uint8 {
	return p.buf[headerVersionOff]
}

// Count reports the number of entries recorded in the header.
func (p *Partition) Count() int {
	return int(p.buf[headerEntryCountOff])
}

// Used reports bytes consumed so far, header included.
func (p *Partition) Used() int {
	return int(binary.LittleEndian.Uint16(p.buf[headerUsedBytesOff:]))
}

// Total reports the partition's full capacity in bytes.
func (p *Partition) Total() int {
	return int(binary.LittleEndian.Uint16(p.buf[headerTotalSizeOff:]))
}

// Free reports bytes still available for entries.
func (p *Partition) Free() int {
	return p.Total() - p.Used()
}

func (p *Partition) storedChecksum() uint32 {
	return binary.LittleEndian.Uint32(p.buf[headerChecksumOff:])
}

func (p *Partition) setUsed(n uint16) {
	binary.LittleEndian.PutUint16(p.buf[headerUsedBytesOff:], n)
}

func (p *Partition) setCount(n uint8) {
	p.buf[headerEntryCountOff] = n
}

func (p *Partition) updateChecksum() {
	sum := Checksum(p.buf[HeaderSize:p.Used()])
	binary.LittleEndian.PutUint32(p.buf[headerChecksumOff:], sum)
}

// entryBounds validates the header's usedBytes against the view before any
// scan walks it.
func (p *Partition) entryBounds() (used int, err error) {
	used = p.Used()
	if used < HeaderSize || used > len(p.buf) {
		return 0, fmt.Errorf("used bytes %d outside [%d, %d]: %w", used, HeaderSize, len(p.buf), ErrMemoryCorrupted)
	}
	return used, nil
}

// Append writes a new entry record at the current end of the entry region
// and refreshes the header (count, used bytes, checksum).  It returns the
// record's byte offset within the partition.  Append never modifies the
// partition on failure.
func (p *Partition) Append(key uint32, value []byte, typeAndFlags byte) (off uint16, err error) {
	if len(value) > MaxEntrySize {
		return 0, fmt.Errorf("%d byte payload: %w", len(value), ErrEntryTooLarge)
	}
	used, err := p.entryBounds()
	if err != nil {
		return 0, err
	}
	required := EntryHeaderSize + len(value)
	if required > p.Total()-used {
		return 0, ErrPartitionFull
	}
	if p.Count() >= MaxEntries {
		return 0, ErrIndexOverflow
	}
	if required > len(p.buf)-used {
		// the header claims more capacity than the view actually has
		return 0, fmt.Errorf("header total %d exceeds view size %d: %w", p.Total(), len(p.buf), ErrMemoryCorrupted)
	}

	b := p.buf[used:]
	// bounds check elimination
	_ = b[EntryHeaderSize-1]
	binary.LittleEndian.PutUint32(b[entryKeyOff:], key)
	b[entryTypeFlagsOff] = typeAndFlags
	b[entrySizeOff] = uint8(len(value))
	copy(b[EntryHeaderSize:required], value)

	p.setUsed(uint16(used + required))
	p.setCount(uint8(p.Count() + 1))
	p.updateChecksum()

	return uint16(used), nil
}

// Item is one decoded entry.  Value aliases the partition's backing memory
// and is only valid until the next Append.
type Item struct {
	Key    uint32
	Type   uint8
	Flags  uint8
	Size   uint8
	Offset uint16
	Value  []byte
}

func decodeEntry(b []byte) (key uint32, typeAndFlags byte, size int) {
	// bounds check elimination
	_ = b[EntryHeaderSize-1]

	key = binary.LittleEndian.Uint32(b[entryKeyOff:])
	typeAndFlags = b[entryTypeFlagsOff]
	size = int(b[entrySizeOff])
	return
}

// Find linear-scans the entry region for the first record matching key, in
// write order.  Any entry whose header or payload would cross the used-bytes
// watermark aborts the scan with ErrMemoryCorrupted rather than walking
// unreliable data.
func (p *Partition) Find(key uint32) (Item, error) {
	used, err := p.entryBounds()
	if err != nil {
		return Item{}, err
	}

	off := HeaderSize
	for off < used {
		if off+EntryHeaderSize > used {
			return Item{}, fmt.Errorf("entry header at %d crosses used watermark %d: %w", off, used, ErrMemoryCorrupted)
		}
		ekey, tf, size := decodeEntry(p.buf[off:])
		next := off + EntryHeaderSize + size
		if next > used {
			return Item{}, fmt.Errorf("entry payload at %d crosses used watermark %d: %w", off, used, ErrMemoryCorrupted)
		}
		if ekey == key {
			return Item{
				Key:    ekey,
				Type:   tf >> 4,
				Flags:  tf & 0x0f,
				Size:   uint8(size),
				Offset: uint16(off),
				Value:  p.buf[off+EntryHeaderSize : next],
			}, nil
		}
		off = next
	}

	return Item{}, ErrKeyNotFound
}

// Lookup copies the first matching entry's payload into dst and reports the
// stored payload size.  If dst is too small the size is still reported, the
// copy is skipped, and the error is ErrBufferOverflow.
func (p *Partition) Lookup(key uint32, dst []byte) (int, error) {
	item, err := p.Find(key)
	if err != nil {
		return 0, err
	}
	n := int(item.Size)
	if len(dst) < n {
		return n, ErrBufferOverflow
	}
	copy(dst, item.Value)
	return n, nil
}

// Verify checks the partition's structural invariants and integrity hash:
// magic constant, used-bytes bounds, and that the stored checksum matches a
// fresh CRC over the entry region.  Format version is deliberately not
// checked here; callers adopting foreign media decide version policy.
func (p *Partition) Verify() error {
	if len(p.buf) < HeaderSize {
		return fmt.Errorf("%d byte view is smaller than a partition header: %w", len(p.buf), ErrMemoryCorrupted)
	}
	if m := p.magic(); m != Magic {
		return fmt.Errorf("bad magic 0x%04x: %w", m, ErrMemoryCorrupted)
	}
	if total := p.Total(); total != len(p.buf) {
		return fmt.Errorf("header total %d != view size %d: %w", total, len(p.buf), ErrMemoryCorrupted)
	}
	used, err := p.entryBounds()
	if err != nil {
		return err
	}
	if used > p.Total() {
		return fmt.Errorf("used bytes %d exceed total %d: %w", used, p.Total(), ErrMemoryCorrupted)
	}
	if got, want := Checksum(p.buf[HeaderSize:used]), p.storedChecksum(); got != want {
		return fmt.Errorf("computed 0x%08x, stored 0x%08x: %w", got, want, ErrChecksumFailed)
	}
	return nil
}

// Iter walks a partition's entries in write order.
type Iter struct {
	p   *Partition
	off int
	err error
}

// Entries returns an iterator positioned before the first entry.
func (p *Partition) Entries() *Iter {
	return &Iter{p: p, off: HeaderSize}
}

// Next returns the next entry, or false when the region is exhausted or a
// structural violation stops the walk (check Err to tell the two apart).
func (it *Iter) Next() (Item, bool) {
	if it.err != nil {
		return Item{}, false
	}
	used, err := it.p.entryBounds()
	if err != nil {
		it.err = err
		return Item{}, false
	}
	if it.off >= used {
		return Item{}, false
	}
	if it.off+EntryHeaderSize > used {
		it.err = fmt.Errorf("entry header at %d crosses used watermark %d: %w", it.off, used, ErrMemoryCorrupted)
		return Item{}, false
	}
	key, tf, size := decodeEntry(it.p.buf[it.off:])
	next := it.off + EntryHeaderSize + size
	if next > used {
		it.err = fmt.Errorf("entry payload at %d crosses used watermark %d: %w", it.off, used, ErrMemoryCorrupted)
		return Item{}, false
	}

	item := Item{
		Key:    key,
		Type:   tf >> 4,
		Flags:  tf & 0x0f,
		Size:   uint8(size),
		Offset: uint16(it.off),
		Value:  it.p.buf[it.off+EntryHeaderSize : next],
	}
	it.off = next
	return item, true
}

// Err reports the structural violation that stopped iteration, if any.
func (it *Iter) Err() error {
	return it.err
}
