// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package partition

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	// the empty entry region hashes to 0, matching a fresh header
	assert.Equal(t, uint32(0), Checksum(nil))
	assert.Equal(t, uint32(0), Checksum([]byte{}))

	// standard CRC-32 check value
	assert.Equal(t, uint32(0xcbf43926), Checksum([]byte("123456789")))
}

func TestFormat(t *testing.T) {
	buf := make([]byte, 512)
	// dirty the buffer to prove Format resets it
	for i := range buf {
		buf[i] = 0xa5
	}

	p, err := Format(buf)
	require.NoError(t, err)

	assert.Equal(t, 0, p.Count())
	assert.Equal(t, HeaderSize, p.Used())
	assert.Equal(t, 512, p.Total())
	assert.Equal(t, 512-HeaderSize, p.Free())
	assert.Equal(t, uint8(Version), p.Version())
	require.NoError(t, p.Verify())

	// entry region is zero-filled
	assert.Equal(t, make([]byte, 512-HeaderSize), buf[HeaderSize:])

	h, err := p.Header()
	require.NoError(t, err)
	assert.Equal(t, uint16(Magic), h.Magic)
	assert.Equal(t, uint32(0), h.Checksum)
	assert.Equal(t, uint32(0), h.Reserved)
}

func TestFormat_TooSmall(t *testing.T) {
	_, err := Format(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrInvalidConfig)

	// exactly one header is legal, if useless
	p, err := Format(make([]byte, HeaderSize))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Free())
}

func TestAppendFind_RoundTrip(t *testing.T) {
	buf := make([]byte, 1024)
	p, err := Format(buf)
	require.NoError(t, err)

	entries := map[uint32][]byte{
		0x01020003: []byte("x"),
		0x01020004: []byte("hello"),
		0x02030001: bytes.Repeat([]byte{0xee}, MaxEntrySize),
	}

	offs := make(map[uint32]uint16, len(entries))
	for key, value := range entries {
		off, err := p.Append(key, value, 0)
		require.NoError(t, err)
		offs[key] = off
	}
	require.NoError(t, p.Verify())

	for key, value := range entries {
		item, err := p.Find(key)
		require.NoError(t, err)
		assert.Equal(t, key, item.Key)
		assert.Equal(t, value, item.Value)
		assert.Equal(t, uint8(len(value)), item.Size)
		assert.Equal(t, offs[key], item.Offset)
	}

	_, err = p.Find(0x7f7f7f7f)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestAppend_FirstMatchWins(t *testing.T) {
	p, err := Format(make([]byte, 256))
	require.NoError(t, err)

	const key = 0x01010001
	_, err = p.Append(key, []byte("A"), 0)
	require.NoError(t, err)
	_, err = p.Append(key, []byte("BB"), 0)
	require.NoError(t, err)

	// the older record shadows the newer one
	item, err := p.Find(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), item.Value)
	assert.Equal(t, 2, p.Count())
}

func TestAppend_TypeAndFlags(t *testing.T) {
	p, err := Format(make([]byte, 256))
	require.NoError(t, err)

	_, err = p.Append(0x01010001, []byte{9}, 0x42)
	require.NoError(t, err)

	item, err := p.Find(0x01010001)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), item.Type)
	assert.Equal(t, uint8(2), item.Flags)
}

func TestAppend_EntryTooLarge(t *testing.T) {
	p, err := Format(make([]byte, 1024))
	require.NoError(t, err)

	_, err = p.Append(0x01010001, make([]byte, MaxEntrySize+1), 0)
	require.ErrorIs(t, err, ErrEntryTooLarge)
	assert.Equal(t, 0, p.Count())
	assert.Equal(t, HeaderSize, p.Used())
}

func TestAppend_PartitionFull(t *testing.T) {
	p, err := Format(make([]byte, 256))
	require.NoError(t, err)

	// 1-byte payloads cost EntryHeaderSize+1 == 7 bytes each
	wrote := 0
	for i := 0; ; i++ {
		_, err := p.Append(0x01010000+uint32(i), []byte{byte(i)}, 0)
		if err != nil {
			require.ErrorIs(t, err, ErrPartitionFull)
			break
		}
		wrote++
	}

	assert.Equal(t, (256-HeaderSize)/(EntryHeaderSize+1), wrote)
	assert.LessOrEqual(t, p.Used(), p.Total())
	assert.Less(t, p.Free(), EntryHeaderSize+1)
	require.NoError(t, p.Verify())

	// a failed append must not have touched the header
	assert.Equal(t, wrote, p.Count())
}

func TestAppend_IndexOverflow(t *testing.T) {
	p, err := Format(make([]byte, 8192))
	require.NoError(t, err)

	for i := 0; i < MaxEntries; i++ {
		_, err := p.Append(0x01010000+uint32(i), []byte{byte(i)}, 0)
		require.NoError(t, err)
	}
	require.Equal(t, MaxEntries, p.Count())

	// space remains, but the 8-bit entry count is saturated
	require.Greater(t, p.Free(), EntryHeaderSize+1)
	_, err = p.Append(0x01010f00, []byte{0}, 0)
	require.ErrorIs(t, err, ErrIndexOverflow)
}

func TestLookup(t *testing.T) {
	p, err := Format(make([]byte, 256))
	require.NoError(t, err)

	_, err = p.Append(0x01010001, []byte("hello"), 0)
	require.NoError(t, err)

	dst := make([]byte, 16)
	n, err := p.Lookup(0x01010001, dst)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), dst[:n])

	// a short destination still learns the stored size
	short := make([]byte, 2)
	n, err = p.Lookup(0x01010001, short)
	require.ErrorIs(t, err, ErrBufferOverflow)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{0, 0}, short)

	n, err = p.Lookup(0x01010002, dst)
	require.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 0, n)
}

func TestVerify_DetectsTamper(t *testing.T) {
	buf := make([]byte, 512)
	p, err := Format(buf)
	require.NoError(t, err)

	_, err = p.Append(0x01010001, []byte("stable"), 0)
	require.NoError(t, err)
	require.NoError(t, p.Verify())

	// flip one payload bit behind the partition's back
	buf[HeaderSize+EntryHeaderSize] ^= 0x01
	require.ErrorIs(t, p.Verify(), ErrChecksumFailed)
	buf[HeaderSize+EntryHeaderSize] ^= 0x01
	require.NoError(t, p.Verify())

	// a clobbered magic is structural corruption, not a bad checksum
	buf[0] = 0
	require.ErrorIs(t, p.Verify(), ErrMemoryCorrupted)
}

func TestFind_CorruptBounds(t *testing.T) {
	buf := make([]byte, 256)
	p, err := Format(buf)
	require.NoError(t, err)

	_, err = p.Append(0x01010001, []byte("abc"), 0)
	require.NoError(t, err)

	// inflate the first entry's size byte so its payload crosses the
	// used-bytes watermark
	buf[HeaderSize+entrySizeOff] = 0xff

	_, err = p.Find(0x01010001)
	require.ErrorIs(t, err, ErrMemoryCorrupted)

	// the scan aborts even for keys that would match later
	_, err = p.Find(0x01010002)
	require.ErrorIs(t, err, ErrMemoryCorrupted)
}

func TestFind_CorruptUsedBytes(t *testing.T) {
	buf := make([]byte, 256)
	p, err := Format(buf)
	require.NoError(t, err)

	// claim more used bytes than the view holds
	p.setUsed(1024)
	_, err = p.Find(0x01010001)
	require.ErrorIs(t, err, ErrMemoryCorrupted)

	_, err = p.Append(0x01010001, []byte{1}, 0)
	require.ErrorIs(t, err, ErrMemoryCorrupted)
}

func TestView_AdoptsExistingContents(t *testing.T) {
	buf := make([]byte, 512)
	p, err := Format(buf)
	require.NoError(t, err)
	_, err = p.Append(0x01010001, []byte("warm"), 0)
	require.NoError(t, err)

	// a second view over the same bytes sees everything the first wrote
	q := View(buf)
	require.NoError(t, q.Verify())
	assert.Equal(t, 1, q.Count())

	item, err := q.Find(0x01010001)
	require.NoError(t, err)
	assert.Equal(t, []byte("warm"), item.Value)
}

func TestEntries_Iterates(t *testing.T) {
	p, err := Format(make([]byte, 512))
	require.NoError(t, err)

	keys := []uint32{0x01010001, 0x01010002, 0x01010001}
	values := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	for i, key := range keys {
		_, err := p.Append(key, values[i], 0)
		require.NoError(t, err)
	}

	it := p.Entries()
	for i := range keys {
		item, ok := it.Next()
		require.True(t, ok)
		assert.Equal(t, keys[i], item.Key)
		assert.Equal(t, values[i], item.Value)
	}
	_, ok := it.Next()
	require.False(t, ok)
	require.NoError(t, it.Err())
}

func TestEntries_StopsOnCorruption(t *testing.T) {
	buf := make([]byte, 512)
	p, err := Format(buf)
	require.NoError(t, err)

	_, err = p.Append(0x01010001, []byte("aa"), 0)
	require.NoError(t, err)
	off, err := p.Append(0x01010002, []byte("bb"), 0)
	require.NoError(t, err)

	// wreck the second entry's size byte
	buf[int(off)+entrySizeOff] = 0xff

	it := p.Entries()
	_, ok := it.Next()
	require.True(t, ok)
	_, ok = it.Next()
	require.False(t, ok)
	require.ErrorIs(t, it.Err(), ErrMemoryCorrupted)
}
