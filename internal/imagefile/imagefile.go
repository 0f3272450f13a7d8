// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package imagefile maps a keep arena onto a file.
//
// An image file is a 32-byte header followed by the raw arena payload.
// The payload region is mapped shared, so partition writes land directly
// in the page cache; Sync fences them to disk and reseals the header's
// whole-payload fingerprint.  Arenas can also live purely in memory, in
// which case the same type simply wraps a heap buffer.
package imagefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/dgryski/go-farm"
	"golang.org/x/sys/unix"
)

// ErrReadOnly is returned when a mutating operation reaches an arena that
// was opened read-only.
var ErrReadOnly = errors.New("image is read-only")

// Arena owns a fixed-size payload buffer, either heap-allocated or memory
// mapped from an image file.
type Arena struct {
	h        fileHeader
	path     string
	f        *os.File
	mapped   []byte // whole mapping, header included; nil for in-memory arenas
	payload  []byte
	readonly bool
	isClosed atomic.Bool
}

// NewMem returns an arena backed by ordinary zeroed heap memory.
func NewMem(size int) *Arena {
	return &Arena{
		h:       *newFileHeader(uint32(size)),
		payload: make([]byte, size),
	}
}

// Create makes (or truncates) an image file sized for a payload of size
// bytes, writes a fresh header, and maps the whole file shared.
func Create(path string, size int) (*Arena, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	if err := f.Truncate(int64(HeaderSize + size)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Truncate: %w", err)
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, HeaderSize+size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("unix.Mmap: %w", err)
	}

	a := &Arena{
		h:       *newFileHeader(uint32(size)),
		path:    path,
		f:       f,
		mapped:  mapped,
		payload: mapped[HeaderSize:],
	}
	if err := a.h.MarshalTo(a.mapped); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("fileHeader.MarshalTo: %w", err)
	}
	return a, nil
}

// Open maps an existing image file whose payload must be exactly size
// bytes.  The header's magic, version, payload length, and fingerprint are
// all validated before the arena is handed to the caller; a fingerprint
// mismatch means the image was not cleanly synced (or was tampered with)
// and fails the open.
func Open(path string, size int, readonly bool) (*Arena, error) {
	flag := os.O_RDWR
	if readonly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}

	stats, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	if stats.Size() < int64(HeaderSize+size) {
		_ = f.Close()
		return nil, fmt.Errorf("image file too short: %d < %d", stats.Size(), HeaderSize+size)
	}

	prot := unix.PROT_READ | unix.PROT_WRITE
	if readonly {
		prot = unix.PROT_READ
	}
	mapped, err := unix.Mmap(int(f.Fd()), 0, HeaderSize+size, prot, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("unix.Mmap: %w", err)
	}
	// a failed open must leave the file untouched, so unwind without
	// going through Close (which reseals writable images)
	unwind := func() {
		_ = unix.Munmap(mapped)
		_ = f.Close()
	}
	if err := unix.Madvise(mapped, syscall.MADV_RANDOM); err != nil {
		unwind()
		return nil, fmt.Errorf("madvise: %s", err)
	}

	a := &Arena{
		path:     path,
		f:        f,
		mapped:   mapped,
		payload:  mapped[HeaderSize:],
		readonly: readonly,
	}
	if err := a.h.UnmarshalBytes(mapped); err != nil {
		unwind()
		return nil, fmt.Errorf("fileHeader.UnmarshalBytes: %w", err)
	}
	if got := int(a.h.payloadLen); got != size {
		unwind()
		return nil, fmt.Errorf("image payload is %d bytes, want %d", got, size)
	}
	if got := farm.Hash64(a.payload); got != a.h.fingerprint {
		unwind()
		return nil, fmt.Errorf("image fingerprint %016x does not match contents (%016x): not cleanly synced or corrupted", a.h.fingerprint, got)
	}
	return a, nil
}

// Bytes returns the arena payload.  The slice aliases the mapping (or heap
// buffer) for the arena's whole lifetime.
func (a *Arena) Bytes() []byte {
	return a.payload
}

// Path reports the backing file's path, or "" for in-memory arenas.
func (a *Arena) Path() string {
	return a.path
}

// ReadOnly reports whether mutating the payload is forbidden.
func (a *Arena) ReadOnly() bool {
	return a.readonly
}

// Fingerprint reports the farm.Hash64 recorded at the last seal.
func (a *Arena) Fingerprint() uint64 {
	return a.h.fingerprint
}

// Sync reseals the header fingerprint over the current payload and, for
// file-backed arenas, fences the whole mapping to disk.
func (a *Arena) Sync() error {
	if a.readonly {
		return ErrReadOnly
	}

	a.h.fingerprint = farm.Hash64(a.payload)
	if a.mapped == nil {
		return nil
	}
	if err := a.h.MarshalTo(a.mapped); err != nil {
		return fmt.Errorf("fileHeader.MarshalTo: %w", err)
	}
	if err := unix.Msync(a.mapped, unix.MS_SYNC); err != nil {
		return fmt.Errorf("unix.Msync: %w", err)
	}
	return nil
}

// Close syncs (when writable), unmaps, and closes the backing file.  Safe
// to call more than once.
func (a *Arena) Close() error {
	if a.isClosed.Swap(true) {
		return nil
	}
	if a.mapped == nil {
		return nil
	}

	var firstErr error
	if !a.readonly {
		if err := a.Sync(); err != nil {
			firstErr = err
		}
	}
	if err := unix.Munmap(a.mapped); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("unix.Munmap: %w", err)
	}
	a.mapped = nil
	a.payload = nil
	if err := a.f.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("f.Close: %w", err)
	}
	return firstErr
}

// WriteTo serializes the arena as an image file: a freshly sealed header
// followed by the payload.  It works for in-memory and mapped arenas alike,
// read-only ones included.
func (a *Arena) WriteTo(w io.Writer) (n int64, err error) {
	h := newFileHeader(uint32(len(a.payload)))
	h.fingerprint = farm.Hash64(a.payload)

	var headerBuf [HeaderSize]byte
	if err := h.MarshalTo(headerBuf[:]); err != nil {
		return 0, fmt.Errorf("fileHeader.MarshalTo: %w", err)
	}
	hn, err := w.Write(headerBuf[:])
	n += int64(hn)
	if err != nil {
		return n, fmt.Errorf("write header: %w", err)
	}
	pn, err := w.Write(a.payload)
	n += int64(pn)
	if err != nil {
		return n, fmt.Errorf("write payload: %w", err)
	}
	return n, nil
}
