// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keep

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBacked_WarmRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.keep")
	key := MakeKey(1, 1, 1)

	db, err := New(WithFile(path))
	require.NoError(t, err)
	require.NoError(t, db.Initialize(nil))
	require.NoError(t, db.Set(key, []byte("survives restart")))
	require.NoError(t, db.Sync())
	require.NoError(t, db.Close())

	// a second handle adopts the same image without reformatting
	db2, err := New(WithFile(path))
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()
	require.NoError(t, db2.Attach(nil))

	got, err := db2.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("survives restart"), got)
	require.NoError(t, db2.Validate())
	assert.Equal(t, 1, db2.Stats().Partitions[PartitionSave].Entries)
}

func TestAttach_WrongConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.keep")

	db, err := New(WithFile(path))
	require.NoError(t, err)
	require.NoError(t, db.Initialize(nil))
	require.NoError(t, db.Close())

	// attaching with mismatched partition sizes splits the arena at the
	// wrong offsets, and verification catches it
	db2, err := New(WithFile(path))
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()
	require.ErrorIs(t, db2.Attach(ConfigTiny()), ErrMemoryCorrupted)

	// the failed attach leaves the handle uninitialized
	require.ErrorIs(t, db2.Set(MakeKey(1, 1, 1), []byte("x")), ErrNotInitialized)
}

func TestAttach_FreshArena(t *testing.T) {
	db, err := New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	// an all-zero arena has no partition headers to adopt
	require.ErrorIs(t, db.Attach(nil), ErrMemoryCorrupted)
}

func TestAttach_Twice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.keep")

	db, err := New(WithFile(path))
	require.NoError(t, err)
	require.NoError(t, db.Initialize(nil))
	require.NoError(t, db.Close())

	db2, err := New(WithFile(path))
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()
	require.NoError(t, db2.Attach(nil))
	require.ErrorIs(t, db2.Attach(nil), ErrNotInitialized)
}

func TestReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.keep")
	key := MakeKey(1, 1, 1)

	db, err := New(WithFile(path))
	require.NoError(t, err)
	require.NoError(t, db.Initialize(nil))
	require.NoError(t, db.Set(key, []byte("frozen")))
	require.NoError(t, db.Close())

	ro, err := New(WithFile(path), WithReadOnly())
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()

	// formatting a read-only image is refused before attach
	require.ErrorIs(t, ro.Initialize(nil), ErrReadOnly)

	require.NoError(t, ro.Attach(nil))
	got, err := ro.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("frozen"), got)
	assert.True(t, ro.Exists(key))

	require.ErrorIs(t, ro.Set(key, []byte("thaw")), ErrReadOnly)
	require.ErrorIs(t, ro.SetU8(key, 1), ErrReadOnly)
	require.ErrorIs(t, ro.Sync(), ErrReadOnly)

	// exporting a read-only image is fine
	var buf bytes.Buffer
	_, err = ro.WriteTo(&buf)
	require.NoError(t, err)
}

func TestWriteTo_ExportImport(t *testing.T) {
	key := MakeKey(4, 4, 4)

	src, err := New()
	require.NoError(t, err)
	require.NoError(t, src.Initialize(nil))
	require.NoError(t, src.Set(key, []byte("exported")))

	var buf bytes.Buffer
	n, err := src.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(32+ArenaSize), n)
	require.NoError(t, src.Close())

	// the exported stream is a valid image file
	path := filepath.Join(t.TempDir(), "exported.keep")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	dst, err := New(WithFile(path))
	require.NoError(t, err)
	defer func() { _ = dst.Close() }()
	require.NoError(t, dst.Attach(nil))

	got, err := dst.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("exported"), got)
}

func TestNew_ReadOnlyNeedsFile(t *testing.T) {
	_, err := New(WithReadOnly())
	require.Error(t, err) // this should be an error

	_, err = New(WithFile(filepath.Join(t.TempDir(), "missing.keep")), WithReadOnly())
	require.Error(t, err)
}
