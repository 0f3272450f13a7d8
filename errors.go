// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package keep

import (
	"errors"

	"github.com/bpowers/keep/internal/imagefile"
	"github.com/bpowers/keep/internal/partition"
)

// The error taxonomy every operation draws from.  Errors originating in the
// format layer are re-exported here so callers only ever need errors.Is
// against this package.
var (
	// ErrInvalidKey rejects zero, all-ones, or per-field sentinel keys.
	ErrInvalidKey = errors.New("invalid key")

	// ErrKeyNotFound means no searched partition holds the key.
	ErrKeyNotFound = partition.ErrKeyNotFound

	// ErrPartitionFull means the target partition cannot fit another record.
	ErrPartitionFull = partition.ErrPartitionFull

	// ErrEntryTooLarge rejects payloads outside [1, MaxEntrySize].
	ErrEntryTooLarge = partition.ErrEntryTooLarge

	// ErrInvalidPartition means an internal path addressed a partition that
	// does not exist, or was handed an unusable destination buffer.
	ErrInvalidPartition = errors.New("invalid partition")

	// ErrBufferOverflow means a stored payload does not fit the caller's
	// buffer, or a computed access would cross a partition boundary.
	ErrBufferOverflow = partition.ErrBufferOverflow

	// ErrIndexOverflow means a partition already indexes its maximum
	// number of entries.
	ErrIndexOverflow = partition.ErrIndexOverflow

	// ErrMemoryCorrupted means a structural invariant failed mid-scan.
	ErrMemoryCorrupted = partition.ErrMemoryCorrupted

	// ErrSafetyViolation is reserved in the taxonomy; no current code path
	// produces it.
	ErrSafetyViolation = errors.New("safety violation")

	// ErrReadOnly rejects mutations through a read-only image.
	ErrReadOnly = imagefile.ErrReadOnly

	// ErrNotInitialized is the lifecycle error: an operation needed an
	// initialized database, or Initialize was called on one.
	ErrNotInitialized = errors.New("not initialized")

	// ErrInvalidConfig rejects impossible partition layouts.
	ErrInvalidConfig = partition.ErrInvalidConfig

	// ErrChecksumFailed means a partition's stored checksum does not match
	// its contents.
	ErrChecksumFailed = partition.ErrChecksumFailed
)
