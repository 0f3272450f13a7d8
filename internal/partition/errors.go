// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package partition

import "errors"

// Sentinel errors produced by the partition format layer.  The public keep
// package re-exports these so callers can match with errors.Is without
// importing an internal package.
var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrPartitionFull   = errors.New("partition full")
	ErrEntryTooLarge   = errors.New("entry too large")
	ErrBufferOverflow  = errors.New("buffer overflow")
	ErrIndexOverflow   = errors.New("entry index overflow")
	ErrMemoryCorrupted = errors.New("memory corrupted")
	ErrInvalidConfig   = errors.New("invalid config")
	ErrChecksumFailed  = errors.New("checksum mismatch")
)
