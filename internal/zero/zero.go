// Copyright 2025 The keep Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package zero fills in-place slices with their zero value.
package zero

// Bytes zeroes b without changing its length or capacity.  Partition
// formatting uses it to scrub entry regions that may hold stale records
// from an earlier lifecycle.
func Bytes(b []byte) {
	for i := 0; i < len(b); i++ {
		b[i] = 0
	}
}
