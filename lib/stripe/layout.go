// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package stripe

import "fmt"

// DefaultChunkSize is the chunk size used when the configuration does
// not override it. Matches the chunk server's historical 1 MiB unit.
const DefaultChunkSize = 1 << 20

// Layout captures the derived striping constants for one backend set.
// It is a value type: construct once per mount and pass by value.
type Layout struct {
	// Backends is the total number of backends N (data roles plus,
	// for N > 1, the parity role).
	Backends int

	// ChunkSize is the fixed per-role transfer unit in bytes.
	ChunkSize int64
}

// NewLayout validates and builds a Layout. backends must be at least 1
// and chunkSize at least 1.
func NewLayout(backends int, chunkSize int64) (Layout, error) {
	if backends < 1 {
		return Layout{}, fmt.Errorf("layout requires at least one backend, got %d", backends)
	}
	if chunkSize < 1 {
		return Layout{}, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	return Layout{Backends: backends, ChunkSize: chunkSize}, nil
}

// DataRoles returns the number of data-carrying roles: N-1, or 1 when
// there is only a single backend (which then carries the file
// verbatim with no parity).
func (l Layout) DataRoles() int {
	if l.Backends > 1 {
		return l.Backends - 1
	}
	return 1
}

// ParityRole returns the index of the parity role, or -1 when N = 1
// and no parity exists.
func (l Layout) ParityRole() int {
	if l.Backends > 1 {
		return l.Backends - 1
	}
	return -1
}

// Stride returns the logical file bytes covered by one round across
// all data roles.
func (l Layout) Stride() int64 {
	return l.ChunkSize * int64(l.DataRoles())
}

// RoundForOffset returns the round containing the logical offset.
func (l Layout) RoundForOffset(offset int64) int64 {
	return offset / l.Stride()
}

// RoleForOffset returns the (round, data role) coordinate of a logical
// byte offset. The parity role is never addressed by a logical offset.
func (l Layout) RoleForOffset(offset int64) (round int64, role int) {
	round = offset / l.Stride()
	role = int((offset % l.Stride()) / l.ChunkSize)
	return round, role
}

// Rounds returns the number of rounds needed to transfer a file of
// the given total size. A zero-byte file needs no rounds.
func (l Layout) Rounds(total int64) int64 {
	stride := l.Stride()
	return (total + stride - 1) / stride
}

// ChunkLength returns the number of bytes the given role carries in
// the given round of a file of the given total size. All chunks are
// ChunkSize except in the final partial round, where data role i
// carries clamp(rem - i*ChunkSize, 0, ChunkSize) of the remaining
// bytes and the parity role carries as many bytes as the longest data
// chunk (data role 0's). Slices are never zero-padded on the wire or
// at rest.
func (l Layout) ChunkLength(total, round int64, role int) int64 {
	if round < 0 || round >= l.Rounds(total) {
		return 0
	}
	if l.Backends == 1 {
		// Single backend: one conceptual round per chunk of the
		// verbatim file.
		remaining := total - round*l.ChunkSize
		return min(remaining, l.ChunkSize)
	}
	remaining := total - round*l.Stride()
	if remaining >= l.Stride() {
		return l.ChunkSize
	}
	dataRole := role
	if role == l.ParityRole() {
		// Parity is as long as the longest data chunk this round.
		dataRole = 0
	}
	length := remaining - int64(dataRole)*l.ChunkSize
	if length < 0 {
		return 0
	}
	return min(length, l.ChunkSize)
}

// SliceSize returns the total number of bytes the given role
// transports over the life of a transfer of the given total size.
// This is the size of the file the backend for that role stores, and
// the length the backend reports in its READ response header.
func (l Layout) SliceSize(total int64, role int) int64 {
	if l.Backends == 1 {
		return total
	}
	rounds := l.Rounds(total)
	if rounds == 0 {
		return 0
	}
	// All rounds but the last are full chunks.
	size := (rounds - 1) * l.ChunkSize
	return size + l.ChunkLength(total, rounds-1, role)
}
