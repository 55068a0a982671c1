// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the striped, single-fault-tolerant read
// and write orchestrators.
//
// A read fans one logical file in from every live backend connection,
// round by round, reconstructing the chunk of at most one dead backend
// from the XOR parity stream, and reassembles the bytes in the exact
// order the caller asked for. A write is the mirror image: it splits a
// contiguous byte stream into rounds, computes the parity chunk, and
// pushes one chunk per role to every live connection.
//
// Each call builds a session that owns all of its mutable state; the
// only resource shared between concurrent sessions is the connection
// set, and a session holds every participating connection's lock for
// its whole lifetime (the wire protocol cannot interleave requests).
// Errors are resolved at the session boundary: a call either returns
// the full requested range, correctly reconstructed, or fails as a
// whole. No partial data is ever returned.
package engine
