// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package mount implements the FUSE filesystem over the striped store.
//
// The directory tree is served from the local metadata mirror: lookup,
// stat, and readdir never touch the network. File content comes from
// the backends through the striping engine.
//
// # Read Path
//
// Opening a file for reading fetches the complete content from the
// backends in one striped session and verifies it against the recorded
// BLAKE3 hash. Reads at arbitrary offsets are then served from that
// buffer. Content served through an open handle is immutable, so the
// kernel page cache is kept across opens.
//
// # Write Path
//
// Writes are buffered in memory and flushed as one striped write when
// the file descriptor closes, followed by a metadata record update.
// Only whole-file replacement is supported: opening for write always
// starts from an empty buffer, and O_APPEND is rejected.
package mount
