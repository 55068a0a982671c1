// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package meta implements the local metadata mirror: one small CBOR
// record per stored file, kept in a local directory tree that shadows
// the mount's namespace.
//
// The mirror is the authoritative answer for stat and readdir: the
// backends hold slices, not files, so only the mirror knows a file's
// logical size. A path with no record does not exist, regardless of
// what any backend holds. Records also carry a BLAKE3 content hash so
// a read that went through parity reconstruction can be verified
// end to end.
package meta
