// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package stripe implements the pure arithmetic of the striping
// scheme: the mapping between logical file byte ranges and
// (backend role, round) coordinates, and the XOR parity used to
// reconstruct the data carried by a single unavailable backend.
//
// With N backends and a fixed chunk size, roles 0..N-2 carry data and
// role N-1 carries parity. One round transfers one chunk per role;
// the logical bytes covered per round (the stride) are
// chunkSize × (N-1). For N = 1 there is no parity and no splitting.
//
// Nothing in this package performs I/O.
package stripe
