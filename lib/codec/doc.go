// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration for
// on-disk records, so every package encodes identically without
// duplicating configuration.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, which keeps
// metadata records byte-comparable across rewrites.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
package codec
