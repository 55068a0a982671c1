// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the message framing shared by the striped
// client and the chunk server.
//
// Every message starts with a fixed 12-byte header: a uint32 message
// kind followed by a uint64 payload length, both big-endian, no
// padding. The header is followed by exactly length bytes of payload,
// streamed without further framing. HEARTBEAT messages carry no
// payload and reuse the length field as a correlation token.
package wire
