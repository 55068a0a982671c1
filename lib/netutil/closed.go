// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small networking helpers shared by the
// striped client and the chunk server.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsDisconnect reports whether err is a peer disconnect: EOF, closed
// connection, broken pipe, or connection reset. The chunk server sees
// these when a client unmounts or crashes mid-conversation; the client
// sees them when a backend dies. Both treat them as the end of the
// peer, not as a malfunction worth an error-level log line.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
