// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stripefs/stripefs/lib/wire"
)

// ErrConnectionLost reports that a backend connection closed or reset
// mid-operation. The connection is Dead once this is returned; the
// caller decides whether the stripe can absorb the loss.
var ErrConnectionLost = errors.New("backend connection lost")

// Conn is one persistent connection to one chunk server.
//
// Lock must be held across every request/response exchange (see the
// package comment). Send and receive methods assume the caller holds
// the lock; they do not lock internally.
type Conn struct {
	index   int
	address string

	// mu serializes use of the connection. Exported via Lock/Unlock
	// so a read or write session can hold the connection for its
	// whole lifetime.
	mu sync.Mutex

	netConn net.Conn
	dead    atomic.Bool
}

// Dial opens a connection to the chunk server at address. index is the
// connection's stripe role. A failed dial returns a Conn that is
// already Dead alongside the error, so the caller can still place it
// in a Set and let parity absorb the loss.
func Dial(ctx context.Context, index int, address string, timeout time.Duration) (*Conn, error) {
	conn := &Conn{index: index, address: address}
	netConn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		conn.dead.Store(true)
		return conn, fmt.Errorf("dial backend %d at %s: %w", index, address, err)
	}
	conn.netConn = netConn
	return conn, nil
}

// Index returns the connection's stripe role.
func (c *Conn) Index() int { return c.index }

// Address returns the configured backend address.
func (c *Conn) Address() string { return c.address }

// Dead reports whether the connection is permanently unusable.
func (c *Conn) Dead() bool { return c.dead.Load() }

// MarkDead transitions the connection to Dead and closes the
// underlying stream. Idempotent.
func (c *Conn) MarkDead() {
	if c.dead.Swap(true) {
		return
	}
	if c.netConn != nil {
		c.netConn.Close()
	}
}

// Lock acquires exclusive use of the connection.
func (c *Conn) Lock() { c.mu.Lock() }

// Unlock releases the connection.
func (c *Conn) Unlock() { c.mu.Unlock() }

// Close tears down the connection at client shutdown.
func (c *Conn) Close() error {
	if c.netConn == nil {
		return nil
	}
	return c.netConn.Close()
}

// fatal marks the connection Dead and wraps err as a connection loss.
func (c *Conn) fatal(operation string, err error) error {
	c.MarkDead()
	return fmt.Errorf("%s on backend %d (%s): %w: %v", operation, c.index, c.address, ErrConnectionLost, err)
}

// SendHeader writes a bare message header. Used for heartbeats, where
// the length field is a correlation token rather than a payload size.
func (c *Conn) SendHeader(h wire.Header) error {
	if c.Dead() {
		return fmt.Errorf("backend %d is dead: %w", c.index, ErrConnectionLost)
	}
	if err := wire.WriteHeader(c.netConn, h); err != nil {
		return c.fatal("send header", err)
	}
	return nil
}

// SendMessage writes a header for payload followed by the payload.
func (c *Conn) SendMessage(kind wire.Kind, payload []byte) error {
	if c.Dead() {
		return fmt.Errorf("backend %d is dead: %w", c.index, ErrConnectionLost)
	}
	if err := wire.WriteMessage(c.netConn, kind, payload); err != nil {
		return c.fatal("send message", err)
	}
	return nil
}

// ReadHeader reads one message header. Protocol errors (a well-formed
// read of invalid bytes) pass through unchanged; I/O errors mark the
// connection Dead.
func (c *Conn) ReadHeader() (wire.Header, error) {
	if c.Dead() {
		return wire.Header{}, fmt.Errorf("backend %d is dead: %w", c.index, ErrConnectionLost)
	}
	header, err := wire.ReadHeader(c.netConn)
	if err != nil {
		var protocolErr *wire.ProtocolError
		if errors.As(err, &protocolErr) {
			return wire.Header{}, err
		}
		return wire.Header{}, c.fatal("read header", err)
	}
	return header, nil
}

// Receive fills buf completely from the connection, blocking until
// every byte has arrived or the stream fails.
func (c *Conn) Receive(buf []byte) error {
	if c.Dead() {
		return fmt.Errorf("backend %d is dead: %w", c.index, ErrConnectionLost)
	}
	if _, err := io.ReadFull(c.netConn, buf); err != nil {
		return c.fatal("receive", err)
	}
	return nil
}

// Drain discards exactly n bytes from the connection. Sessions use
// this to consume stream regions they do not need, keeping the framing
// intact for the next operation on the connection.
func (c *Conn) Drain(n int64) error {
	if n == 0 {
		return nil
	}
	if c.Dead() {
		return fmt.Errorf("backend %d is dead: %w", c.index, ErrConnectionLost)
	}
	if _, err := io.CopyN(io.Discard, c.netConn, n); err != nil {
		return c.fatal("drain", err)
	}
	return nil
}

// Heartbeat probes the connection: it sends a HEARTBEAT header whose
// length field carries correlation and requires the peer to echo the
// identical header within timeout. Any mismatch, timeout, or I/O
// failure marks the connection Dead.
//
// The caller must hold the connection's lock.
func (c *Conn) Heartbeat(timeout time.Duration, correlation uint64) error {
	if c.Dead() {
		return fmt.Errorf("backend %d is dead: %w", c.index, ErrConnectionLost)
	}
	if err := c.netConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return c.fatal("set heartbeat deadline", err)
	}
	defer c.netConn.SetDeadline(time.Time{})

	if err := c.SendHeader(wire.Header{Kind: wire.KindHeartbeat, Length: correlation}); err != nil {
		return err
	}
	echo, err := c.ReadHeader()
	if err != nil {
		return err
	}
	if echo.Kind != wire.KindHeartbeat || echo.Length != correlation {
		c.MarkDead()
		return fmt.Errorf("backend %d heartbeat echo mismatch (sent %d, got %s %d): %w",
			c.index, correlation, echo.Kind, echo.Length, ErrConnectionLost)
	}
	return nil
}
