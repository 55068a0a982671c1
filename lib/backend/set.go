// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// DefaultDialTimeout bounds the initial connection attempt per backend.
const DefaultDialTimeout = 10 * time.Second

// DefaultHeartbeatTimeout bounds one heartbeat round trip.
const DefaultHeartbeatTimeout = 5 * time.Second

// Set is the ordered collection of backend connections for one mount.
// The index of a connection in the set is its stripe role: the address
// list order given at connect time defines roles 0..N-1.
type Set struct {
	conns  []*Conn
	logger *slog.Logger
}

// Connect dials every address in order and returns the resulting Set.
// A backend that cannot be reached yields a Dead connection rather
// than a failure: whether the operation can proceed is the caller's
// per-operation precondition (at most one Dead connection), not a
// connect-time decision.
func Connect(ctx context.Context, addresses []string, dialTimeout time.Duration, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dialTimeout == 0 {
		dialTimeout = DefaultDialTimeout
	}
	conns := make([]*Conn, len(addresses))
	for i, address := range addresses {
		conn, err := Dial(ctx, i, address, dialTimeout)
		if err != nil {
			logger.Warn("backend unreachable at connect", "index", i, "address", address, "error", err)
		}
		conns[i] = conn
	}
	return &Set{conns: conns, logger: logger}
}

// NewSet wraps pre-built connections. Used by tests that construct
// connections over pipes or loopback listeners.
func NewSet(conns []*Conn, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Set{conns: conns, logger: logger}
}

// Len returns N, the total number of backends.
func (s *Set) Len() int { return len(s.conns) }

// Conn returns the connection for the given stripe role.
func (s *Set) Conn(index int) *Conn { return s.conns[index] }

// LiveIndices returns the roles whose connections are Live, in order.
func (s *Set) LiveIndices() []int {
	live := make([]int, 0, len(s.conns))
	for i, conn := range s.conns {
		if !conn.Dead() {
			live = append(live, i)
		}
	}
	return live
}

// MarkDead transitions the connection for the given role to Dead.
func (s *Set) MarkDead(index int) {
	s.conns[index].MarkDead()
	s.logger.Warn("backend marked dead", "index", index, "address", s.conns[index].Address())
}

// DeadCount returns the number of Dead connections. Orchestrators
// consult this before starting an operation: 0 or 1 is workable, 2 or
// more is unrecoverable.
func (s *Set) DeadCount() int {
	count := 0
	for _, conn := range s.conns {
		if conn.Dead() {
			count++
		}
	}
	return count
}

// Refresh probes every Live connection with a heartbeat, marking
// failures Dead. Called opportunistically before operations so that a
// backend that died while idle is discovered before it is counted on.
func (s *Set) Refresh(timeout time.Duration) {
	if timeout == 0 {
		timeout = DefaultHeartbeatTimeout
	}
	for _, conn := range s.conns {
		if conn.Dead() {
			continue
		}
		conn.Lock()
		err := conn.Heartbeat(timeout, rand.Uint64())
		conn.Unlock()
		if err != nil {
			s.logger.Warn("heartbeat failed", "index", conn.Index(), "error", err)
		}
	}
}

// Close tears down every connection.
func (s *Set) Close() {
	for _, conn := range s.conns {
		conn.Close()
	}
}
