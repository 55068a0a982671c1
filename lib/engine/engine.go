// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/stripefs/stripefs/lib/backend"
	"github.com/stripefs/stripefs/lib/stripe"
)

// Sizer resolves a path to its logical file size. The metadata mirror
// is the production implementation; tests supply a map. A missing path
// is reported with an error satisfying errors.Is(err, fs.ErrNotExist).
type Sizer interface {
	Size(path string) (int64, error)
}

// Engine executes striped reads and writes against a connection set.
// Safe for concurrent use: each call builds its own session and the
// connection set serializes access per connection.
type Engine struct {
	set    *backend.Set
	layout stripe.Layout
	sizes  Sizer
	logger *slog.Logger
}

// New builds an Engine. The connection set's length must match the
// layout's backend count. logger may be nil.
func New(set *backend.Set, layout stripe.Layout, sizes Sizer, logger *slog.Logger) (*Engine, error) {
	if set.Len() != layout.Backends {
		return nil, fmt.Errorf("connection set has %d backends, layout expects %d", set.Len(), layout.Backends)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{set: set, layout: layout, sizes: sizes, logger: logger}, nil
}

// Layout returns the engine's stripe layout.
func (e *Engine) Layout() stripe.Layout { return e.layout }

// checkTolerance enforces the stripe's fault budget: at most one dead
// connection, and none at all for a single-backend layout. Called
// before a session starts and re-evaluated after every loss discovered
// mid-session.
func (e *Engine) checkTolerance() error {
	dead := e.set.DeadCount()
	if dead == 0 {
		return nil
	}
	if e.layout.Backends == 1 {
		return fmt.Errorf("single backend is dead, no parity to recover from: %w", ErrUnrecoverable)
	}
	if dead > 1 {
		return fmt.Errorf("%d backends dead, single parity tolerates one: %w", dead, ErrUnrecoverable)
	}
	return nil
}

// size resolves the logical file size, mapping a missing metadata
// record to ErrPathNotFound.
func (e *Engine) size(path string) (int64, error) {
	size, err := e.sizes.Size(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", path, ErrPathNotFound)
		}
		return 0, fmt.Errorf("looking up size of %s: %w", path, err)
	}
	return size, nil
}

// lockLive acquires, in role order, the lock of every connection that
// is live right now, and returns the locked connections indexed by
// role (nil for roles that were already dead). Role order prevents
// lock-order inversion between concurrent sessions.
func (e *Engine) lockLive() []*backend.Conn {
	conns := make([]*backend.Conn, e.set.Len())
	for role := range e.set.Len() {
		conn := e.set.Conn(role)
		if conn.Dead() {
			continue
		}
		conn.Lock()
		conns[role] = conn
	}
	return conns
}

// unlockAll releases every lock taken by lockLive.
func unlockAll(conns []*backend.Conn) {
	for _, conn := range conns {
		if conn != nil {
			conn.Unlock()
		}
	}
}
