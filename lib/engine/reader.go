// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stripefs/stripefs/lib/backend"
	"github.com/stripefs/stripefs/lib/stripe"
	"github.com/stripefs/stripefs/lib/wire"
)

// ReadAll reads the whole file at path.
func (e *Engine) ReadAll(path string) ([]byte, error) {
	return e.ReadAt(path, 0, -1)
}

// ReadAt reads length bytes starting at offset. A negative length
// means "to end of file"; a range extending past the end is clamped.
// Either the full clamped range is returned, correctly reconstructed,
// or an error; never partial data.
func (e *Engine) ReadAt(path string, offset, length int64) ([]byte, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative read offset %d", offset)
	}
	size, err := e.size(path)
	if err != nil {
		return nil, err
	}
	if offset >= size || length == 0 {
		return []byte{}, nil
	}
	if length < 0 || offset+length > size {
		length = size - offset
	}

	if err := e.checkTolerance(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	session := &readSession{
		engine: e,
		path:   path,
		size:   size,
		conns:  e.lockLive(),
	}
	defer unlockAll(session.conns)

	if err := session.start(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	output, err := session.pull(offset, length)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	session.drainRemainder()
	return output, nil
}

// readSession is the bookkeeping for one logical read: the locked
// connections, the per-role consumption cursors, and nothing shared
// with any other session.
type readSession struct {
	engine *Engine
	path   string
	size   int64

	// conns holds the locked connection per role; nil for roles dead
	// at session start. A role whose connection dies mid-session keeps
	// its entry (the conn knows it is dead) so drainRemainder can skip
	// it cleanly.
	conns []*backend.Conn

	// consumed counts the slice bytes taken from each role so far,
	// so the remainder can be drained when the requested range ends
	// before the file does.
	consumed []int64
}

// start issues the READ request on every live connection concurrently
// and validates each response header against the slice length the
// layout predicts for that role.
func (s *readSession) start() error {
	layout := s.engine.layout
	s.consumed = make([]int64, len(s.conns))

	var wait sync.WaitGroup
	sessionErrs := make([]error, len(s.conns))
	announced := make([]int64, len(s.conns))
	for role, conn := range s.conns {
		if conn == nil {
			continue
		}
		wait.Add(1)
		go func() {
			defer wait.Done()
			if err := conn.SendMessage(wire.KindRead, []byte(s.path)); err != nil {
				// Connection loss here is absorbed by the fault
				// budget re-check below, not by this role.
				return
			}
			header, err := conn.ReadHeader()
			if err != nil {
				var protocolErr *wire.ProtocolError
				if errors.As(err, &protocolErr) {
					sessionErrs[role] = err
					conn.MarkDead()
				}
				return
			}
			if header.Kind != wire.KindRead {
				sessionErrs[role] = wire.Errorf("backend %d answered READ with %s", role, header.Kind)
				conn.MarkDead()
				return
			}
			expected := layout.SliceSize(s.size, role)
			switch {
			case header.Length == uint64(expected):
				announced[role] = expected
			case header.Length == 0:
				sessionErrs[role] = fmt.Errorf("backend %d has no slice for %s: %w", role, s.path, ErrPathNotFound)
			default:
				sessionErrs[role] = wire.Errorf("backend %d slice length %d, layout predicts %d",
					role, header.Length, expected)
				conn.MarkDead()
			}
		}()
	}
	wait.Wait()

	// Path and protocol failures abort the session outright; they are
	// not connection losses the parity can paper over. Backends that
	// already announced their slice have its payload in flight, so
	// drain them to keep the framing clean.
	for _, err := range sessionErrs {
		if err != nil {
			s.abandon(announced)
			return err
		}
	}
	return s.engine.checkTolerance()
}

// abandon drains the announced slice payloads of live connections when
// the session aborts before transferring any rounds.
func (s *readSession) abandon(announced []int64) {
	for role, conn := range s.conns {
		if conn == nil || conn.Dead() || announced[role] == 0 {
			continue
		}
		if err := conn.Drain(announced[role]); err != nil {
			s.engine.logger.Warn("backend lost abandoning read",
				"path", s.path, "role", role, "error", err)
		}
	}
}

// pull transfers rounds until the requested range is assembled.
// Rounds before the range are consumed and discarded; round k+1 never
// begins before round k has completed on every live connection.
func (s *readSession) pull(offset, length int64) ([]byte, error) {
	layout := s.engine.layout
	stride := layout.Stride()
	startRound := offset / stride
	endRound := (offset + length - 1) / stride
	output := make([]byte, 0, length)

	for round := int64(0); round <= endRound; round++ {
		if round < startRound {
			if err := s.discardRound(round); err != nil {
				return nil, err
			}
			continue
		}
		roundBytes, err := s.receiveRound(round)
		if err != nil {
			return nil, err
		}
		roundStart := round * stride
		from := max(offset, roundStart)
		to := min(offset+length, roundStart+int64(len(roundBytes)))
		if to > from {
			output = append(output, roundBytes[from-roundStart:to-roundStart]...)
		}
	}
	if int64(len(output)) != length {
		return nil, fmt.Errorf("assembled %d bytes, requested %d: %w", len(output), length, ErrUnrecoverable)
	}
	return output, nil
}

// discardRound drains one round's chunk from every live connection
// without keeping the bytes.
func (s *readSession) discardRound(round int64) error {
	layout := s.engine.layout
	for role, conn := range s.conns {
		if conn == nil || conn.Dead() {
			continue
		}
		chunkLen := layout.ChunkLength(s.size, round, role)
		if chunkLen == 0 {
			continue
		}
		if err := conn.Drain(chunkLen); err != nil {
			s.engine.logger.Warn("backend lost while skipping rounds",
				"path", s.path, "round", round, "role", role, "error", err)
		} else {
			s.consumed[role] += chunkLen
		}
	}
	return s.engine.checkTolerance()
}

// receiveRound pulls one chunk from every live connection (one worker
// per connection, joined at the round boundary), reconstructs the
// chunk of a single dead data role if needed, and returns the round's
// logical bytes in role order.
func (s *readSession) receiveRound(round int64) ([]byte, error) {
	layout := s.engine.layout
	dataRoles := layout.DataRoles()
	parityRole := layout.ParityRole()

	chunks := make([][]byte, len(s.conns))
	var wait sync.WaitGroup
	for role, conn := range s.conns {
		if conn == nil || conn.Dead() {
			continue
		}
		chunkLen := layout.ChunkLength(s.size, round, role)
		if chunkLen == 0 {
			chunks[role] = []byte{}
			continue
		}
		wait.Add(1)
		go func() {
			defer wait.Done()
			buf := make([]byte, chunkLen)
			if err := conn.Receive(buf); err != nil {
				s.engine.logger.Warn("backend lost mid-round",
					"path", s.path, "round", round, "role", role, "error", err)
				return
			}
			chunks[role] = buf
			s.consumed[role] += chunkLen
		}()
	}
	wait.Wait()

	if err := s.engine.checkTolerance(); err != nil {
		return nil, err
	}

	// Zero-length chunks of a partial round count as present even for
	// dead roles; only a missing chunk with real length needs parity.
	dataChunks := make([][]byte, dataRoles)
	missing := -1
	for role := 0; role < dataRoles; role++ {
		chunkLen := layout.ChunkLength(s.size, round, role)
		if chunkLen == 0 {
			dataChunks[role] = []byte{}
			continue
		}
		if chunks[role] == nil {
			if missing >= 0 {
				return nil, fmt.Errorf("round %d missing data roles %d and %d: %w",
					round, missing, role, ErrUnrecoverable)
			}
			missing = role
			continue
		}
		dataChunks[role] = chunks[role]
	}

	if missing >= 0 {
		if parityRole < 0 || chunks[parityRole] == nil {
			return nil, fmt.Errorf("round %d: data role %d missing and no parity chunk: %w",
				round, missing, ErrUnrecoverable)
		}
		recovered, err := stripe.Reconstruct(dataChunks, chunks[parityRole], layout.ChunkLength(s.size, round, missing))
		if err != nil {
			return nil, fmt.Errorf("round %d: %v: %w", round, err, ErrUnrecoverable)
		}
		dataChunks[missing] = recovered
	}

	roundBytes := make([]byte, 0, layout.Stride())
	for _, chunk := range dataChunks {
		roundBytes = append(roundBytes, chunk...)
	}
	return roundBytes, nil
}

// drainRemainder consumes the unread tail of every live connection's
// slice so the stream framing is clean for the next operation. By this
// point the requested range has been assembled; a loss here costs the
// connection but not the read.
func (s *readSession) drainRemainder() {
	layout := s.engine.layout
	for role, conn := range s.conns {
		if conn == nil || conn.Dead() {
			continue
		}
		remaining := layout.SliceSize(s.size, role) - s.consumed[role]
		if remaining <= 0 {
			continue
		}
		if err := conn.Drain(remaining); err != nil {
			s.engine.logger.Warn("backend lost draining slice tail",
				"path", s.path, "role", role, "remaining", remaining, "error", err)
		}
	}
}
