// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"sync"

	"github.com/stripefs/stripefs/lib/stripe"
	"github.com/stripefs/stripefs/lib/wire"
)

// Write stores data as the complete content of the file at path:
// WRITE_PATH establishes the destination on every live connection,
// then each round's data chunks and parity chunk are pushed
// concurrently, one worker per connection joined at the round
// boundary. A backend that is dead simply does not receive its slice;
// a second loss mid-write aborts, since the result would already be
// unreadable.
func (e *Engine) Write(path string, data []byte) error {
	if err := e.checkTolerance(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	conns := e.lockLive()
	defer unlockAll(conns)

	// Establish the destination path everywhere first. The server
	// sends no response; a send failure is a connection loss.
	var wait sync.WaitGroup
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		wait.Add(1)
		go func() {
			defer wait.Done()
			if err := conn.SendMessage(wire.KindWritePath, []byte(path)); err != nil {
				e.logger.Warn("backend lost establishing write path",
					"path", path, "role", conn.Index(), "error", err)
			}
		}()
	}
	wait.Wait()
	if err := e.checkTolerance(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	layout := e.layout
	size := int64(len(data))
	parityRole := layout.ParityRole()

	for round := int64(0); round < layout.Rounds(size); round++ {
		// Slice this round's data chunks out of the input. No copies:
		// chunks alias data.
		dataChunks := make([][]byte, layout.DataRoles())
		for role := range dataChunks {
			chunkLen := layout.ChunkLength(size, round, role)
			if chunkLen == 0 {
				dataChunks[role] = nil
				continue
			}
			start := round*layout.Stride() + int64(role)*layout.ChunkSize
			dataChunks[role] = data[start : start+chunkLen]
		}

		var parityChunk []byte
		if parityRole >= 0 {
			parityChunk = stripe.Parity(dataChunks)
		}

		var roundWait sync.WaitGroup
		for role, conn := range conns {
			if conn == nil || conn.Dead() {
				continue
			}
			chunk := parityChunk
			if role != parityRole {
				chunk = dataChunks[role]
			}
			if len(chunk) == 0 {
				// Partial final round: this role carries nothing.
				continue
			}
			roundWait.Add(1)
			go func() {
				defer roundWait.Done()
				if err := conn.SendMessage(wire.KindWrite, chunk); err != nil {
					e.logger.Warn("backend lost mid-write",
						"path", path, "round", round, "role", role, "error", err)
				}
			}()
		}
		roundWait.Wait()

		if err := e.checkTolerance(); err != nil {
			return fmt.Errorf("write %s round %d: %w", path, round, err)
		}
	}
	return nil
}
