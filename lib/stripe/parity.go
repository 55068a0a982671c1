// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package stripe

import "fmt"

// Parity computes the XOR parity chunk for one round's data chunks.
// The result is as long as the longest input; shorter inputs (the
// ragged tail of a final partial round) contribute as if zero-extended.
func Parity(dataChunks [][]byte) []byte {
	longest := 0
	for _, chunk := range dataChunks {
		if len(chunk) > longest {
			longest = len(chunk)
		}
	}
	parity := make([]byte, longest)
	for _, chunk := range dataChunks {
		for i, b := range chunk {
			parity[i] ^= b
		}
	}
	return parity
}

// Reconstruct recovers the chunk of the single missing data role from
// the present data chunks and the parity chunk. chunks holds one entry
// per data role with the missing role set to nil; parity must be
// non-nil. length is the layout length of the missing chunk
// (Layout.ChunkLength), which may be shorter than the parity chunk in
// a final partial round.
//
// Reconstruction with more than one missing role is undefined; callers
// must have rejected that case before transferring any data.
func Reconstruct(chunks [][]byte, parity []byte, length int64) ([]byte, error) {
	missing := -1
	for role, chunk := range chunks {
		if chunk != nil {
			continue
		}
		if missing >= 0 {
			return nil, fmt.Errorf("cannot reconstruct: data roles %d and %d both missing", missing, role)
		}
		missing = role
	}
	if missing < 0 {
		return nil, fmt.Errorf("cannot reconstruct: no data role is missing")
	}
	if length > int64(len(parity)) {
		return nil, fmt.Errorf("cannot reconstruct %d bytes from %d parity bytes", length, len(parity))
	}

	recovered := make([]byte, length)
	copy(recovered, parity[:length])
	for role, chunk := range chunks {
		if role == missing {
			continue
		}
		for i, b := range chunk {
			if int64(i) >= length {
				break
			}
			recovered[i] ^= b
		}
	}
	return recovered, nil
}
