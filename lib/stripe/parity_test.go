// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package stripe

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestParityInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	chunks := make([][]byte, 3)
	for i := range chunks {
		chunks[i] = make([]byte, 256)
		rng.Read(chunks[i])
	}
	parity := Parity(chunks)
	if len(parity) != 256 {
		t.Fatalf("parity length = %d, want 256", len(parity))
	}
	for i := range parity {
		want := chunks[0][i] ^ chunks[1][i] ^ chunks[2][i]
		if parity[i] != want {
			t.Fatalf("parity[%d] = %#x, want %#x", i, parity[i], want)
		}
	}
}

func TestParityRaggedChunks(t *testing.T) {
	chunks := [][]byte{
		{0xff, 0x0f, 0xaa},
		{0xf0},
	}
	parity := Parity(chunks)
	want := []byte{0x0f, 0x0f, 0xaa}
	if !bytes.Equal(parity, want) {
		t.Errorf("parity = %x, want %x", parity, want)
	}
}

func TestReconstructEachRole(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	original := make([][]byte, 4)
	for i := range original {
		original[i] = make([]byte, 128)
		rng.Read(original[i])
	}
	parity := Parity(original)

	for missing := range original {
		chunks := make([][]byte, len(original))
		copy(chunks, original)
		chunks[missing] = nil

		recovered, err := Reconstruct(chunks, parity, 128)
		if err != nil {
			t.Fatalf("Reconstruct with role %d missing: %v", missing, err)
		}
		if !bytes.Equal(recovered, original[missing]) {
			t.Errorf("role %d: reconstructed chunk differs from original", missing)
		}
	}
}

func TestReconstructShortFinalChunk(t *testing.T) {
	// Final partial round: role 0 has 100 bytes, role 1 has 40.
	role0 := bytes.Repeat([]byte{0x5a}, 100)
	role1 := bytes.Repeat([]byte{0xa5}, 40)
	parity := Parity([][]byte{role0, role1})

	recovered, err := Reconstruct([][]byte{role0, nil}, parity, 40)
	if err != nil {
		t.Fatalf("Reconstruct() error: %v", err)
	}
	if !bytes.Equal(recovered, role1) {
		t.Errorf("short chunk reconstruction failed: %x", recovered)
	}

	recovered, err = Reconstruct([][]byte{nil, role1}, parity, 100)
	if err != nil {
		t.Fatalf("Reconstruct() error: %v", err)
	}
	if !bytes.Equal(recovered, role0) {
		t.Errorf("long chunk reconstruction failed: %x", recovered)
	}
}

func TestReconstructRejectsDoubleLoss(t *testing.T) {
	chunks := [][]byte{nil, {1}, nil}
	if _, err := Reconstruct(chunks, []byte{0}, 1); err == nil {
		t.Error("Reconstruct with two missing roles should fail")
	}
}

func TestReconstructRejectsNothingMissing(t *testing.T) {
	chunks := [][]byte{{1}, {2}}
	if _, err := Reconstruct(chunks, []byte{3}, 1); err == nil {
		t.Error("Reconstruct with nothing missing should fail")
	}
}

func TestReconstructRejectsShortParity(t *testing.T) {
	chunks := [][]byte{nil, {2}}
	if _, err := Reconstruct(chunks, []byte{3}, 5); err == nil {
		t.Error("Reconstruct needing more bytes than parity has should fail")
	}
}
