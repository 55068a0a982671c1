// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	headers := []Header{
		{Kind: KindRead, Length: 0},
		{Kind: KindWritePath, Length: 17},
		{Kind: KindWrite, Length: 1 << 20},
		{Kind: KindHeartbeat, Length: 0xdeadbeefcafe},
	}
	for _, h := range headers {
		buf := EncodeHeader(h)
		decoded, err := DecodeHeader(buf[:])
		if err != nil {
			t.Fatalf("DecodeHeader(%v) error: %v", h, err)
		}
		if decoded != h {
			t.Errorf("round trip: got %+v, want %+v", decoded, h)
		}
	}
}

func TestEncodeHeaderDeterministic(t *testing.T) {
	h := Header{Kind: KindWrite, Length: 1048576}
	first := EncodeHeader(h)
	second := EncodeHeader(h)
	if first != second {
		t.Errorf("encoding is not deterministic: %x vs %x", first, second)
	}

	// The layout is fixed: big-endian uint32 kind, big-endian uint64
	// length, no padding.
	want := []byte{
		0, 0, 0, 2, // KindWrite
		0, 0, 0, 0, 0, 16, 0, 0, // 1 MiB
	}
	if !bytes.Equal(first[:], want) {
		t.Errorf("wire layout = %x, want %x", first, want)
	}
}

func TestDecodeHeaderRejectsWrongSize(t *testing.T) {
	for _, size := range []int{0, 11, 13, 24} {
		_, err := DecodeHeader(make([]byte, size))
		var protocolErr *ProtocolError
		if !errors.As(err, &protocolErr) {
			t.Errorf("DecodeHeader with %d bytes: got %v, want ProtocolError", size, err)
		}
	}
}

func TestDecodeHeaderRejectsUnknownKind(t *testing.T) {
	buf := EncodeHeader(Header{Kind: Kind(99), Length: 5})
	_, err := DecodeHeader(buf[:])
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("got %v, want ProtocolError", err)
	}
	if !strings.Contains(err.Error(), "unknown message kind") {
		t.Errorf("error = %q, want mention of unknown kind", err)
	}
}

func TestWriteReadMessage(t *testing.T) {
	var stream bytes.Buffer
	payload := []byte("data/report.bin")
	if err := WriteMessage(&stream, KindRead, payload); err != nil {
		t.Fatalf("WriteMessage() error: %v", err)
	}

	header, err := ReadHeader(&stream)
	if err != nil {
		t.Fatalf("ReadHeader() error: %v", err)
	}
	if header.Kind != KindRead {
		t.Errorf("kind = %v, want READ", header.Kind)
	}
	if header.Length != uint64(len(payload)) {
		t.Errorf("length = %d, want %d", header.Length, len(payload))
	}

	path, err := ReadPath(&stream, header.Length)
	if err != nil {
		t.Fatalf("ReadPath() error: %v", err)
	}
	if path != string(payload) {
		t.Errorf("path = %q, want %q", path, payload)
	}
}

func TestReadHeaderShortStream(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte{1, 2, 3}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want unexpected EOF", err)
	}
}

func TestReadPathRejectsOversizedLength(t *testing.T) {
	_, err := ReadPath(bytes.NewReader(nil), MaxPathLength+1)
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Errorf("got %v, want ProtocolError", err)
	}
}

func TestKindString(t *testing.T) {
	if KindHeartbeat.String() != "HEARTBEAT" {
		t.Errorf("KindHeartbeat.String() = %q", KindHeartbeat.String())
	}
	if got := Kind(42).String(); got != "Kind(42)" {
		t.Errorf("Kind(42).String() = %q", got)
	}
}
