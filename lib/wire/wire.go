// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind identifies a message type on the wire.
type Kind uint32

// Message kinds. The numeric values are part of the wire contract and
// must match the chunk server.
const (
	// KindRead requests a stored file. The payload is the file path
	// (UTF-8, no leading slash). The response reuses KindRead with
	// the slice length, followed by the raw slice bytes.
	KindRead Kind = 0

	// KindWritePath establishes the destination path for subsequent
	// KindWrite messages on the same connection. The payload is the
	// file path.
	KindWritePath Kind = 1

	// KindWrite carries one round's chunk of raw bytes, appended at
	// the connection's current write offset.
	KindWrite Kind = 2

	// KindHeartbeat is a liveness probe. No payload; the length field
	// carries an arbitrary correlation value that the peer must echo
	// unchanged.
	KindHeartbeat Kind = 3
)

// kindCount bounds the valid kind values for decode validation.
const kindCount = 4

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "READ"
	case KindWritePath:
		return "WRITE_PATH"
	case KindWrite:
		return "WRITE"
	case KindHeartbeat:
		return "HEARTBEAT"
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// HeaderLength is the fixed size of an encoded message header: 4 bytes
// kind + 8 bytes length, big-endian, packed.
const HeaderLength = 12

// MaxPathLength bounds the payload length accepted for READ and
// WRITE_PATH messages. Paths are filesystem names; anything larger is
// a corrupted stream, not a real path.
const MaxPathLength = 4096

// Header is the fixed message header preceding every payload.
type Header struct {
	Kind   Kind
	Length uint64
}

// ProtocolError reports a malformed header, an unexpected message
// kind, or a length that contradicts the expected layout. Protocol
// errors are never retried; the stream they were read from can no
// longer be trusted.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// Errorf constructs a *ProtocolError with a formatted reason.
func Errorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// EncodeHeader encodes h into a fixed 12-byte buffer. Encoding is
// deterministic: the same header always produces the same bytes.
func EncodeHeader(h Header) [HeaderLength]byte {
	var buf [HeaderLength]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Kind))
	binary.BigEndian.PutUint64(buf[4:12], h.Length)
	return buf
}

// DecodeHeader decodes a header from buf. buf must be exactly
// HeaderLength bytes and carry a known kind value; anything else is a
// ProtocolError.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderLength {
		return Header{}, Errorf("header must be %d bytes, got %d", HeaderLength, len(buf))
	}
	kind := Kind(binary.BigEndian.Uint32(buf[0:4]))
	if kind >= kindCount {
		return Header{}, Errorf("unknown message kind %d", uint32(kind))
	}
	return Header{
		Kind:   kind,
		Length: binary.BigEndian.Uint64(buf[4:12]),
	}, nil
}

// WriteHeader writes the encoded header to w.
func WriteHeader(w io.Writer, h Header) error {
	buf := EncodeHeader(h)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write %s header: %w", h.Kind, err)
	}
	return nil
}

// WriteMessage writes a header for payload followed by the payload
// itself. The header's length field is always len(payload); callers
// that need a bare header with a synthetic length (heartbeats) use
// WriteHeader directly.
func WriteMessage(w io.Writer, kind Kind, payload []byte) error {
	if err := WriteHeader(w, Header{Kind: kind, Length: uint64(len(payload))}); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write %s payload: %w", kind, err)
		}
	}
	return nil
}

// ReadHeader reads and decodes one header from r. A short read
// surfaces the underlying I/O error; a full read with invalid contents
// surfaces a ProtocolError.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderLength]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("read message header: %w", err)
	}
	return DecodeHeader(buf[:])
}

// ReadPath reads a path payload of the given length from r. Lengths
// above MaxPathLength are rejected before any allocation.
func ReadPath(r io.Reader, length uint64) (string, error) {
	if length > MaxPathLength {
		return "", Errorf("path length %d exceeds maximum %d", length, MaxPathLength)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read path payload: %w", err)
	}
	return string(buf), nil
}
