// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunkserver

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stripefs/stripefs/lib/wire"
)

// startServer runs a chunk server on a random port against a temp
// root and returns it with a connected client socket.
func startServer(t *testing.T) (*Server, net.Conn, string) {
	t.Helper()
	root := t.TempDir()
	server, err := New("127.0.0.1:0", root, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Serve(ctx)
	t.Cleanup(func() { server.Close() })

	conn, err := net.Dial("tcp", server.Address())
	if err != nil {
		t.Fatalf("dialing server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return server, conn, root
}

func TestWriteThenRead(t *testing.T) {
	_, conn, root := startServer(t)

	if err := wire.WriteMessage(conn, wire.KindWritePath, []byte("slices/file.bin")); err != nil {
		t.Fatalf("WRITE_PATH: %v", err)
	}
	first := bytes.Repeat([]byte{0x11}, 100)
	second := bytes.Repeat([]byte{0x22}, 50)
	for _, chunk := range [][]byte{first, second} {
		if err := wire.WriteMessage(conn, wire.KindWrite, chunk); err != nil {
			t.Fatalf("WRITE: %v", err)
		}
	}

	// Heartbeat round-trips behind the writes, proving they finished.
	if err := wire.WriteHeader(conn, wire.Header{Kind: wire.KindHeartbeat, Length: 9}); err != nil {
		t.Fatalf("HEARTBEAT: %v", err)
	}
	if _, err := wire.ReadHeader(conn); err != nil {
		t.Fatalf("heartbeat echo: %v", err)
	}

	stored, err := os.ReadFile(filepath.Join(root, "slices/file.bin"))
	if err != nil {
		t.Fatalf("reading stored slice: %v", err)
	}
	if !bytes.Equal(stored, append(first, second...)) {
		t.Fatalf("stored slice is %d bytes, want %d", len(stored), len(first)+len(second))
	}

	// Now read it back over the same connection.
	if err := wire.WriteMessage(conn, wire.KindRead, []byte("slices/file.bin")); err != nil {
		t.Fatalf("READ: %v", err)
	}
	header, err := wire.ReadHeader(conn)
	if err != nil {
		t.Fatalf("read response header: %v", err)
	}
	if header.Kind != wire.KindRead || header.Length != 150 {
		t.Fatalf("response header = %+v", header)
	}
	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if !bytes.Equal(payload, stored) {
		t.Error("served bytes differ from stored bytes")
	}
}

func TestReadMissingFileAnswersZero(t *testing.T) {
	_, conn, _ := startServer(t)

	if err := wire.WriteMessage(conn, wire.KindRead, []byte("no/such/slice")); err != nil {
		t.Fatalf("READ: %v", err)
	}
	header, err := wire.ReadHeader(conn)
	if err != nil {
		t.Fatalf("read response header: %v", err)
	}
	if header.Kind != wire.KindRead || header.Length != 0 {
		t.Errorf("response header = %+v, want READ/0", header)
	}
}

func TestHeartbeatEchoesCorrelation(t *testing.T) {
	_, conn, _ := startServer(t)

	for _, correlation := range []uint64{0, 1, 0xffffffffffffffff} {
		if err := wire.WriteHeader(conn, wire.Header{Kind: wire.KindHeartbeat, Length: correlation}); err != nil {
			t.Fatalf("HEARTBEAT: %v", err)
		}
		echo, err := wire.ReadHeader(conn)
		if err != nil {
			t.Fatalf("heartbeat echo: %v", err)
		}
		if echo.Kind != wire.KindHeartbeat || echo.Length != correlation {
			t.Errorf("echo = %+v, want HEARTBEAT/%d", echo, correlation)
		}
	}
}

func TestPathTraversalRejected(t *testing.T) {
	_, conn, root := startServer(t)

	// The escape attempt answers zero-length rather than serving
	// anything outside the root.
	if err := os.WriteFile(filepath.Join(filepath.Dir(root), "outside.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := wire.WriteMessage(conn, wire.KindRead, []byte("../outside.txt")); err != nil {
		t.Fatalf("READ: %v", err)
	}
	header, err := wire.ReadHeader(conn)
	if err != nil {
		t.Fatalf("read response header: %v", err)
	}
	if header.Length != 0 {
		t.Errorf("traversal read answered %d bytes, want 0", header.Length)
	}
}

func TestWriteWithoutPathDropsClient(t *testing.T) {
	_, conn, _ := startServer(t)

	if err := wire.WriteMessage(conn, wire.KindWrite, []byte("orphan bytes")); err != nil {
		t.Fatalf("WRITE: %v", err)
	}
	// The server closes the connection; the next read reports it.
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("connection should be closed after WRITE without WRITE_PATH")
	}
}

func TestWritePathTruncatesExisting(t *testing.T) {
	_, conn, root := startServer(t)

	for _, content := range []string{"first version", "v2"} {
		if err := wire.WriteMessage(conn, wire.KindWritePath, []byte("f.bin")); err != nil {
			t.Fatal(err)
		}
		if err := wire.WriteMessage(conn, wire.KindWrite, []byte(content)); err != nil {
			t.Fatal(err)
		}
		// Fence with a heartbeat so the write has been applied.
		if err := wire.WriteHeader(conn, wire.Header{Kind: wire.KindHeartbeat, Length: 1}); err != nil {
			t.Fatal(err)
		}
		if _, err := wire.ReadHeader(conn); err != nil {
			t.Fatal(err)
		}
	}

	stored, err := os.ReadFile(filepath.Join(root, "f.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != "v2" {
		t.Errorf("stored = %q, want %q", stored, "v2")
	}
}
