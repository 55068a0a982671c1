// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"net"
	"slices"
	"testing"
	"time"

	"github.com/stripefs/stripefs/lib/wire"
)

// echoPeers builds a Set of n pipe-backed connections whose peers echo
// heartbeat headers, simulating well-behaved chunk servers.
func echoPeers(t *testing.T, n int) (*Set, []net.Conn) {
	t.Helper()
	conns := make([]*Conn, n)
	peers := make([]net.Conn, n)
	for i := range conns {
		conns[i], peers[i] = pipeConn(t, i)
	}
	return NewSet(conns, nil), peers
}

func TestLiveIndicesAndDeadCount(t *testing.T) {
	set, _ := echoPeers(t, 4)

	if got := set.DeadCount(); got != 0 {
		t.Fatalf("DeadCount() = %d, want 0", got)
	}
	set.MarkDead(2)
	if got := set.DeadCount(); got != 1 {
		t.Fatalf("DeadCount() after MarkDead = %d, want 1", got)
	}
	if got := set.LiveIndices(); !slices.Equal(got, []int{0, 1, 3}) {
		t.Errorf("LiveIndices() = %v, want [0 1 3]", got)
	}
}

func TestRefreshMarksSilentBackendsDead(t *testing.T) {
	set, peers := echoPeers(t, 3)

	// Peers 0 and 2 echo heartbeats; peer 1 stays silent.
	for _, i := range []int{0, 2} {
		peer := peers[i]
		go func() {
			for {
				header, err := wire.ReadHeader(peer)
				if err != nil {
					return
				}
				if err := wire.WriteHeader(peer, header); err != nil {
					return
				}
			}
		}()
	}
	go func() {
		buf := make([]byte, wire.HeaderLength)
		peers[1].Read(buf)
	}()

	set.Refresh(100 * time.Millisecond)

	if got := set.LiveIndices(); !slices.Equal(got, []int{0, 2}) {
		t.Errorf("LiveIndices() after Refresh = %v, want [0 2]", got)
	}
}

func TestConnectWithUnreachableBackend(t *testing.T) {
	// One real listener, one closed port.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error: %v", err)
	}
	closedAddress := closed.Addr().String()
	closed.Close()

	set := Connect(t.Context(), []string{listener.Addr().String(), closedAddress}, time.Second, nil)
	defer set.Close()

	if got := set.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if got := set.DeadCount(); got != 1 {
		t.Errorf("DeadCount() = %d, want 1", got)
	}
	if set.Conn(0).Dead() {
		t.Error("reachable backend should be Live")
	}
	if !set.Conn(1).Dead() {
		t.Error("unreachable backend should be Dead")
	}
}
