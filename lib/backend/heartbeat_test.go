// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stripefs/stripefs/lib/clock"
	"github.com/stripefs/stripefs/lib/testutil"
	"github.com/stripefs/stripefs/lib/wire"
)

// echoServer accepts connections and echoes heartbeat headers, like a
// healthy chunk server.
func echoServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				for {
					header, err := wire.ReadHeader(conn)
					if err != nil {
						return
					}
					if err := wire.WriteHeader(conn, header); err != nil {
						return
					}
				}
			}()
		}
	}()
	return listener.Addr().String()
}

// silentServer accepts connections but never answers anything.
func silentServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()
	return listener.Addr().String()
}

func TestRunHeartbeatMarksSilentBackendDead(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	addresses := []string{echoServer(t), silentServer(t)}
	set := Connect(ctx, addresses, time.Second, nil)
	defer set.Close()
	if set.DeadCount() != 0 {
		t.Fatalf("%d backends dead at connect", set.DeadCount())
	}

	fake := clock.Fake(time.Unix(1767225600, 0))
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunHeartbeat(ctx, set, fake, 10*time.Second, 100*time.Millisecond)
	}()

	fake.WaitForTimers(1)
	fake.Advance(10 * time.Second)

	// The probe runs in the heartbeat goroutine; wait for its verdict.
	deadline := time.Now().Add(5 * time.Second)
	for set.DeadCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("DeadCount = %d, want 1", set.DeadCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if live := set.LiveIndices(); len(live) != 1 || live[0] != 0 {
		t.Errorf("LiveIndices = %v, want [0]", live)
	}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "heartbeat loop stopping on cancel")
}

func TestRunHeartbeatKeepsHealthyBackendsAlive(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	addresses := []string{echoServer(t), echoServer(t)}
	set := Connect(ctx, addresses, time.Second, nil)
	defer set.Close()

	fake := clock.Fake(time.Unix(1767225600, 0))
	go RunHeartbeat(ctx, set, fake, time.Second, time.Second)

	fake.WaitForTimers(1)
	for range 3 {
		fake.Advance(time.Second)
	}

	// Healthy echoes never change the verdict.
	time.Sleep(50 * time.Millisecond)
	if set.DeadCount() != 0 {
		t.Errorf("DeadCount = %d, want 0", set.DeadCount())
	}
}
