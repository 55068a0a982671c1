// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowAndAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := Fake(start)

	if got := fake.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}
	fake.Advance(90 * time.Second)
	if got := fake.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v", got)
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	ch := fake.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(time.Minute)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeTicker(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	fake.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire")
	}

	// A stopped ticker never fires again.
	ticker.Stop()
	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeSleepAndWaitForTimers(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	done := make(chan struct{})

	go func() {
		fake.Sleep(3 * time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(3 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
	if got := fake.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}
