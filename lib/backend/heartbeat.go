// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"time"

	"github.com/stripefs/stripefs/lib/clock"
)

// RunHeartbeat probes every live connection in the set once per
// interval until ctx is cancelled. Backends that miss an echo within
// timeout are marked dead; the striping engine then routes around them
// on the next session. Dead backends stay dead, there is no rejoin.
func RunHeartbeat(ctx context.Context, set *Set, clk clock.Clock, interval, timeout time.Duration) {
	if clk == nil {
		clk = clock.Real()
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			set.Refresh(timeout)
		}
	}
}
