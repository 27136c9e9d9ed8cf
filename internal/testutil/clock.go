// Package testutil provides deterministic helpers for tests: a frozen
// wall-clock source and canned manifests for the Box example payload used
// to exercise the upgrade machinery.
package testutil

import (
	"sync"
	"time"
)

// FrozenTime returns a wall-clock source that starts at a fixed instant
// and advances by a fixed step on every call. Used with proxy.WithNow so
// audit traces are byte-identical across runs.
//
// The default epoch is an arbitrary fixed instant, not time.Now - golden
// files must never depend on when the test runs.
func FrozenTime(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

// Epoch is the fixed instant frozen clocks start at by default.
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
