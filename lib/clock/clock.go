// Copyright 2026 The WebWX Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The gateway protocol derives client-side message and media ids from
// the current time in nanoseconds. Production code injects Real();
// tests inject a Fake clock so those ids are deterministic and can be
// asserted exactly.
package clock

import (
	"sync"
	"time"
)

// Clock abstracts the current time. Code that stamps outbound requests
// accepts a Clock instead of calling time.Now directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Fake returns a FakeClock pinned to the given time. Time stands still
// until Advance is called.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for testing. Safe for concurrent
// use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the fake time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
