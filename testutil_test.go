/* Copyright (c) 2025 Waldemar Augustyn */

package main

import "time"

// fakeClock is a manually-advanced Clock shared by every test that needs
// deterministic timing instead of racing real sleeps.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
