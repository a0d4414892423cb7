// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock stands still until Advance moves it. It is safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []timer // ordered by deadline, then registration
	changed chan struct{}
}

type timer struct {
	deadline time.Time
	fire     chan time.Time
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start, changed: make(chan struct{})}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	fire := make(chan time.Time, 1)
	if d <= 0 {
		fire <- c.now
		return fire
	}
	deadline := c.now.Add(d)
	at, _ := slices.BinarySearchFunc(c.pending, deadline, func(t timer, target time.Time) int {
		if t.deadline.After(target) {
			return 1
		}
		return -1
	})
	c.pending = slices.Insert(c.pending, at, timer{deadline: deadline, fire: fire})
	c.notify()
	return fire
}

// Advance moves the clock forward by d and fires every timer that is
// now due, earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := 0
	for due < len(c.pending) && !c.pending[due].deadline.After(now) {
		due++
	}
	fired := slices.Clone(c.pending[:due])
	c.pending = slices.Delete(c.pending, 0, due)
	c.notify()
	c.mu.Unlock()

	for _, t := range fired {
		t.fire <- now
	}
}

// WaitForTimers blocks until at least n timers are pending, so a test
// can Advance only after the code under test has scheduled its delay.
func (c *FakeClock) WaitForTimers(n int) {
	for {
		c.mu.Lock()
		count, changed := len(c.pending), c.changed
		c.mu.Unlock()
		if count >= n {
			return
		}
		<-changed
	}
}

// Pending returns the number of timers that have not fired.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// notify wakes WaitForTimers callers. Called with mu held.
func (c *FakeClock) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}
