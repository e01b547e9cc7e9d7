// Package clock abstracts the time source so cooldown, lock-duration and
// staleness logic can be tested without real delays. Every component in
// the pipeline reads time through the same Clock to avoid drift-induced
// false expiry.
package clock

import "time"

// Clock supplies timestamps to the targeting pipeline.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by the monotonic system clock.
func System() Clock { return systemClock{} }

// Fake is a manually advanced Clock for tests.
type Fake struct {
	current time.Time
}

// NewFake creates a Fake starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{current: start}
}

// Now returns the fake's current instant.
func (f *Fake) Now() time.Time { return f.current }

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) { f.current = f.current.Add(d) }

// Set jumps the fake clock to t.
func (f *Fake) Set(t time.Time) { f.current = t }
