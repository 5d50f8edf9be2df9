// Package system provides wall and frozen clock implementations.
package system

import "time"

// Clock implements rfp.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Frozen always reports the same instant. Used by backfills that pin the
// scrape date and by tests.
type Frozen struct {
	At time.Time
}

// Now returns the pinned instant in UTC.
func (f Frozen) Now() time.Time {
	return f.At.UTC()
}
