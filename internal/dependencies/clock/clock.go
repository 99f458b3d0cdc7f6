package clock

import "time"

// Clock supplies the current time for token expiry, event timestamps and
// stored user records. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time in UTC, so timestamps read back from every
// storage backend compare equal to the ones written
func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}
