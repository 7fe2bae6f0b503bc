package engine

import "time"

// Clock provides time for timers and frame stamps. The default
// implementation uses system time. Tests inject a fake clock to control
// timer expiry deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock uses system time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
