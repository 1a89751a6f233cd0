// Package clock abstracts the current time so that expiry decisions can be
// driven by an injected clock in tests instead of the wall clock.
package clock

import "time"

// Clock supplies the current instant.  All times are UTC.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a Clock backed by time.Now.
func NewSystem() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }

type fixedClock struct {
	now time.Time
}

// NewFixed returns a Clock frozen at the given instant.  Tests use it to
// exercise expiry boundaries deterministically.
func NewFixed(t time.Time) Clock { return fixedClock{now: t.UTC()} }

func (f fixedClock) Now() time.Time { return f.now }
