package wikidate

import "time"

// Clock abstracts "now" so tests can freeze it instead of relying on
// hidden process-wide state.
type Clock interface {
	Now() Date
}

// RealClock reads the system time.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() Date { return FromTime(time.Now()) }

// FrozenClock always returns the same instant.
type FrozenClock struct {
	Frozen Date
}

// Now implements Clock.
func (c FrozenClock) Now() Date { return c.Frozen }
