package util

import "time"

// Clock abstracts the wall clock so that timestamped paths can be tested.
type Clock interface {
	Now() time.Time
}

type DefaultClock struct{}

func (c *DefaultClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time {
	return c.T
}
