package session

import (
	"time"

	"github.com/carecompanion/n1/internal/experiment"
)

// Clock supplies the current calendar day.
type Clock interface {
	Today() experiment.Date
}

// SystemClock reads the wall clock in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() experiment.Date {
	now := time.Now()
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return experiment.DateOf(now)
}

// FixedClock always reports the same day.
type FixedClock experiment.Date

func (c FixedClock) Today() experiment.Date {
	return experiment.Date(c)
}
