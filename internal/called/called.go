// Package called decides whether a queue item is inside its "being called"
// highlight window.
package called

import (
	"time"

	"waitboard/internal/model"
	"waitboard/internal/parse"
)

const (
	// MisreadThreshold is the age beyond which a naive timestamp is suspected
	// to be UTC that was read as local time.
	MisreadThreshold = 30000 * time.Second
	// SkewTolerance is how far in the future a call may appear to be.
	SkewTolerance = 10 * time.Second
)

// IsCalled reports whether an item called callCount times, last at
// lastCalledAt, is still highlighted at now. Naive timestamps are read in loc
// (time.Local when nil); displaySeconds <= 0 falls back to the default window.
func IsCalled(callCount int, lastCalledAt string, displaySeconds int, now time.Time, loc *time.Location) bool {
	if callCount <= 0 || lastCalledAt == "" {
		return false
	}
	if displaySeconds <= 0 {
		displaySeconds = model.DefaultCallingDisplaySeconds
	}
	window := time.Duration(displaySeconds) * time.Second

	ts, err := parse.ParseTimestamp(lastCalledAt, loc)
	if err != nil {
		return false
	}

	diff := now.Sub(ts.Time)
	if !ts.Zoned && diff > MisreadThreshold {
		if alt := now.Sub(ts.In(time.UTC)); inWindow(alt, window) {
			diff = alt
		}
	}
	return inWindow(diff, window)
}

func inWindow(diff, window time.Duration) bool {
	return diff > -SkewTolerance && diff < window
}

// Window binds the store setting and viewer zone so callers only pass the item.
type Window struct {
	DisplaySeconds int
	Location       *time.Location
}

// IsCalled evaluates item at now.
func (w Window) IsCalled(item model.WaitingItem, now time.Time) bool {
	return IsCalled(item.CallCount, item.LastCalledAt, w.DisplaySeconds, now, w.Location)
}
