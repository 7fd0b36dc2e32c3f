package market

import (
	"sync"
	"time"
)

var easternOnce sync.Once
var easternLoc *time.Location

// Eastern returns the US equity market timezone. Falls back to a fixed
// UTC-5 zone when the tz database is unavailable.
func Eastern() *time.Location {
	easternOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("ET", -5*3600)
		}
		easternLoc = loc
	})
	return easternLoc
}

// SessionPhase partitions the trading day.
type SessionPhase string

const (
	PhasePreMarket  SessionPhase = "pre_market"
	PhaseOpening    SessionPhase = "opening"    // 09:30-10:30 ET
	PhaseMidday     SessionPhase = "midday"     // 10:30-15:00 ET
	PhaseClosing    SessionPhase = "closing"    // 15:00-16:00 ET
	PhaseAfterHours SessionPhase = "after_hours"
	PhaseClosed     SessionPhase = "closed" // weekend
)

// Session converts t to Eastern time and classifies it.
func Session(t time.Time) SessionPhase {
	et := t.In(Eastern())
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return PhaseClosed
	}

	mins := et.Hour()*60 + et.Minute()
	switch {
	case mins < 4*60:
		return PhaseClosed
	case mins < 9*60+30:
		return PhasePreMarket
	case mins < 10*60+30:
		return PhaseOpening
	case mins < 15*60:
		return PhaseMidday
	case mins < 16*60:
		return PhaseClosing
	case mins < 20*60:
		return PhaseAfterHours
	default:
		return PhaseClosed
	}
}

// InRegularSession reports whether t falls inside 09:30-16:00 ET on a
// weekday. Exchange holidays are not modeled.
func InRegularSession(t time.Time) bool {
	switch Session(t) {
	case PhaseOpening, PhaseMidday, PhaseClosing:
		return true
	}
	return false
}

// MinutesSinceOpen returns fractional minutes since 09:30 ET, negative
// before the open.
func MinutesSinceOpen(t time.Time) float64 {
	et := t.In(Eastern())
	open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, Eastern())
	return et.Sub(open).Minutes()
}

// Clock abstracts wall time so session-dependent logic can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
