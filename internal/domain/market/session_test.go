package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// et builds an Eastern wall-clock instant on a known Monday.
func et(hour, min int) time.Time {
	return time.Date(2025, 6, 2, hour, min, 0, 0, Eastern())
}

func TestSessionPhases(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want SessionPhase
	}{
		{"pre market", et(8, 0), PhasePreMarket},
		{"open bell", et(9, 30), PhaseOpening},
		{"late opening", et(10, 29), PhaseOpening},
		{"midday", et(12, 0), PhaseMidday},
		{"closing hour", et(15, 30), PhaseClosing},
		{"after hours", et(17, 0), PhaseAfterHours},
		{"overnight", et(2, 0), PhaseClosed},
		{"saturday", time.Date(2025, 6, 7, 12, 0, 0, 0, Eastern()), PhaseClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Session(tt.t))
		})
	}
}

func TestInRegularSession(t *testing.T) {
	assert.True(t, InRegularSession(et(9, 30)))
	assert.True(t, InRegularSession(et(15, 59)))
	assert.False(t, InRegularSession(et(16, 0)))
	assert.False(t, InRegularSession(et(9, 29)))
}

func TestMinutesSinceOpen(t *testing.T) {
	assert.InDelta(t, 0.0, MinutesSinceOpen(et(9, 30)), 1e-9)
	assert.InDelta(t, 90.0, MinutesSinceOpen(et(11, 0)), 1e-9)
	assert.InDelta(t, -30.0, MinutesSinceOpen(et(9, 0)), 1e-9)
}

func TestFixedClock(t *testing.T) {
	at := et(11, 0)
	var c Clock = FixedClock{T: at}
	assert.Equal(t, at, c.Now())
}
