// Package market holds the core price series types shared by the
// feature, scoring, risk and backtest layers.
package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Timeframe identifies the bar interval of a series.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
)

// Duration returns the wall-clock span of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Valid reports whether tf is one of the supported intervals.
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe1d:
		return true
	}
	return false
}

// Bar is a single OHLCV candle. Timestamp marks the bar open.
type Bar struct {
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
}

// Range returns high minus low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body returns the absolute open-to-close distance.
func (b Bar) Body() float64 {
	d := b.Close - b.Open
	if d < 0 {
		return -d
	}
	return d
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool {
	return b.Close > b.Open
}

// UpperWick returns the distance from the body top to the high.
func (b Bar) UpperWick() float64 {
	top := b.Open
	if b.Close > top {
		top = b.Close
	}
	return b.High - top
}

// LowerWick returns the distance from the body bottom to the low.
func (b Bar) LowerWick() float64 {
	bottom := b.Open
	if b.Close < bottom {
		bottom = b.Close
	}
	return bottom - b.Low
}

var (
	// ErrEmptySeries is returned when a series has no bars at all.
	ErrEmptySeries = errors.New("market: empty bar series")
)

// SanitizeError describes a bar that failed validation.
type SanitizeError struct {
	Index  int
	Reason string
}

func (e *SanitizeError) Error() string {
	return fmt.Sprintf("market: bar %d rejected: %s", e.Index, e.Reason)
}

// Sanitize normalizes a raw bar series for downstream consumption.
// Bars with non-positive prices, inverted high/low or negative volume
// are dropped, duplicates by timestamp keep the last occurrence, and
// the result is sorted ascending by timestamp. The input is not
// modified. Dropped bars are reported so callers can log them.
func Sanitize(bars []Bar) ([]Bar, []SanitizeError) {
	if len(bars) == 0 {
		return nil, nil
	}

	var dropped []SanitizeError
	byTS := make(map[int64]Bar, len(bars))
	order := make([]int64, 0, len(bars))

	for i, b := range bars {
		if reason := validate(b); reason != "" {
			dropped = append(dropped, SanitizeError{Index: i, Reason: reason})
			continue
		}
		key := b.Timestamp.UnixNano()
		if _, seen := byTS[key]; !seen {
			order = append(order, key)
		}
		byTS[key] = b
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]Bar, 0, len(order))
	for _, key := range order {
		out = append(out, byTS[key])
	}
	return out, dropped
}

func validate(b Bar) string {
	switch {
	case b.Timestamp.IsZero():
		return "zero timestamp"
	case b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0:
		return "non-positive price"
	case b.High < b.Low:
		return "high below low"
	case b.High < b.Open || b.High < b.Close:
		return "high below open or close"
	case b.Low > b.Open || b.Low > b.Close:
		return "low above open or close"
	case b.Volume < 0:
		return "negative volume"
	}
	return ""
}

// Closes extracts the close column.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volume column.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Last returns the most recent bar of a sanitized series.
func Last(bars []Bar) (Bar, error) {
	if len(bars) == 0 {
		return Bar{}, ErrEmptySeries
	}
	return bars[len(bars)-1], nil
}
