package marketdata

import (
	"context"
	"time"

	"github.com/alphastack/tradepulse/internal/domain/market"
)

// Provider supplies historical bars from one data vendor. Implementations
// return bars whose open timestamps fall inside [start, end]; ordering and
// dedup are the caller's concern (the chain sanitizes).
type Provider interface {
	Name() string
	FetchBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error)
}

// Source is the consumer-facing read interface. The chain, the cache
// wrapper, and individual providers all satisfy it.
type Source interface {
	FetchBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error)
}
