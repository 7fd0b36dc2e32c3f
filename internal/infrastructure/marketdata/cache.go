package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/market"
)

// CachedSource is a read-through Redis layer in front of a Source.
// Closed historical ranges are immutable so they cache long; ranges
// that still include the present cache only briefly. Redis being down
// degrades to a straight passthrough.
type CachedSource struct {
	source  Source
	rdb     *redis.Client
	clock   market.Clock
	liveTTL time.Duration
	coldTTL time.Duration
	log     zerolog.Logger
}

func NewCachedSource(source Source, rdb *redis.Client, clock market.Clock, log zerolog.Logger) *CachedSource {
	return &CachedSource{
		source:  source,
		rdb:     rdb,
		clock:   clock,
		liveTTL: 30 * time.Second,
		coldTTL: 24 * time.Hour,
		log:     log.With().Str("component", "marketdata_cache").Logger(),
	}
}

// Counts forwards the wrapped chain's per-provider serve counts, so a
// cached chain still reports them. A source without counts yields nil.
func (c *CachedSource) Counts() map[string]int {
	if counted, ok := c.source.(interface{ Counts() map[string]int }); ok {
		return counted.Counts()
	}
	return nil
}

func barsKey(symbol string, tf market.Timeframe, start, end time.Time) string {
	return fmt.Sprintf("tradepulse:bars:%s:%s:%d:%d", symbol, tf, start.Unix(), end.Unix())
}

func (c *CachedSource) FetchBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	key := barsKey(symbol, tf, start, end)

	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var bars []market.Bar
		if jsonErr := json.Unmarshal(payload, &bars); jsonErr == nil {
			return bars, nil
		}
		// Corrupt entry, fall through and rewrite it.
	} else if err != redis.Nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	bars, err := c.source.FetchBars(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}

	ttl := c.liveTTL
	if end.Before(c.clock.Now()) {
		ttl = c.coldTTL
	}
	if payload, jsonErr := json.Marshal(bars); jsonErr == nil {
		if setErr := c.rdb.Set(ctx, key, payload, ttl).Err(); setErr != nil {
			c.log.Warn().Err(setErr).Str("key", key).Msg("cache write failed")
		}
	}
	return bars, nil
}
