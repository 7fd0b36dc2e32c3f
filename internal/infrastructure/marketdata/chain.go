package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/metrics"
)

// ErrAllProvidersFailed is returned when every provider in the chain
// declined or errored for a request.
var ErrAllProvidersFailed = errors.New("marketdata: all providers failed")

// Chain tries providers in order and returns the first successful,
// sanitized result. Providers whose breaker is open are skipped without
// spending a rate token on them. It counts which provider served each
// request; the counts are summary metadata, callers must never branch
// on provider identity.
type Chain struct {
	providers []*GuardedProvider
	reg       *metrics.Registry
	log       zerolog.Logger

	mu     sync.Mutex
	served map[string]int
}

// NewChain builds a provider chain. A nil registry disables counters.
func NewChain(log zerolog.Logger, reg *metrics.Registry, providers ...*GuardedProvider) *Chain {
	return &Chain{
		providers: providers,
		reg:       reg,
		log:       log.With().Str("component", "marketdata").Logger(),
		served:    make(map[string]int),
	}
}

func (c *Chain) countRequest(provider, status string) {
	if c.reg != nil {
		c.reg.ProviderRequests.WithLabelValues(provider, status).Inc()
	}
}

// Counts returns a copy of the per-provider serve counts since the
// chain was created.
func (c *Chain) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.served))
	for name, n := range c.served {
		out[name] = n
	}
	return out
}

func (c *Chain) recordServe(name string) {
	c.mu.Lock()
	c.served[name]++
	c.mu.Unlock()
}

func (c *Chain) FetchBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("%w: chain is empty", ErrAllProvidersFailed)
	}

	var lastErr error
	for _, p := range c.providers {
		if p.Open() {
			c.log.Debug().Str("provider", p.Name()).Msg("skipping provider with open breaker")
			continue
		}

		raw, err := p.FetchBars(ctx, symbol, tf, start, end)
		if err != nil {
			lastErr = err
			c.countRequest(p.Name(), "error")
			c.log.Warn().Err(err).Str("provider", p.Name()).Str("symbol", symbol).Msg("provider fetch failed")
			continue
		}

		c.countRequest(p.Name(), "ok")
		c.recordServe(p.Name())
		bars, issues := market.Sanitize(raw)
		if len(issues) > 0 {
			c.log.Warn().
				Str("provider", p.Name()).
				Str("symbol", symbol).
				Int("dropped", len(issues)).
				Msg("dropped malformed bars")
		}
		return bars, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, lastErr)
	}
	return nil, fmt.Errorf("%w: all breakers open", ErrAllProvidersFailed)
}
