package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alphastack/tradepulse/internal/domain/market"
)

// GuardConfig bounds how hard one vendor may be hit and when it is
// considered down.
type GuardConfig struct {
	RequestsPerSecond   float64 `yaml:"requests_per_second"`
	Burst               int     `yaml:"burst"`
	RequestTimeoutSecs  int     `yaml:"request_timeout_secs"`
	BreakerIntervalSecs int     `yaml:"breaker_interval_secs"`
	BreakerTimeoutSecs  int     `yaml:"breaker_timeout_secs"`
	ConsecutiveFailures uint32  `yaml:"consecutive_failures"`
	ErrorRatePct        float64 `yaml:"error_rate_pct"`
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond:   5,
		Burst:               10,
		RequestTimeoutSecs:  10,
		BreakerIntervalSecs: 60,
		BreakerTimeoutSecs:  30,
		ConsecutiveFailures: 3,
		ErrorRatePct:        30.0,
	}
}

// RequestTimeout bounds one vendor call. Zero disables the bound.
func (c GuardConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// GuardedProvider wraps a Provider with a token bucket and a circuit
// breaker. Requests wait for a rate token first, so an open breaker is
// the only fast-fail path.
type GuardedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     zerolog.Logger
}

func NewGuardedProvider(inner Provider, cfg GuardConfig, log zerolog.Logger) *GuardedProvider {
	gp := &GuardedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		timeout: cfg.RequestTimeout(),
		log:     log.With().Str("component", "marketdata").Str("provider", inner.Name()).Logger(),
	}

	settings := gobreaker.Settings{
		Name:     inner.Name(),
		Interval: time.Duration(cfg.BreakerIntervalSecs) * time.Second,
		Timeout:  time.Duration(cfg.BreakerTimeoutSecs) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests >= 10 {
				errorRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
				return errorRate >= cfg.ErrorRatePct
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			gp.log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider breaker state change")
		},
	}
	gp.breaker = gobreaker.NewCircuitBreaker(settings)
	return gp
}

func (gp *GuardedProvider) Name() string { return gp.inner.Name() }

// Open reports whether the breaker is currently rejecting calls.
func (gp *GuardedProvider) Open() bool {
	return gp.breaker.State() == gobreaker.StateOpen
}

func (gp *GuardedProvider) FetchBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	if err := gp.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate wait for %s: %w", gp.inner.Name(), err)
	}

	// A hung vendor must not eat the caller's whole deadline; the
	// chain needs budget left to try the next provider.
	if gp.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gp.timeout)
		defer cancel()
	}

	result, err := gp.breaker.Execute(func() (interface{}, error) {
		return gp.inner.FetchBars(ctx, symbol, tf, start, end)
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", gp.inner.Name(), err)
	}
	return result.([]market.Bar), nil
}
