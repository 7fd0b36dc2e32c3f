package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/application/universe"
	"github.com/alphastack/tradepulse/internal/cache"
	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/indicators"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/risk"
	"github.com/alphastack/tradepulse/internal/domain/scoring"
	"github.com/alphastack/tradepulse/internal/domain/trading"
	"github.com/alphastack/tradepulse/internal/infrastructure/marketdata"
	"github.com/alphastack/tradepulse/internal/metrics"
)

// SignalSink receives generated signals. The Postgres store implements
// it; tests use an in-memory collector.
type SignalSink interface {
	SaveSignal(ctx context.Context, sig trading.Signal) error
}

// Config tunes one scan sweep. Durations are unit-suffixed integers
// so the YAML stays obvious.
type Config struct {
	Symbols              []string         `yaml:"symbols"`
	Timeframe            market.Timeframe `yaml:"timeframe"`
	IntradayLookbackMins int              `yaml:"intraday_lookback_mins"`
	DailyLookback        int              `yaml:"daily_lookback"` // days of daily bars for universe stats
	Workers              int              `yaml:"workers"`
	ScoreThreshold       float64          `yaml:"score_threshold"`
	StatsTTLSecs         int              `yaml:"stats_ttl_secs"`
	DeadlineSecs         int              `yaml:"deadline_secs"`
}

func DefaultConfig() Config {
	return Config{
		Timeframe:            market.Timeframe1m,
		IntradayLookbackMins: 180,
		DailyLookback:        30,
		Workers:              8,
		ScoreThreshold:       0.6,
		StatsTTLSecs:         300,
		DeadlineSecs:         120,
	}
}

// IntradayLookback returns how much minute history each sweep pulls.
func (c Config) IntradayLookback() time.Duration {
	return time.Duration(c.IntradayLookbackMins) * time.Minute
}

// StatsTTL returns how long universe stats stay cached.
func (c Config) StatsTTL() time.Duration {
	return time.Duration(c.StatsTTLSecs) * time.Second
}

// Deadline bounds one full sweep. Zero disables the bound.
func (c Config) Deadline() time.Duration {
	return time.Duration(c.DeadlineSecs) * time.Second
}

// Report is the outcome of one sweep.
type Report struct {
	StartedAt      time.Time            `json:"started_at"`
	Duration       time.Duration        `json:"duration"`
	Mode           trading.Mode         `json:"mode"`
	SymbolsScanned int                  `json:"symbols_scanned"`
	UniverseSize   int                  `json:"universe_size"`
	UniverseSource string               `json:"universe_source"`
	ProviderCounts map[string]int       `json:"provider_counts,omitempty"`
	Signals        []trading.Signal     `json:"signals"`
	Exclusions     []universe.Exclusion `json:"exclusions,omitempty"`
	Rejections     map[string]int       `json:"rejections,omitempty"`
	Errors         int                  `json:"errors"`
}

// Pipeline runs the full sweep: universe stats from daily bars, then
// feature, score, and risk stages per surviving symbol.
type Pipeline struct {
	cfg      Config
	source   marketdata.Source
	selector *universe.Selector
	engine   *features.Engine
	scorer   scoring.Scorer
	riskEng  *risk.Engine
	sink     SignalSink
	stats    *cache.TTLCache
	reg      *metrics.Registry
	clock    market.Clock
	log      zerolog.Logger
}

func NewPipeline(
	cfg Config,
	source marketdata.Source,
	selector *universe.Selector,
	engine *features.Engine,
	scorer scoring.Scorer,
	riskEng *risk.Engine,
	sink SignalSink,
	reg *metrics.Registry,
	clock market.Clock,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		selector: selector,
		engine:   engine,
		scorer:   scorer,
		riskEng:  riskEng,
		sink:     sink,
		stats:    cache.NewTTLCache(4096),
		reg:      reg,
		clock:    clock,
		log:      log.With().Str("component", "scan").Logger(),
	}
}

// Close releases the pipeline's internal cache.
func (p *Pipeline) Close() { p.stats.Stop() }

// Run executes one sweep for the given mode and account state.
func (p *Pipeline) Run(ctx context.Context, mode trading.Mode, account trading.AccountState) (*Report, error) {
	if len(p.cfg.Symbols) == 0 {
		return nil, fmt.Errorf("scan: no symbols configured")
	}
	if d := p.cfg.Deadline(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := p.clock.Now()
	p.reg.ActiveScans.Inc()
	defer p.reg.ActiveScans.Dec()

	report := &Report{
		StartedAt:  start,
		Mode:       mode,
		Rejections: make(map[string]int),
	}

	candidates := p.universeStats(ctx, report)
	selected, exclusions, source := p.selector.Select(candidates, mode)
	report.Exclusions = exclusions
	report.UniverseSize = len(selected)
	report.UniverseSource = source
	for _, ex := range exclusions {
		p.reg.UniverseExclusions.WithLabelValues(ex.Reason).Inc()
	}

	p.scanSymbols(ctx, selected, mode, account, source, report)
	if counted, ok := p.source.(interface{ Counts() map[string]int }); ok {
		report.ProviderCounts = counted.Counts()
	}

	sort.Slice(report.Signals, func(i, j int) bool {
		if report.Signals[i].Score != report.Signals[j].Score {
			return report.Signals[i].Score > report.Signals[j].Score
		}
		if report.Signals[i].Confidence != report.Signals[j].Confidence {
			return report.Signals[i].Confidence > report.Signals[j].Confidence
		}
		return report.Signals[i].Symbol < report.Signals[j].Symbol
	})

	report.Duration = p.clock.Now().Sub(start)
	p.reg.ScanDuration.WithLabelValues("sweep").Observe(report.Duration.Seconds())
	p.log.Info().
		Int("symbols", report.SymbolsScanned).
		Int("universe", report.UniverseSize).
		Str("universe_source", report.UniverseSource).
		Interface("provider_counts", report.ProviderCounts).
		Int("signals", len(report.Signals)).
		Int("errors", report.Errors).
		Dur("duration", report.Duration).
		Msg("scan sweep complete")
	return report, nil
}

// universeStats builds selector candidates from daily bars, with a
// short-lived cache so back-to-back sweeps skip the refetch.
func (p *Pipeline) universeStats(ctx context.Context, report *Report) []universe.Candidate {
	stageStart := p.clock.Now()
	defer func() {
		p.reg.ScanDuration.WithLabelValues("universe").Observe(p.clock.Now().Sub(stageStart).Seconds())
	}()

	var candidates []universe.Candidate
	for _, symbol := range p.cfg.Symbols {
		key := "universe:" + symbol
		if cached, ok := p.stats.Get(key); ok {
			p.reg.CacheHits.WithLabelValues("universe_stats").Inc()
			candidates = append(candidates, cached.(universe.Candidate))
			continue
		}
		p.reg.CacheMisses.WithLabelValues("universe_stats").Inc()

		cand, err := p.dailyCandidate(ctx, symbol)
		if err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("universe stats failed")
			report.Errors++
			continue
		}
		p.stats.Set(key, cand, p.cfg.StatsTTL())
		candidates = append(candidates, cand)
	}
	return candidates
}

func (p *Pipeline) dailyCandidate(ctx context.Context, symbol string) (universe.Candidate, error) {
	now := p.clock.Now()
	raw, err := p.source.FetchBars(ctx, symbol, market.Timeframe1d,
		now.AddDate(0, 0, -p.cfg.DailyLookback), now)
	if err != nil {
		return universe.Candidate{}, err
	}
	days, _ := market.Sanitize(raw)
	if len(days) < 2 {
		return universe.Candidate{}, fmt.Errorf("scan: %s: need 2 daily bars, have %d", symbol, len(days))
	}

	last := days[len(days)-1]
	prev := days[len(days)-2]

	dollarVol := 0.0
	for _, d := range days {
		dollarVol += d.Close * d.Volume
	}
	dollarVol /= float64(len(days))

	atr := indicators.CalculateATR(days, 14)
	atrPct := 0.0
	if atr.IsValid && last.Close > 0 {
		atrPct = atr.Value / last.Close * 100
	}

	return universe.Candidate{
		Symbol:          symbol,
		Price:           last.Close,
		AvgDollarVolume: dollarVol,
		ChangePct:       (last.Close - prev.Close) / prev.Close * 100,
		ATRPct:          atrPct,
		ZeroVol:         atr.IsValid && atr.Value == 0,
	}, nil
}

// scanSymbols fans selected symbols across a bounded worker pool.
func (p *Pipeline) scanSymbols(ctx context.Context, selected []universe.Candidate, mode trading.Mode, account trading.AccountState, universeSource string, report *Report) {
	jobs := make(chan universe.Candidate)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	workers := p.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				sig, reason, err := p.scanOne(ctx, cand, mode, account, universeSource)
				mu.Lock()
				report.SymbolsScanned++
				switch {
				case err != nil:
					report.Errors++
					p.log.Warn().Err(err).Str("symbol", cand.Symbol).Msg("symbol scan failed")
				case reason != "":
					report.Rejections[reason]++
				case sig != nil:
					report.Signals = append(report.Signals, *sig)
				}
				mu.Unlock()
			}
		}()
	}

	for _, cand := range selected {
		select {
		case jobs <- cand:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

// scanOne runs feature, score, and risk stages for one symbol. A
// non-empty reason means the symbol was dropped by a stage rather than
// failing.
func (p *Pipeline) scanOne(ctx context.Context, cand universe.Candidate, mode trading.Mode, account trading.AccountState, universeSource string) (*trading.Signal, string, error) {
	p.reg.SymbolsScanned.Inc()
	now := p.clock.Now()

	raw, err := p.source.FetchBars(ctx, cand.Symbol, p.cfg.Timeframe, now.Add(-p.cfg.IntradayLookback()), now)
	if err != nil {
		return nil, "", err
	}
	bars, _ := market.Sanitize(raw)

	vec, err := p.engine.Compute(cand.Symbol, p.cfg.Timeframe, bars)
	if err != nil {
		if errors.Is(err, features.ErrInsufficientData) {
			return nil, "insufficient_data", nil
		}
		return nil, "", err
	}
	if vec.ZeroVol {
		return nil, "zero_volatility", nil
	}

	result := p.scorer.Score(vec, mode)
	if p.scorer.Name() == scoring.SourceBlended && result.Source != scoring.SourceBlended {
		p.reg.ModelFallbacks.Inc()
	}
	if result.Score < p.cfg.ScoreThreshold {
		return nil, "below_score_threshold", nil
	}

	swingLow, swingHigh := recentSwing(bars, swingLookback)
	decision := p.riskEng.Plan(risk.Candidate{
		Symbol:      cand.Symbol,
		Side:        result.Side,
		Entry:       vec.Price,
		ATR:         vec.ATR,
		RealizedVol: vec.RealizedVol,
		Score:       result.Score,
		Confidence:  result.Confidence,
		SwingLow:    swingLow,
		SwingHigh:   swingHigh,
	}, account, mode)
	if !decision.Approved {
		p.reg.GuardrailRejections.WithLabelValues(decision.Rejection.Reason).Inc()
		return nil, decision.Rejection.Reason, nil
	}

	sig := trading.Signal{
		ID:             uuid.New(),
		Symbol:         cand.Symbol,
		GeneratedAt:    vec.AsOf,
		Mode:           mode,
		Side:           result.Side,
		Score:          result.Score,
		Confidence:     result.Confidence,
		ScoreSource:    string(result.Source),
		UniverseSource: universeSource,
		Features:       vec,
		Risk:           *decision.Plan,
		ThesisTags:     result.ThesisTags,
	}
	if err := p.sink.SaveSignal(ctx, sig); err != nil {
		return nil, "", fmt.Errorf("save signal %s: %w", cand.Symbol, err)
	}
	p.reg.SignalsEmitted.WithLabelValues(string(mode), sig.ScoreSource).Inc()
	return &sig, "", nil
}

// swingLookback is how many trailing bars establish the swing levels
// the risk engine may anchor a stop to.
const swingLookback = 20

func recentSwing(bars []market.Bar, n int) (low, high float64) {
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	for _, b := range bars {
		if low == 0 || b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	return low, high
}
