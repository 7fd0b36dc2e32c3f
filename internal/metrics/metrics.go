package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for TradePulse.
type Registry struct {
	registry *prometheus.Registry

	ScanDuration   *prometheus.HistogramVec
	SymbolsScanned prometheus.Counter
	ActiveScans    prometheus.Gauge

	SignalsEmitted      *prometheus.CounterVec
	GuardrailRejections *prometheus.CounterVec
	UniverseExclusions  *prometheus.CounterVec

	ProviderRequests *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec

	ModelPublishes prometheus.Counter
	ModelFallbacks prometheus.Counter
}

func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepulse_scan_duration_seconds",
				Help:    "Duration of each scan stage in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"stage"},
		),

		SymbolsScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradepulse_symbols_scanned_total",
				Help: "Total symbols processed across all scans",
			},
		),

		ActiveScans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradepulse_active_scans",
				Help: "Number of scans currently in flight",
			},
		),

		SignalsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_signals_emitted_total",
				Help: "Signals generated, by trading mode and score source",
			},
			[]string{"mode", "source"},
		),

		GuardrailRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_guardrail_rejections_total",
				Help: "Candidates blocked by risk guardrails, by reason",
			},
			[]string{"reason"},
		),

		UniverseExclusions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_universe_exclusions_total",
				Help: "Symbols excluded during universe selection, by reason",
			},
			[]string{"reason"},
		),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_provider_requests_total",
				Help: "Market data requests, by provider and result",
			},
			[]string{"provider", "status"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_cache_hits_total",
				Help: "Cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_cache_misses_total",
				Help: "Cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		ModelPublishes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradepulse_model_publishes_total",
				Help: "Model artifacts accepted and published by the learning loop",
			},
		),

		ModelFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradepulse_model_fallbacks_total",
				Help: "Scoring calls that fell back to rules for lack of a valid model",
			},
		),
	}

	r.registry.MustRegister(
		r.ScanDuration, r.SymbolsScanned, r.ActiveScans,
		r.SignalsEmitted, r.GuardrailRejections, r.UniverseExclusions,
		r.ProviderRequests, r.CacheHits, r.CacheMisses,
		r.ModelPublishes, r.ModelFallbacks,
	)
	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
