package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/application/stats"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

const (
	defaultPickLimit = 50
	maxPickLimit     = 200
)

// SignalReader is the read side of the signal store.
type SignalReader interface {
	RecentSignals(ctx context.Context, since time.Time, limit int) ([]trading.Signal, error)
	OutcomesSince(ctx context.Context, since time.Time) ([]trading.Outcome, error)
}

// Handlers serves the JSON endpoints.
type Handlers struct {
	reader  SignalReader
	clock   market.Clock
	started time.Time
	version string
	log     zerolog.Logger
}

func NewHandlers(reader SignalReader, clock market.Clock, version string, log zerolog.Logger) *Handlers {
	return &Handlers{
		reader:  reader,
		clock:   clock,
		started: clock.Now(),
		version: version,
		log:     log.With().Str("component", "api_handlers").Logger(),
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	UptimeSec float64   `json:"uptime_seconds"`
	Time      time.Time `json:"time"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   h.version,
		UptimeSec: now.Sub(h.started).Seconds(),
		Time:      now,
	})
}

type picksResponse struct {
	AsOf           time.Time        `json:"as_of"`
	Since          time.Time        `json:"since"`
	Mode           trading.Mode     `json:"mode,omitempty"`
	Count          int              `json:"count"`
	UniverseSource string           `json:"universe_source,omitempty"`
	Picks          []trading.Signal `json:"picks"`
}

// Picks returns recent signals. Query params: since_hours (default 24),
// limit (default 50, capped at 200), and an optional mode filter.
func (h *Handlers) Picks(w http.ResponseWriter, r *http.Request) {
	sinceHours, err := queryFloat(r, "since_hours", 24)
	if err != nil || sinceHours <= 0 {
		writeError(w, http.StatusBadRequest, "since_hours must be a positive number")
		return
	}
	limit, err := queryInt(r, "limit", defaultPickLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxPickLimit {
		limit = maxPickLimit
	}

	var mode trading.Mode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode, err = trading.ParseMode(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "mode must be SAFE or AGGRESSIVE")
			return
		}
	}

	now := h.clock.Now()
	since := now.Add(-time.Duration(sinceHours * float64(time.Hour)))
	picks, err := h.reader.RecentSignals(r.Context(), since, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("picks query failed")
		writeError(w, http.StatusInternalServerError, "failed to load picks")
		return
	}
	if mode != "" {
		filtered := picks[:0]
		for _, p := range picks {
			if p.Mode == mode {
				filtered = append(filtered, p)
			}
		}
		picks = filtered
	}
	if picks == nil {
		picks = []trading.Signal{}
	}

	// Signals are newest first, so the first pick carries the source
	// of the most recent sweep.
	universeSource := ""
	if len(picks) > 0 {
		universeSource = picks[0].UniverseSource
	}
	writeJSON(w, http.StatusOK, picksResponse{
		AsOf:           now,
		Since:          since,
		Mode:           mode,
		Count:          len(picks),
		UniverseSource: universeSource,
		Picks:          picks,
	})
}

type statsResponse struct {
	WindowStart time.Time                               `json:"window_start"`
	WindowEnd   time.Time                               `json:"window_end"`
	Mode        trading.Mode                            `json:"mode,omitempty"`
	Period      trading.Period                          `json:"period,omitempty"`
	SampleSize  int                                     `json:"sample_size"`
	ByHorizon   map[trading.Horizon]trading.Performance `json:"by_horizon"`
}

// Stats aggregates evaluated outcomes per horizon over a trailing
// window. Query params: window_days (default 30), or period
// (daily/all_time) which overrides it, plus an optional mode filter.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	windowDays, err := queryInt(r, "window_days", 30)
	if err != nil || windowDays <= 0 {
		writeError(w, http.StatusBadRequest, "window_days must be a positive integer")
		return
	}

	var period trading.Period
	if raw := r.URL.Query().Get("period"); raw != "" {
		period, err = trading.ParsePeriod(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "period must be daily or all_time")
			return
		}
		switch period {
		case trading.PeriodDaily:
			windowDays = 1
		case trading.PeriodAllTime:
			windowDays = 365 * 20
		}
	}

	var mode trading.Mode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode, err = trading.ParseMode(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "mode must be SAFE or AGGRESSIVE")
			return
		}
	}

	end := h.clock.Now()
	start := end.AddDate(0, 0, -windowDays)

	outcomes, err := h.reader.OutcomesSince(r.Context(), start)
	if err != nil {
		h.log.Error().Err(err).Msg("stats query failed")
		writeError(w, http.StatusInternalServerError, "failed to load outcomes")
		return
	}
	if mode != "" {
		outcomes, err = h.filterByMode(r.Context(), outcomes, mode, start)
		if err != nil {
			h.log.Error().Err(err).Msg("stats mode filter failed")
			writeError(w, http.StatusInternalServerError, "failed to load outcomes")
			return
		}
	}

	byHorizon := stats.AggregateOutcomes(outcomes, start, end)
	for horizon, perf := range byHorizon {
		perf.Mode = mode
		perf.Period = period
		byHorizon[horizon] = perf
	}

	writeJSON(w, http.StatusOK, statsResponse{
		WindowStart: start,
		WindowEnd:   end,
		Mode:        mode,
		Period:      period,
		SampleSize:  len(outcomes),
		ByHorizon:   byHorizon,
	})
}

// filterByMode keeps outcomes whose originating signal matches the
// mode. Outcomes do not store the mode themselves, so this resolves it
// through the signal window.
func (h *Handlers) filterByMode(ctx context.Context, outcomes []trading.Outcome, mode trading.Mode, since time.Time) ([]trading.Outcome, error) {
	signals, err := h.reader.RecentSignals(ctx, since.Add(-48*time.Hour), maxPickLimit*10)
	if err != nil {
		return nil, err
	}
	wanted := make(map[uuid.UUID]bool, len(signals))
	for _, s := range signals {
		if s.Mode == mode {
			wanted[s.ID] = true
		}
	}
	kept := outcomes[:0]
	for _, o := range outcomes {
		if wanted[o.SignalID] {
			kept = append(kept, o)
		}
	}
	return kept, nil
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}
