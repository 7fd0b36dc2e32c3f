package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alphastack/tradepulse/internal/application/stats"
	"github.com/alphastack/tradepulse/internal/domain/trading"
	"github.com/alphastack/tradepulse/internal/infrastructure/store"
)

func statsCmd(a *app) *cobra.Command {
	var (
		windowDays int
		modeFlag   string
		periodFlag string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate evaluated outcomes over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			var mode trading.Mode
			if modeFlag != "" {
				if mode, err = trading.ParseMode(modeFlag); err != nil {
					return err
				}
			}
			var period trading.Period
			if periodFlag != "" {
				if period, err = trading.ParsePeriod(periodFlag); err != nil {
					return err
				}
				switch period {
				case trading.PeriodDaily:
					windowDays = 1
				case trading.PeriodAllTime:
					windowDays = 365 * 20
				}
			}

			end := time.Now()
			start := end.AddDate(0, 0, -windowDays)

			outcomes, err := st.OutcomesSince(cmd.Context(), start)
			if err != nil {
				return err
			}
			if mode != "" {
				if outcomes, err = filterOutcomesByMode(cmd.Context(), st, outcomes, mode, start); err != nil {
					return err
				}
			}

			byHorizon := stats.AggregateOutcomes(outcomes, start, end)
			for horizon, perf := range byHorizon {
				perf.Mode = mode
				perf.Period = period
				byHorizon[horizon] = perf

				// A mode and period name a snapshot slot, so the
				// recomputation supersedes the stored row.
				if mode != "" && period != "" {
					if err := st.SavePerformance(cmd.Context(), mode, period, perf); err != nil {
						return err
					}
				}
			}

			type statsOutput struct {
				WindowStart time.Time                               `json:"window_start"`
				WindowEnd   time.Time                               `json:"window_end"`
				Mode        trading.Mode                            `json:"mode,omitempty"`
				Period      trading.Period                          `json:"period,omitempty"`
				SampleSize  int                                     `json:"sample_size"`
				ByHorizon   map[trading.Horizon]trading.Performance `json:"by_horizon"`
			}
			return printJSON(statsOutput{
				WindowStart: start,
				WindowEnd:   end,
				Mode:        mode,
				Period:      period,
				SampleSize:  len(outcomes),
				ByHorizon:   byHorizon,
			})
		},
	}

	cmd.Flags().IntVar(&windowDays, "window-days", 30, "trailing window in days")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "restrict to one mode (SAFE or AGGRESSIVE)")
	cmd.Flags().StringVar(&periodFlag, "period", "", "named window (daily or all_time), overrides --window-days and persists the snapshot")
	return cmd
}

// filterOutcomesByMode resolves each outcome's mode through its signal
// and keeps the matching ones.
func filterOutcomesByMode(ctx context.Context, st *store.SignalStore, outcomes []trading.Outcome, mode trading.Mode, since time.Time) ([]trading.Outcome, error) {
	signals, err := st.RecentSignals(ctx, since.Add(-48*time.Hour), 10_000)
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
