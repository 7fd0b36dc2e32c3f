package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphastack/tradepulse/internal/backtest"
	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

func backtestCmd(a *app) *cobra.Command {
	var (
		symbols   []string
		mode      string
		startStr  string
		endStr    string
		threshold float64
		equity    float64
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the signal pipeline over a historical window",
		RunE: func(cmd *cobra.Command, args []string) error {
			tradingMode, err := trading.ParseMode(mode)
			if err != nil {
				return err
			}
			start, err := parseDay(startStr)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := parseDay(endStr)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			cfg := backtest.DefaultConfig()
			cfg.Symbols = symbols
			cfg.Mode = tradingMode
			cfg.Start = start
			cfg.End = end
			cfg.ScoreThreshold = threshold
			cfg.InitialEquity = equity
			cfg.Costs = a.cfg.Eval.Costs

			runner := backtest.NewRunner(
				cfg,
				a.newSource(nil),
				features.NewEngine(a.cfg.Features),
				a.newScorer(nil),
				a.cfg.Risk,
				a.log,
			)
			result, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols to replay")
	cmd.Flags().StringVar(&mode, "mode", "SAFE", "trading mode: SAFE|AGGRESSIVE")
	cmd.Flags().StringVar(&startStr, "start", "", "window start, YYYY-MM-DD (Eastern)")
	cmd.Flags().StringVar(&endStr, "end", "", "window end, YYYY-MM-DD (Eastern)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.6, "minimum score to enter")
	cmd.Flags().Float64Var(&equity, "equity", 25_000, "starting equity in USD")
	cmd.MarkFlagRequired("symbols")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

// parseDay reads YYYY-MM-DD in Eastern time, the session timezone.
func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, market.Eastern())
}
