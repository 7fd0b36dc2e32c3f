package main

import (
	"github.com/spf13/cobra"

	"github.com/alphastack/tradepulse/internal/application/stats"
	"github.com/alphastack/tradepulse/internal/domain/market"
)

func evaluateCmd(a *app) *cobra.Command {
	var lookbackHours int

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Grade stored signals whose horizons have elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			cfg := stats.DefaultSweepConfig()
			cfg.LookbackHours = lookbackHours

			evaluator := stats.NewEvaluator(a.cfg.Eval.Costs, a.cfg.Eval.WinThresholdPct, a.log)
			sweeper := stats.NewSweeper(cfg, st, a.newSource(nil), evaluator, market.RealClock{}, a.log)

			report, err := sweeper.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().IntVar(&lookbackHours, "lookback-hours", 48, "how far back to look for ungraded signals")
	return cmd
}
