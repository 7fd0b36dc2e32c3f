package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alphastack/tradepulse/internal/application/learn"
	"github.com/alphastack/tradepulse/internal/application/scan"
	"github.com/alphastack/tradepulse/internal/application/universe"
	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/risk"
	"github.com/alphastack/tradepulse/internal/domain/scoring"
	"github.com/alphastack/tradepulse/internal/domain/trading"
	"github.com/alphastack/tradepulse/internal/metrics"
)

func scanCmd(a *app) *cobra.Command {
	var (
		mode        string
		symbols     []string
		equity      float64
		buyingPower float64
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan sweep and persist the signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			tradingMode, err := trading.ParseMode(mode)
			if err != nil {
				return err
			}

			st, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			reg := metrics.NewRegistry()

			holder := &scoring.ArtifactHolder{}
			artifacts, err := learn.NewArtifactStore(a.cfg.Learn.ArtifactDir, a.log)
			if err != nil {
				return err
			}
			loop := learn.NewLoop(a.cfg.Learn.Loop, st,
				learn.NewTrainer(a.cfg.Learn.Train, a.log), artifacts, holder, reg, a.log)
			if err := loop.Restore(); err != nil {
				a.log.Warn().Err(err).Msg("artifact restore failed, scoring on rules")
			}

			scanCfg := a.cfg.Scan
			if len(symbols) > 0 {
				scanCfg.Symbols = symbols
			}
			if len(scanCfg.Symbols) == 0 {
				return fmt.Errorf("no symbols: set scan.symbols in config or pass --symbols")
			}

			clock := market.RealClock{}
			pipeline := scan.NewPipeline(
				scanCfg,
				a.newSource(reg),
				universe.NewSelector(a.cfg.Universe, clock, a.log),
				features.NewEngine(a.cfg.Features),
				a.newScorer(holder),
				risk.NewEngine(a.cfg.Risk, clock, a.log),
				st,
				reg,
				clock,
				a.log,
			)
			defer pipeline.Close()

			report, err := pipeline.Run(cmd.Context(), tradingMode, trading.AccountState{
				Equity:      equity,
				BuyingPower: buyingPower,
			})
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "SAFE", "trading mode: SAFE|AGGRESSIVE")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "override configured symbols")
	cmd.Flags().Float64Var(&equity, "equity", 25_000, "account equity in USD")
	cmd.Flags().Float64Var(&buyingPower, "buying-power", 50_000, "account buying power in USD")
	return cmd
}
