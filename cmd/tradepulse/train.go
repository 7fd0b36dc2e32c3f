package main

import (
	"github.com/spf13/cobra"

	"github.com/alphastack/tradepulse/internal/application/learn"
	"github.com/alphastack/tradepulse/internal/domain/scoring"
	"github.com/alphastack/tradepulse/internal/metrics"
)

func trainCmd(a *app) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Retrain the scoring model from evaluated outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			artifacts, err := learn.NewArtifactStore(a.cfg.Learn.ArtifactDir, a.log)
			if err != nil {
				return err
			}

			holder := &scoring.ArtifactHolder{}
			loop := learn.NewLoop(a.cfg.Learn.Loop, st,
				learn.NewTrainer(a.cfg.Learn.Train, a.log), artifacts, holder,
				metrics.NewRegistry(), a.log)
			if err := loop.Restore(); err != nil {
				return err
			}

			if follow {
				return loop.Run(cmd.Context())
			}
			return loop.RunOnce(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&follow, "follow", false, "keep retraining on the configured cadence")
	return cmd
}
