package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/interfaces/api"
	"github.com/alphastack/tradepulse/internal/metrics"
)

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only picks and stats API",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			handlers := api.NewHandlers(st, market.RealClock{}, version, a.log)
			server := api.NewServer(a.cfg.Server, handlers, metrics.NewRegistry(), a.log)

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	return cmd
}
