package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alphastack/tradepulse/internal/config"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/scoring"
	"github.com/alphastack/tradepulse/internal/infrastructure/marketdata"
	"github.com/alphastack/tradepulse/internal/infrastructure/store"
	"github.com/alphastack/tradepulse/internal/metrics"
)

var version = "dev"

// app carries the loaded configuration and logger into subcommands.
type app struct {
	cfg config.Config
	log zerolog.Logger
}

func Execute(ctx context.Context, log zerolog.Logger) error {
	a := &app{log: log}
	var (
		cfgPath  string
		logLevel string
	)

	root := &cobra.Command{
		Use:           "tradepulse",
		Short:         "Intraday signal scanning, risk sizing, and backtesting",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg

			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			level, err := zerolog.ParseLevel(a.cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", a.cfg.LogLevel, err)
			}
			a.log = a.log.Level(level)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (trace|debug|info|warn|error)")
	root.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.AddCommand(
		scanCmd(a),
		serveCmd(a),
		evaluateCmd(a),
		backtestCmd(a),
		statsCmd(a),
		trainCmd(a),
	)
	return root.ExecuteContext(ctx)
}

// newSource builds the bar source: guarded providers behind the chain,
// with an optional Redis read-through layer.
func (a *app) newSource(reg *metrics.Registry) marketdata.Source {
	synthetic := marketdata.NewGuardedProvider(
		marketdata.NewSyntheticProvider(1), a.cfg.Provider, a.log)
	chain := marketdata.NewChain(a.log, reg, synthetic)

	if !a.cfg.Redis.Enabled {
		return chain
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	return marketdata.NewCachedSource(chain, rdb, market.RealClock{}, a.log)
}

// openStore connects the signal store and prepares its schema.
func (a *app) openStore(ctx context.Context) (*store.SignalStore, *sqlx.DB, error) {
	db, err := sqlx.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(a.cfg.Database.MaxIdleConns)

	st := store.NewSignalStore(db, a.cfg.Database.QueryTimeout(), a.log)
	if err := st.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, db, nil
}

// newScorer blends rules with the last published model artifact.
func (a *app) newScorer(holder *scoring.ArtifactHolder) scoring.Scorer {
	rules := scoring.NewRuleScorer(a.cfg.Rules)
	if holder == nil || a.cfg.Learn.ModelWeight == 0 {
		return rules
	}
	return scoring.NewBlendScorer(rules, holder, a.cfg.Learn.ModelWeight, a.log)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
