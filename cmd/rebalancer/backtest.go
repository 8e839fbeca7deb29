package main

import (
	"fmt"
	"os"

	"rebalancer/internal/config"
	"rebalancer/internal/data"
	"rebalancer/internal/engine"
	"rebalancer/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBacktestCmd(newLogger func() (*zap.Logger, error)) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a strategy over historical daily bars",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return runBacktest(cmd, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the run file")
	return cmd
}

func runBacktest(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	ctx := cmd.Context()

	var source engine.CandleSource
	switch cfg.Source.Type {
	case config.SourcePostgres:
		db, err := repository.NewDatabase(ctx, cfg.Source.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to price store: %w", err)
		}
		defer db.Close()
		source = db
	default:
		source = data.NewCSVLoader(cfg.Source.DataDir, logger)
	}

	strat, err := buildStrategy(cfg)
	if err != nil {
		return err
	}
	fees, err := cfg.ToFeeModel()
	if err != nil {
		return err
	}
	backtestCfg, err := cfg.ToBacktestConfig()
	if err != nil {
		return err
	}
	if cfg.Output.Path != "" {
		if err := os.MkdirAll(cfg.Output.Path, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	eng := engine.NewEngine(
		backtestCfg,
		cfg.ToPortfolioConfig(),
		cfg.ToReportingConfig(),
		source,
		strat,
		engine.NewSimBroker(fees, logger),
		logger,
	).WithOutput(cmd.OutOrStdout())

	_, err = eng.Run(ctx)
	return err
}
