package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Engine struct {
	source          CandleSource
	backtestConfig  *BacktestConfig
	portfolioConfig *PortfolioConfig
	reportingConfig *ReportingConfig
	strategy        Strategy
	broker          broker
	logger          *zap.Logger
	out             io.Writer

	recorder *Recorder
}

func NewEngine(
	backtestConfig *BacktestConfig,
	portfolioConfig *PortfolioConfig,
	reportingConfig *ReportingConfig,
	source CandleSource,
	strat Strategy,
	broker broker,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:          source,
		backtestConfig:  backtestConfig,
		portfolioConfig: portfolioConfig,
		reportingConfig: reportingConfig,
		strategy:        strat,
		broker:          broker,
		logger:          logger.Named("engine"),
		out:             os.Stdout,
	}
}

// WithOutput redirects the printed report.
func (e *Engine) WithOutput(w io.Writer) *Engine {
	e.out = w
	return e
}

// Recorder holds the metrics recorded by the strategy during the last run.
func (e *Engine) Recorder() *Recorder {
	return e.recorder
}

func (e *Engine) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID), zap.String("strategy", e.strategy.Name()))

	if err := e.loadData(ctx); err != nil {
		return nil, err
	}

	logger.Info("backtest started",
		zap.Time("start", e.backtestConfig.start),
		zap.Time("end", e.backtestConfig.end),
		zap.Int("feeds", len(e.backtestConfig.feeds)),
	)
	bt := newBacktester(runID, e.backtestConfig, e.portfolioConfig, e.strategy, e.broker, e.reportingConfig.showProgress, logger)
	e.recorder = bt.recorder
	if err := bt.run(ctx); err != nil {
		return nil, err
	}

	report := generateReport(runID, bt.portfolio, e.reportingConfig.sharpeRiskFreeRate)
	printReport(e.out, report)
	logger.Info("backtest finished",
		zap.String("end_value", report.EndValue.String()),
		zap.Int("orders", report.TotalOrders),
		zap.Int("rejected", report.RejectedOrders),
	)

	if path := e.reportingConfig.executionsFile; path != "" {
		if err := writeExecutionsCSVFile(path, bt.portfolio.executions); err != nil {
			return report, err
		}
	}
	if path := e.reportingConfig.metricsFile; path != "" {
		if err := bt.recorder.writeCSVFile(path); err != nil {
			return report, err
		}
	}
	if path := e.reportingConfig.summaryFile; path != "" {
		if err := writeSummaryJSONFile(path, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (e *Engine) loadData(ctx context.Context) error {
	for _, feed := range e.backtestConfig.feeds {
		cs, err := e.source.GetCandles(ctx, feed.ticker, feed.interval, feed.start, feed.end)
		if err != nil {
			return fmt.Errorf("load %s: %w", feed.ticker, err)
		}
		feed.candles = cs
		e.logger.Debug("feed loaded", zap.String("ticker", feed.ticker), zap.Int("candles", len(cs)))
	}
	return nil
}
