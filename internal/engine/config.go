package engine

import (
	"time"

	"rebalancer/types"

	"github.com/shopspring/decimal"
)

type DataFeedConfig struct {
	ticker   string
	interval types.Interval
	start    time.Time
	end      time.Time
	candles  []types.Candle
}

func NewDataFeedConfigs(feeds ...*DataFeedConfig) []*DataFeedConfig {
	return feeds
}

func NewDataFeedConfig(ticker string, interval types.Interval, start, end time.Time) *DataFeedConfig {
	return &DataFeedConfig{
		ticker:   ticker,
		interval: interval,
		start:    start,
		end:      end,
	}
}

// BacktestConfig bounds the replay. Feeds may start before start so that
// strategies have warmup history on the first trading day.
type BacktestConfig struct {
	feeds []*DataFeedConfig
	start time.Time
	end   time.Time
}

// NewBacktestConfig loads tickers from start-warmup and trades from start to end.
func NewBacktestConfig(tickers []string, interval types.Interval, start, end time.Time, warmup time.Duration) *BacktestConfig {
	feeds := make([]*DataFeedConfig, 0, len(tickers))
	for _, ticker := range tickers {
		feeds = append(feeds, NewDataFeedConfig(ticker, interval, start.Add(-warmup), end))
	}
	return &BacktestConfig{
		feeds: feeds,
		start: start,
		end:   end,
	}
}

type PortfolioConfig struct {
	initialCash       decimal.Decimal
	allowShortSelling bool
	contribution      decimal.Decimal
}

func NewPortfolioConfig(initialCash decimal.Decimal, allowShortSelling bool) *PortfolioConfig {
	return &PortfolioConfig{
		initialCash:       initialCash,
		allowShortSelling: allowShortSelling,
	}
}

// WithContribution deposits amount on the first trading day of every month.
func (c *PortfolioConfig) WithContribution(amount decimal.Decimal) *PortfolioConfig {
	c.contribution = amount
	return c
}

type ReportingConfig struct {
	sharpeRiskFreeRate decimal.Decimal
	showProgress       bool
	executionsFile     string
	metricsFile        string
	summaryFile        string
}

func NewReportingConfig(sharpeRiskFreeRate decimal.Decimal, showProgress bool) *ReportingConfig {
	return &ReportingConfig{
		sharpeRiskFreeRate: sharpeRiskFreeRate,
		showProgress:       showProgress,
	}
}

// WithFiles sets output paths; empty paths are skipped.
func (c *ReportingConfig) WithFiles(executionsFile, metricsFile, summaryFile string) *ReportingConfig {
	c.executionsFile = executionsFile
	c.metricsFile = metricsFile
	c.summaryFile = summaryFile
	return c
}
