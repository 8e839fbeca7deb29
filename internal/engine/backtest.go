package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"rebalancer/types"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrEmptyCalendar = errors.New("no trading days in the backtest range")

type backtester struct {
	feeds           []*DataFeedConfig
	feedsByTicker   map[string]*DataFeedConfig
	portfolioConfig *PortfolioConfig
	strategy        Strategy
	broker          broker
	portfolio       *portfolio
	recorder        *Recorder
	logger          *zap.Logger
	showProgress    bool

	runID      string
	start      time.Time
	end        time.Time
	calendar   []time.Time
	day        int
	feedIndex  map[string]int
	pending    []types.Order
	orderSeq   int
	currentJob string
}

func newBacktester(runID string, config *BacktestConfig, portfolioConfig *PortfolioConfig, strat Strategy, broker broker, showProgress bool, logger *zap.Logger) *backtester {
	feedIndex := make(map[string]int)
	byTicker := make(map[string]*DataFeedConfig)
	for _, feed := range config.feeds {
		feedIndex[feed.ticker] = -1
		byTicker[feed.ticker] = feed
	}

	return &backtester{
		feeds:           config.feeds,
		feedsByTicker:   byTicker,
		portfolioConfig: portfolioConfig,
		strategy:        strat,
		broker:          broker,
		portfolio:       newPortfolio(portfolioConfig.initialCash, portfolioConfig.allowShortSelling),
		recorder:        NewRecorder(),
		logger:          logger,
		showProgress:    showProgress,
		runID:           runID,
		start:           config.start,
		end:             config.end,
		day:             -1,
		feedIndex:       feedIndex,
	}
}

func (b *backtester) run(ctx context.Context) error {
	b.calendar = buildCalendar(b.feeds, b.start, b.end)
	if len(b.calendar) == 0 {
		return ErrEmptyCalendar
	}

	jobs, err := b.strategy.Init(b)
	if err != nil {
		return fmt.Errorf("init strategy %s: %w", b.strategy.Name(), err)
	}
	// Same-day jobs run by offset, then in registration order.
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].Offset < jobs[j].Offset })
	for _, job := range jobs {
		b.logger.Debug("job scheduled",
			zap.String("job", job.Name),
			zap.String("rule", job.Rule.String()),
			zap.Duration("offset", job.Offset),
		)
	}

	bar := initProgressBar(len(b.calendar), b.showProgress)
	for i, day := range b.calendar {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.day = i
		b.advanceFeeds(day)

		if MonthStart(0).Matches(b.calendar, i) {
			b.portfolio.deposit(b.portfolioConfig.contribution, day)
		}
		closes := b.currentCloses()
		b.portfolio.markToMarket(closes)

		for _, job := range jobs {
			if !job.Rule.Matches(b.calendar, i) {
				continue
			}
			b.currentJob = job.Name
			if err := job.Run(ctx, b); err != nil {
				return fmt.Errorf("job %s on %s: %w", job.Name, day.Format("2006-01-02"), err)
			}
		}
		b.currentJob = ""

		if len(b.pending) > 0 {
			executions := b.broker.Execute(b.pending, b.buildExecutionContext())
			b.pending = nil
			if err := b.portfolio.processExecutions(executions); err != nil {
				return fmt.Errorf("apply executions on %s: %w", day.Format("2006-01-02"), err)
			}
			for _, er := range executions {
				if er.Status == types.OrderRejected {
					b.logger.Warn("order rejected",
						zap.String("order", er.OrderId),
						zap.String("ticker", er.Ticker),
						zap.String("reason", er.RejectReason),
					)
				}
			}
			// Fills carry the next open; the snapshot is valued at today's close.
			b.portfolio.markToMarket(closes)
		}

		b.portfolio.takeSnapshot(day)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return nil
}

// advanceFeeds moves every feed index to the last candle on or before day.
func (b *backtester) advanceFeeds(day time.Time) {
	for _, feed := range b.feeds {
		b.feedIndex[feed.ticker] = advanceFeedIndex(feed.candles, b.feedIndex[feed.ticker], day)
	}
}

func (b *backtester) currentCloses() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b.feeds))
	for _, feed := range b.feeds {
		if idx := b.feedIndex[feed.ticker]; idx >= 0 {
			out[feed.ticker] = feed.candles[idx].Close
		}
	}
	return out
}

func (b *backtester) buildExecutionContext() types.ExecutionContext {
	ctx := types.ExecutionContext{CurTime: b.Now()}
	candlesMap := make(map[string][]types.Candle)
	for _, feed := range b.feeds {
		start := b.feedIndex[feed.ticker]
		if start < 0 {
			start = 0
		}
		candlesMap[feed.ticker] = feed.candles[start:]
	}
	ctx.Candles = candlesMap
	ctx.Portfolio = b.portfolio.GetPortfolioSnapshot(b.Now())
	return ctx
}

// buildCalendar is the sorted union of candle days within [start, end].
func buildCalendar(feeds []*DataFeedConfig, start, end time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	var days []time.Time
	for _, feed := range feeds {
		for _, c := range feed.candles {
			day := c.Day()
			if day.Before(start) || day.After(end) {
				continue
			}
			if _, ok := seen[day]; ok {
				continue
			}
			seen[day] = struct{}{}
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// Index only goes one way
func advanceFeedIndex(candles []types.Candle, prevIndex int, day time.Time) int {
	if prevIndex < -1 {
		prevIndex = -1
	}
	for prevIndex+1 < len(candles) && !candles[prevIndex+1].Day().After(day) {
		prevIndex++
	}
	return prevIndex
}

func initProgressBar(maxTicks int, show bool) *progressbar.ProgressBar {
	var w io.Writer = os.Stderr
	if !show {
		w = io.Discard
	}
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
