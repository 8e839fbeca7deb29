package engine

import (
	"errors"
	"fmt"
	"time"

	"rebalancer/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrUnknownTicker = errors.New("ticker is not part of the backtest")
	ErrNoPrice       = errors.New("no price available yet")
	ErrInvalidWindow = errors.New("history window must be positive")
)

// The backtester is the Platform handed to strategies. Prices are the
// closes of the day being replayed.

func (b *backtester) Now() time.Time {
	if b.day < 0 || b.day >= len(b.calendar) {
		return b.start
	}
	return b.calendar[b.day]
}

func (b *backtester) Logger() *zap.Logger {
	return b.logger
}

func (b *backtester) Record(name string, value decimal.Decimal) {
	b.recorder.Record(b.Now(), name, value)
}

// CurrentPrice returns the latest close up to and including today. A stale
// close is returned for tickers without a bar today; use CanTrade to tell.
func (b *backtester) CurrentPrice(ticker string) (decimal.Decimal, error) {
	feed, idx, err := b.feedAt(ticker)
	if err != nil {
		return decimal.Zero, err
	}
	return feed.candles[idx].Close, nil
}

func (b *backtester) HistoricalCloses(ticker string, window int) ([]decimal.Decimal, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrInvalidWindow)
	}
	feed, idx, err := b.feedAt(ticker)
	if err != nil {
		return nil, err
	}
	from := idx + 1 - window
	if from < 0 {
		from = 0
	}
	return types.Closes(feed.candles[from : idx+1]), nil
}

// CanTrade reports whether ticker has a bar on the current day.
func (b *backtester) CanTrade(ticker string) bool {
	feed, idx, err := b.feedAt(ticker)
	if err != nil {
		return false
	}
	return feed.candles[idx].Day().Equal(b.Now())
}

func (b *backtester) Cash() decimal.Decimal {
	return b.portfolio.cash
}

func (b *backtester) Positions() map[string]decimal.Decimal {
	return b.Snapshot().Holdings()
}

func (b *backtester) Snapshot() types.PortfolioView {
	return b.portfolio.GetPortfolioSnapshot(b.Now())
}

// Submit queues a signed share delta for the broker. A nil limit sends a
// market order. Zero quantities are dropped.
func (b *backtester) Submit(ticker string, quantity decimal.Decimal, limit *decimal.Decimal) {
	if quantity.IsZero() {
		return
	}
	b.orderSeq++
	orderType := types.TypeMarket
	price := decimal.Zero
	if limit != nil {
		orderType = types.TypeLimit
		price = *limit
	}
	order := types.NewOrder(
		fmt.Sprintf("%s-%d", b.runID, b.orderSeq),
		ticker,
		price,
		quantity.Abs(),
		orderType,
		types.SideForDelta(quantity),
		b.currentJob,
		b.Now(),
	)
	b.logger.Info("order submitted",
		zap.String("order", order.Id),
		zap.String("ticker", ticker),
		zap.String("side", string(order.Side)),
		zap.String("qty", order.Quantity.String()),
		zap.String("price", price.String()),
		zap.String("reason", order.Reason),
	)
	b.pending = append(b.pending, order)
}

func (b *backtester) feedAt(ticker string) (*DataFeedConfig, int, error) {
	feed, ok := b.feedsByTicker[ticker]
	if !ok {
		return nil, -1, fmt.Errorf("%s: %w", ticker, ErrUnknownTicker)
	}
	idx := b.feedIndex[ticker]
	if idx < 0 || idx >= len(feed.candles) {
		return nil, -1, fmt.Errorf("%s: %w", ticker, ErrNoPrice)
	}
	return feed, idx, nil
}
