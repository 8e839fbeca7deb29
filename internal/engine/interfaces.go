package engine

import (
	"context"
	"time"

	"rebalancer/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CandleSource is where historical bars come from (database or CSV files).
type CandleSource interface {
	GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

// PriceService answers price questions for the current trading day.
type PriceService interface {
	CurrentPrice(ticker string) (decimal.Decimal, error)
	// HistoricalCloses returns up to window closes, most recent last.
	HistoricalCloses(ticker string, window int) ([]decimal.Decimal, error)
	CanTrade(ticker string) bool
}

type PortfolioProvider interface {
	Cash() decimal.Decimal
	Positions() map[string]decimal.Decimal
	Snapshot() types.PortfolioView
}

// OrderSink accepts signed share quantities. Submission is fire-and-forget:
// fills are only visible through later portfolio snapshots.
type OrderSink interface {
	Submit(ticker string, quantity decimal.Decimal, limit *decimal.Decimal)
}

// Platform is everything a strategy can reach during a scheduled call.
type Platform interface {
	PriceService
	PortfolioProvider
	OrderSink
	Now() time.Time
	// Record stores a named metric for the current day.
	Record(name string, value decimal.Decimal)
	Logger() *zap.Logger
}

type Job struct {
	Name string
	Rule DateRule
	// Offset orders jobs that share a day, measured from the market open.
	Offset time.Duration
	Run    func(ctx context.Context, api Platform) error
}

type Strategy interface {
	Name() string
	Init(api Platform) ([]Job, error)
}

type broker interface {
	Execute(orders []types.Order, ctx types.ExecutionContext) []*types.ExecutionReport
}
