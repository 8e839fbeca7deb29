package smatopup

import (
	"context"
	"time"

	"rebalancer/internal/engine"
	"rebalancer/internal/rebalance"
	"rebalancer/strategies"
	"rebalancer/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Strategy tops up underweight assets every day with whatever cash is
// available, bidding at the moving average of recent closes. It never sells.
type Strategy struct {
	targets    types.TargetAllocation
	window     int
	cashMargin decimal.Decimal
	rebalancer *rebalance.Rebalancer

	lastCash      decimal.Decimal
	contributions decimal.Decimal
	dividends     decimal.Decimal
}

func New(targets types.TargetAllocation, window int, cashMargin decimal.Decimal) *Strategy {
	return &Strategy{targets: targets, window: window, cashMargin: cashMargin}
}

func (s *Strategy) Name() string {
	return "smatopup"
}

// Init counts the starting cash as the first contribution.
func (s *Strategy) Init(api engine.Platform) ([]engine.Job, error) {
	cfg := rebalance.Config{SellAllowed: false, CashMargin: s.cashMargin}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.rebalancer = rebalance.New(cfg, api.Logger())
	s.lastCash = api.Cash()
	s.contributions = api.Cash()
	s.dividends = decimal.Zero
	return []engine.Job{
		{Name: "record_metrics", Rule: engine.EveryDay(), Offset: 0, Run: s.recordMetrics},
		{Name: "buy_to_balance", Rule: engine.EveryDay(), Offset: 2 * time.Hour, Run: s.buyToBalance},
		{Name: "log_balances", Rule: engine.WeekEnd(), Offset: 6*time.Hour + 15*time.Minute, Run: s.logBalances},
	}, nil
}

func (s *Strategy) buyToBalance(_ context.Context, api engine.Platform) error {
	quotes := strategies.Quotes(api, s.targets.Tickers(), s.window)
	plan := s.rebalancer.Plan(api.Snapshot(), s.targets, quotes)
	if plan.IsEmpty() {
		return nil
	}
	for _, e := range plan.Entries {
		api.Logger().Info("buy below average",
			zap.String("ticker", e.Ticker),
			zap.String("qty", e.Delta.String()),
			zap.String("price", e.Price.String()),
		)
	}
	strategies.Submit(api, plan, true)
	return nil
}

// recordMetrics classifies any rise in cash since the last call: round
// hundreds are contributions, anything else a dividend.
func (s *Strategy) recordMetrics(_ context.Context, api engine.Platform) error {
	cash := api.Cash()
	if jump := cash.Sub(s.lastCash); jump.IsPositive() {
		if jump.Mod(hundred).IsZero() {
			s.contributions = s.contributions.Add(jump)
		} else {
			s.dividends = s.dividends.Add(jump)
		}
	}
	s.lastCash = cash

	view := api.Snapshot()
	quotes := strategies.Quotes(api, s.targets.Tickers(), 0)
	api.Record("value", view.Value())
	api.Record("off_target", rebalance.OffTarget(view, s.targets, quotes))
	api.Record("cash", cash)
	api.Record("contributions", s.contributions)
	api.Record("dividends", s.dividends)
	return nil
}

func (s *Strategy) logBalances(_ context.Context, api engine.Platform) error {
	view := api.Snapshot()
	value := view.Value()
	quotes := strategies.Quotes(api, s.targets.Tickers(), s.window)
	logger := api.Logger()
	logger.Info("week end",
		zap.String("value", value.StringFixed(2)),
		zap.String("contributions", s.contributions.StringFixed(2)),
		zap.String("profit", value.Sub(s.contributions).StringFixed(2)),
		zap.String("dividends", s.dividends.StringFixed(2)),
		zap.String("cash", view.Cash.StringFixed(2)),
		zap.String("off_target", rebalance.OffTarget(view, s.targets, quotes).StringFixed(2)),
	)
	for _, ticker := range s.targets.Tickers() {
		q := quotes[ticker]
		balance := view.Quantity(ticker).Mul(q.Price)
		allocation := decimal.Zero
		if value.IsPositive() {
			allocation = balance.Div(value).Mul(hundred)
		}
		logger.Info("week end allocation",
			zap.String("ticker", ticker),
			zap.String("allocation_pct", allocation.StringFixed(1)),
			zap.String("balance", balance.StringFixed(2)),
			zap.String("price", q.Price.StringFixed(2)),
			zap.String("sma", q.Reference.StringFixed(2)),
		)
	}
	return nil
}
