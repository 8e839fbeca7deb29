package buyhold

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

// Strategy holds fixed target weights and rebalances them on the second
// trading day of every month, an hour after the open. The proceeds of that
// day's sells are spent the next trading day, once they have filled. Assets
// without a bar that day are skipped until the next rebalance.
type Strategy struct {
	targets    types.TargetAllocation
	cashMargin decimal.Decimal
	rebalancer *rebalance.Rebalancer
	topUp      *rebalance.Rebalancer
}

func New(targets types.TargetAllocation, cashMargin decimal.Decimal) *Strategy {
	return &Strategy{targets: targets, cashMargin: cashMargin}
}

func (s *Strategy) Name() string {
	return "buyhold"
}

func (s *Strategy) Init(api engine.Platform) ([]engine.Job, error) {
	cfg := rebalance.Config{SellAllowed: true, CashMargin: s.cashMargin}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.rebalancer = rebalance.New(cfg, api.Logger())
	s.topUp = rebalance.New(rebalance.Config{CashMargin: s.cashMargin}, api.Logger())
	return []engine.Job{
		{Name: "rebalance", Rule: engine.MonthStart(1), Offset: time.Hour, Run: s.rebalance},
		{Name: "top_up", Rule: engine.MonthStart(2), Offset: time.Hour, Run: s.topUpCash},
	}, nil
}

func (s *Strategy) rebalance(_ context.Context, api engine.Platform) error {
	plan := strategies.Rebalance(api, s.rebalancer, s.targets)
	api.Logger().Debug("monthly rebalance",
		zap.Int("orders", len(plan.Entries)),
		zap.String("residual_cash", plan.ResidualCash.String()),
	)
	return nil
}

func (s *Strategy) topUpCash(_ context.Context, api engine.Platform) error {
	plan := strategies.Rebalance(api, s.topUp, s.targets)
	api.Logger().Debug("top up",
		zap.Int("orders", len(plan.Entries)),
		zap.String("residual_cash", plan.ResidualCash.String()),
	)
	return nil
}
