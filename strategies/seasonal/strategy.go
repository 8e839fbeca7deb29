package seasonal

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

var one = decimal.NewFromInt(1)

// Strategy holds equity at weight and bond at 1-weight, and swaps the two
// during swapMonths. The monthly rebalance sells first; the day after, the
// proceeds buy the side that is now underweight.
type Strategy struct {
	equity     string
	bond       string
	weight     decimal.Decimal
	swapMonths map[time.Month]bool
	cashMargin decimal.Decimal
	rebalancer *rebalance.Rebalancer
	topUp      *rebalance.Rebalancer
}

func New(equity, bond string, weight decimal.Decimal, swapMonths []int, cashMargin decimal.Decimal) *Strategy {
	months := make(map[time.Month]bool, len(swapMonths))
	for _, m := range swapMonths {
		months[time.Month(m)] = true
	}
	return &Strategy{
		equity:     equity,
		bond:       bond,
		weight:     weight,
		swapMonths: months,
		cashMargin: cashMargin,
	}
}

func (s *Strategy) Name() string {
	return "seasonal"
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

// Targets returns the allocation for month.
func (s *Strategy) Targets(month time.Month) types.TargetAllocation {
	main, other := s.equity, s.bond
	if s.swapMonths[month] {
		main, other = s.bond, s.equity
	}
	return types.TargetAllocation{
		main:  s.weight,
		other: one.Sub(s.weight),
	}
}

func (s *Strategy) rebalance(_ context.Context, api engine.Platform) error {
	targets := s.Targets(api.Now().Month())
	plan := strategies.Rebalance(api, s.rebalancer, targets)
	api.Logger().Debug("seasonal rebalance",
		zap.Stringer("month", api.Now().Month()),
		zap.Int("orders", len(plan.Entries)),
	)
	strategies.LogPositions(api, "positions")
	return nil
}

func (s *Strategy) topUpCash(_ context.Context, api engine.Platform) error {
	plan := strategies.Rebalance(api, s.topUp, s.Targets(api.Now().Month()))
	api.Logger().Debug("seasonal top up",
		zap.Stringer("month", api.Now().Month()),
		zap.Int("orders", len(plan.Entries)),
	)
	return nil
}
