package rotation

import (
	"context"
	"time"

	"rebalancer/internal/engine"
	"rebalancer/internal/rebalance"
	"rebalancer/strategies"
	"rebalancer/types"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Params struct {
	Targets types.TargetAllocation
	// Assets fixes the order in which assets are evaluated.
	Assets []string
	// Hedges are tried in order when picking the leader or laggard.
	Hedges        []string
	MoveThreshold decimal.Decimal
	Lookback      int
	ShortWindow   int
	LongWindow    int
	CashMargin    decimal.Decimal
}

// Strategy buys assets after a run of falling closes, funding the purchase
// by trimming the weakest hedge, and sells held assets after a run of rising
// closes, parking the proceeds in the strongest hedge. Once a month the
// asset weights are reset with the rebalancer.
type Strategy struct {
	params     Params
	cashShare  decimal.Decimal
	rebalancer *rebalance.Rebalancer

	// availableMoney tracks cash committed by orders that have not filled yet.
	availableMoney decimal.Decimal
}

func New(params Params) *Strategy {
	return &Strategy{params: params}
}

func (s *Strategy) Name() string {
	return "rotation"
}

func (s *Strategy) Init(api engine.Platform) ([]engine.Job, error) {
	// Each asset is reset to its own weight; the rest stays available for
	// the daily signals.
	cfg := rebalance.Config{SellAllowed: true, CashMargin: s.params.CashMargin, TargetPercent: true}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.rebalancer = rebalance.New(cfg, api.Logger())
	s.cashShare = decimal.NewFromInt(1)
	if n := len(s.params.Assets); n > 0 {
		s.cashShare = s.cashShare.Div(decimal.NewFromInt(int64(n)))
	}
	s.availableMoney = api.Cash()
	return []engine.Job{
		{Name: "record_metrics", Rule: engine.EveryDay(), Offset: 0, Run: s.recordMetrics},
		{Name: "rebalance", Rule: engine.MonthStart(1), Offset: time.Hour, Run: s.rebalance},
		{Name: "calculate", Rule: engine.EveryDay(), Offset: 65 * time.Minute, Run: s.calculate},
	}, nil
}

func (s *Strategy) rebalance(_ context.Context, api engine.Platform) error {
	cash := api.Cash()
	targets := make(types.TargetAllocation, len(s.params.Targets))
	for _, ticker := range s.params.Assets {
		weight, ok := s.params.Targets[ticker]
		if !ok {
			continue
		}
		price, err := api.CurrentPrice(ticker)
		if err != nil || !api.CanTrade(ticker) || !cash.GreaterThan(price) {
			continue
		}
		targets[ticker] = weight
	}
	if len(targets) > 0 {
		strategies.Rebalance(api, s.rebalancer, targets)
	}
	s.availableMoney = api.Cash()
	return nil
}

func (s *Strategy) calculate(_ context.Context, api engine.Platform) error {
	for _, ticker := range s.params.Assets {
		if !api.Cash().IsPositive() {
			return nil
		}
		signal, ok := s.decide(api, ticker)
		if !ok {
			continue
		}
		switch signal.Side {
		case types.SideTypeBuy:
			s.buy(api, signal)
		case types.SideTypeSell:
			s.sell(api, signal)
		}
	}
	return nil
}

// decide turns the mean daily change of ticker into a signal when it moves
// more than the threshold.
func (s *Strategy) decide(api engine.Platform, ticker string) (types.Signal, bool) {
	if !api.CanTrade(ticker) {
		return types.Signal{}, false
	}
	price, err := api.CurrentPrice(ticker)
	if err != nil {
		return types.Signal{}, false
	}
	closes, err := api.HistoricalCloses(ticker, s.params.Lookback)
	if err != nil {
		return types.Signal{}, false
	}
	change, ok := rebalance.MeanPercentChange(closes)
	if !ok || !change.Abs().GreaterThan(s.params.MoveThreshold) {
		return types.Signal{}, false
	}

	switch {
	case change.IsNegative() && s.availableMoney.IsPositive():
		return types.NewSignal(ticker, types.SideTypeBuy, price, change, "falling, buy the dip", api.Now()), true
	case change.IsPositive() && api.Positions()[ticker].IsPositive():
		return types.NewSignal(ticker, types.SideTypeSell, price, change, "rising, take profit", api.Now()), true
	}
	return types.Signal{}, false
}

func (s *Strategy) readings(api engine.Platform) []rebalance.TrendReading {
	readings := make([]rebalance.TrendReading, 0, len(s.params.Hedges))
	for _, hedge := range s.params.Hedges {
		closes, err := api.HistoricalCloses(hedge, s.params.LongWindow)
		if err != nil {
			closes = nil
		}
		reading, _ := rebalance.NewTrendReading(hedge, closes, s.params.ShortWindow, s.params.LongWindow)
		readings = append(readings, reading)
	}
	return readings
}

func (s *Strategy) buy(api engine.Platform, signal types.Signal) {
	logger := api.Logger()
	cash := s.availableMoney.Mul(s.cashShare)

	hedge := rebalance.SelectLaggard(s.readings(api), api.Positions())
	if hedgePrice, err := api.CurrentPrice(hedge); err == nil && hedgePrice.IsPositive() && api.CanTrade(hedge) {
		qty := decimal.Min(api.Positions()[hedge], cash.Div(hedgePrice).Round(0))
		if qty.IsPositive() {
			logger.Info("hedge sell", zap.String("ticker", hedge), zap.String("qty", qty.String()), zap.String("price", hedgePrice.String()))
			api.Submit(hedge, qty.Neg(), &hedgePrice)
			s.availableMoney = s.availableMoney.Add(qty.Mul(hedgePrice))
		}
	}

	price := signal.Price
	if !price.IsPositive() {
		return
	}
	qty := cash.Div(price).Round(0)
	if qty.IsPositive() && s.availableMoney.GreaterThan(qty.Mul(price)) {
		logger.Info("buy",
			zap.String("ticker", signal.Symbol),
			zap.String("qty", qty.String()),
			zap.String("price", price.String()),
			zap.String("change", signal.Strength.String()),
			zap.String("reason", signal.Reason),
		)
		api.Submit(signal.Symbol, qty, &price)
		s.availableMoney = s.availableMoney.Sub(qty.Mul(price))
	}
}

func (s *Strategy) sell(api engine.Platform, signal types.Signal) {
	logger := api.Logger()
	qty := api.Positions()[signal.Symbol]
	if !qty.IsPositive() {
		return
	}
	price := signal.Price
	logger.Info("sell",
		zap.String("ticker", signal.Symbol),
		zap.String("qty", qty.String()),
		zap.String("price", price.String()),
		zap.String("change", signal.Strength.String()),
		zap.String("reason", signal.Reason),
	)
	api.Submit(signal.Symbol, qty.Neg(), &price)
	proceeds := qty.Mul(price)
	s.availableMoney = s.availableMoney.Add(proceeds)

	hedge := rebalance.SelectLeader(s.readings(api))
	hedgePrice, err := api.CurrentPrice(hedge)
	if err != nil || !hedgePrice.IsPositive() || !api.CanTrade(hedge) {
		return
	}
	hedgeQty := proceeds.Div(hedgePrice).Round(0)
	if hedgeQty.IsPositive() && s.availableMoney.GreaterThan(hedgeQty.Mul(hedgePrice)) {
		logger.Info("hedge buy", zap.String("ticker", hedge), zap.String("qty", hedgeQty.String()), zap.String("price", hedgePrice.String()))
		api.Submit(hedge, hedgeQty, &hedgePrice)
		s.availableMoney = s.availableMoney.Sub(hedgeQty.Mul(hedgePrice))
	}
}

// recordMetrics records "usd": available money plus every asset and hedge
// position at today's close.
func (s *Strategy) recordMetrics(_ context.Context, api engine.Platform) error {
	total := s.availableMoney
	held := api.Positions()
	for _, ticker := range lo.Uniq(append(append([]string{}, s.params.Hedges...), s.params.Assets...)) {
		price, err := api.CurrentPrice(ticker)
		if err != nil {
			continue
		}
		total = total.Add(held[ticker].Mul(price))
	}
	api.Record("usd", total)
	api.Record("available_money", s.availableMoney)
	return nil
}
