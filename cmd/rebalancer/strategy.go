package main

import (
	"fmt"

	"rebalancer/internal/config"
	"rebalancer/internal/engine"
	"rebalancer/strategies/buyhold"
	"rebalancer/strategies/rotation"
	"rebalancer/strategies/seasonal"
	"rebalancer/strategies/smatopup"
)

func buildStrategy(cfg *config.Config) (engine.Strategy, error) {
	s := cfg.Strategy
	margin := cfg.CashMargin()
	switch s.Type {
	case "buyhold":
		return buyhold.New(cfg.Targets(), margin), nil
	case "seasonal":
		return seasonal.New(
			s.Seasonal.Equity,
			s.Seasonal.Bond,
			s.Seasonal.Weight,
			s.Seasonal.SwapMonths,
			margin,
		), nil
	case "smatopup":
		return smatopup.New(cfg.Targets(), s.SMAWindow, margin), nil
	case "rotation":
		return rotation.New(rotation.Params{
			Targets:       cfg.Targets(),
			Assets:        cfg.Symbols(),
			Hedges:        s.Rotation.Hedges,
			MoveThreshold: s.Rotation.MoveThreshold,
			Lookback:      s.Rotation.Lookback,
			ShortWindow:   s.Rotation.ShortWindow,
			LongWindow:    s.Rotation.LongWindow,
			CashMargin:    margin,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy type %q", config.ErrInvalidConfig, s.Type)
	}
}
