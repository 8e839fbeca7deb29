package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioView is an immutable snapshot of cash and holdings.
type PortfolioView struct {
	Cash      decimal.Decimal
	Positions map[string]PositionSnapshot
	Time      time.Time
}

type PositionSnapshot struct {
	Symbol        string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	LastPrice     decimal.Decimal
}

// Value is cash plus every position marked at its last price.
func (v PortfolioView) Value() decimal.Decimal {
	value := v.Cash
	for _, pos := range v.Positions {
		value = value.Add(pos.Quantity.Mul(pos.LastPrice))
	}
	return value
}

// Quantity returns the held quantity for ticker, zero when flat.
func (v PortfolioView) Quantity(ticker string) decimal.Decimal {
	if pos, ok := v.Positions[ticker]; ok {
		return pos.Quantity
	}
	return decimal.Zero
}

// Holdings flattens the positions to ticker -> quantity.
func (v PortfolioView) Holdings() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(v.Positions))
	for sym, pos := range v.Positions {
		out[sym] = pos.Quantity
	}
	return out
}
