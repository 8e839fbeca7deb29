// Package strategytest provides an in-memory engine.Platform for strategy tests.
package strategytest

import (
	"fmt"
	"time"

	"rebalancer/internal/engine"
	"rebalancer/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Order is one call to Submit.
type Order struct {
	Ticker   string
	Quantity decimal.Decimal
	Limit    *decimal.Decimal
}

// Platform serves closes from History (most recent last, the last close is
// today's) and records submitted orders and metrics. Nothing is filled.
type Platform struct {
	Time     time.Time
	History  map[string][]decimal.Decimal
	Halted   map[string]bool
	CashBal  decimal.Decimal
	Holdings map[string]decimal.Decimal
	Orders   []Order
	Metrics  map[string]decimal.Decimal
	Log      *zap.Logger
}

var _ engine.Platform = (*Platform)(nil)

func New(at time.Time, cash decimal.Decimal) *Platform {
	return &Platform{
		Time:     at,
		History:  make(map[string][]decimal.Decimal),
		Halted:   make(map[string]bool),
		CashBal:  cash,
		Holdings: make(map[string]decimal.Decimal),
		Metrics:  make(map[string]decimal.Decimal),
		Log:      zap.NewNop(),
	}
}

// SetCloses replaces the close history of ticker with the given values.
func (p *Platform) SetCloses(ticker string, closes ...string) *Platform {
	values := make([]decimal.Decimal, len(closes))
	for i, c := range closes {
		values[i] = decimal.RequireFromString(c)
	}
	p.History[ticker] = values
	return p
}

func (p *Platform) Hold(ticker, qty string) *Platform {
	p.Holdings[ticker] = decimal.RequireFromString(qty)
	return p
}

// Fill applies the recorded orders at today's close and clears them, so a
// test can step a strategy through several calls.
func (p *Platform) Fill() {
	for _, o := range p.Orders {
		price, err := p.CurrentPrice(o.Ticker)
		if err != nil {
			continue
		}
		if o.Limit != nil {
			price = *o.Limit
		}
		p.CashBal = p.CashBal.Sub(o.Quantity.Mul(price))
		p.Holdings[o.Ticker] = p.Holdings[o.Ticker].Add(o.Quantity)
		if p.Holdings[o.Ticker].IsZero() {
			delete(p.Holdings, o.Ticker)
		}
	}
	p.Orders = nil
}

// Ordered sums the submitted quantity for ticker.
func (p *Platform) Ordered(ticker string) decimal.Decimal {
	total := decimal.Zero
	for _, o := range p.Orders {
		if o.Ticker == ticker {
			total = total.Add(o.Quantity)
		}
	}
	return total
}

func (p *Platform) Now() time.Time { return p.Time }

func (p *Platform) Logger() *zap.Logger { return p.Log }

func (p *Platform) Record(name string, value decimal.Decimal) {
	p.Metrics[name] = value
}

func (p *Platform) CurrentPrice(ticker string) (decimal.Decimal, error) {
	closes := p.History[ticker]
	if len(closes) == 0 {
		return decimal.Zero, fmt.Errorf("%s: %w", ticker, engine.ErrNoPrice)
	}
	return closes[len(closes)-1], nil
}

func (p *Platform) HistoricalCloses(ticker string, window int) ([]decimal.Decimal, error) {
	if window <= 0 {
		return nil, engine.ErrInvalidWindow
	}
	closes, ok := p.History[ticker]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ticker, engine.ErrUnknownTicker)
	}
	if len(closes) > window {
		closes = closes[len(closes)-window:]
	}
	return closes, nil
}

func (p *Platform) CanTrade(ticker string) bool {
	return len(p.History[ticker]) > 0 && !p.Halted[ticker]
}

func (p *Platform) Cash() decimal.Decimal { return p.CashBal }

func (p *Platform) Positions() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(p.Holdings))
	for k, v := range p.Holdings {
		out[k] = v
	}
	return out
}

func (p *Platform) Snapshot() types.PortfolioView {
	view := types.PortfolioView{
		Cash:      p.CashBal,
		Positions: make(map[string]types.PositionSnapshot, len(p.Holdings)),
		Time:      p.Time,
	}
	for ticker, qty := range p.Holdings {
		price, _ := p.CurrentPrice(ticker)
		view.Positions[ticker] = types.PositionSnapshot{Symbol: ticker, Quantity: qty, LastPrice: price}
	}
	return view
}

func (p *Platform) Submit(ticker string, quantity decimal.Decimal, limit *decimal.Decimal) {
	if quantity.IsZero() {
		return
	}
	p.Orders = append(p.Orders, Order{Ticker: ticker, Quantity: quantity, Limit: limit})
}
