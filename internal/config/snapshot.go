package config

import (
	"fmt"
	"os"
	"sort"

	"rebalancer/internal/rebalance"
	"rebalancer/types"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Snapshot is a one-off rebalance request: current holdings, targets and
// quotes as of now.
type Snapshot struct {
	Cash        decimal.Decimal            `yaml:"cash"`
	SellAllowed bool                       `yaml:"sell_allowed"`
	CashMargin  *decimal.Decimal           `yaml:"cash_margin"`
	Positions   map[string]decimal.Decimal `yaml:"positions"`
	Targets     map[string]decimal.Decimal `yaml:"targets"`
	Fillers     []string                   `yaml:"fillers"`
	Quotes      map[string]QuoteConfig     `yaml:"quotes"`
}

type QuoteConfig struct {
	Price     decimal.Decimal `yaml:"price"`
	Reference decimal.Decimal `yaml:"reference"`
	Halted    bool            `yaml:"halted"`
}

func (q QuoteConfig) quote() types.Quote {
	return types.Quote{Price: q.Price, Reference: q.Reference, Halted: q.Halted}
}

func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return ParseSnapshot(data)
}

func ParseSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Snapshot) validate() error {
	if s.Cash.IsNegative() {
		return invalid("cash must not be negative")
	}
	if len(s.Targets) == 0 {
		return invalid("snapshot has no targets")
	}
	for ticker, w := range s.Targets {
		if w.IsNegative() || w.GreaterThan(one) {
			return invalid("target of %s must be in [0, 1], got %s", ticker, w)
		}
	}
	for ticker, q := range s.Quotes {
		if q.Price.IsNegative() || q.Reference.IsNegative() {
			return invalid("quote of %s must not be negative", ticker)
		}
	}
	if err := s.RebalanceConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (s *Snapshot) RebalanceConfig() rebalance.Config {
	cfg := rebalance.Config{SellAllowed: s.SellAllowed, CashMargin: rebalance.DefaultCashMargin}
	if s.CashMargin != nil {
		cfg.CashMargin = *s.CashMargin
	}
	return cfg
}

// View builds a portfolio view with positions marked at their quote price.
func (s *Snapshot) View() types.PortfolioView {
	view := types.PortfolioView{
		Cash:      s.Cash,
		Positions: make(map[string]types.PositionSnapshot, len(s.Positions)),
	}
	for ticker, qty := range s.Positions {
		view.Positions[ticker] = types.PositionSnapshot{
			Symbol:    ticker,
			Quantity:  qty,
			LastPrice: s.Quotes[ticker].Price,
		}
	}
	return view
}

// TargetAllocation returns the targets, topped up to one with the fillers
// when any are listed.
func (s *Snapshot) TargetAllocation() types.TargetAllocation {
	targets := make(types.TargetAllocation, len(s.Targets))
	for ticker, w := range s.Targets {
		targets[ticker] = w
	}
	if len(s.Fillers) > 0 {
		targets = rebalance.FillRemainder(targets, s.Fillers)
	}
	return targets
}

func (s *Snapshot) QuoteMap() map[string]types.Quote {
	quotes := make(map[string]types.Quote, len(s.Quotes))
	for ticker, q := range s.Quotes {
		quotes[ticker] = q.quote()
	}
	return quotes
}

// Tickers lists every ticker of the snapshot, sorted.
func (s *Snapshot) Tickers() []string {
	tickers := append(lo.Keys(s.Positions), lo.Keys(s.Targets)...)
	tickers = lo.Uniq(append(tickers, s.Fillers...))
	sort.Strings(tickers)
	return tickers
}

// SetQuote overrides the quote of ticker, e.g. with prices from the database.
func (s *Snapshot) SetQuote(ticker string, q types.Quote) {
	if s.Quotes == nil {
		s.Quotes = make(map[string]QuoteConfig)
	}
	s.Quotes[ticker] = QuoteConfig{Price: q.Price, Reference: q.Reference, Halted: q.Halted}
}
