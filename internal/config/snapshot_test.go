package config

import (
	"errors"
	"strings"
	"testing"

	"rebalancer/types"

	"github.com/shopspring/decimal"
)

const validSnapshot = `
cash: 1000
sell_allowed: true
cash_margin: 0.05
positions:
  SPY: 10
targets:
  SPY: 0.6
fillers: [TLT]
quotes:
  SPY: {price: 100, reference: 98}
  TLT: {price: 50, halted: true}
`

func TestParseSnapshot(t *testing.T) {
	snap, err := ParseSnapshot([]byte(validSnapshot))
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}

	view := snap.View()
	if !view.Value().Equal(decimal.NewFromInt(2000)) {
		t.Errorf("View().Value() = %s, want 2000", view.Value())
	}

	targets := snap.TargetAllocation()
	if !targets["TLT"].Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("TLT target = %s, want filler remainder 0.4", targets["TLT"])
	}

	quotes := snap.QuoteMap()
	if !quotes["SPY"].SizingPrice().Equal(decimal.NewFromInt(98)) || !quotes["TLT"].Halted {
		t.Errorf("QuoteMap() = %+v", quotes)
	}

	cfg := snap.RebalanceConfig()
	if !cfg.SellAllowed || !cfg.CashMargin.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("RebalanceConfig() = %+v", cfg)
	}
	if got := strings.Join(snap.Tickers(), ","); got != "SPY,TLT" {
		t.Errorf("Tickers() = %s, want SPY,TLT", got)
	}

	snap.SetQuote("SPY", types.Quote{Price: decimal.NewFromInt(110)})
	if !snap.View().Value().Equal(decimal.NewFromInt(2100)) {
		t.Errorf("View().Value() after SetQuote = %s, want 2100", snap.View().Value())
	}
}

func TestParseSnapshot_Invalid(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
	}{
		{"negative cash", "cash: 1000", "cash: -1"},
		{"no targets", "targets:\n  SPY: 0.6", "targets: {}"},
		{"target above one", "SPY: 0.6", "SPY: 1.5"},
		{"negative quote", "price: 50", "price: -50"},
		{"margin of one", "cash_margin: 0.05", "cash_margin: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(validSnapshot, tt.old, tt.new, 1)
			if data == validSnapshot {
				t.Fatalf("replacement %q not applied", tt.old)
			}
			if _, err := ParseSnapshot([]byte(data)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParseSnapshot() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParseSnapshot_KeepsDecimalPrecision(t *testing.T) {
	snap, err := ParseSnapshot([]byte(`
cash: 1234567890.123456789
targets:
  SPY: 0.333333333333333333
quotes:
  SPY: {price: 412.0000000001}
`))
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	if got := snap.View().Cash.String(); got != "1234567890.123456789" {
		t.Errorf("cash = %s, want 1234567890.123456789", got)
	}
	if got := snap.TargetAllocation()["SPY"].String(); got != "0.333333333333333333" {
		t.Errorf("SPY target = %s, want 0.333333333333333333", got)
	}
	if got := snap.QuoteMap()["SPY"].Price.String(); got != "412.0000000001" {
		t.Errorf("SPY price = %s, want 412.0000000001", got)
	}
}
