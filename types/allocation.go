package types

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TargetAllocation maps a ticker to its target fraction of total portfolio value.
// Fractions need not sum to one; the remainder stays in cash.
type TargetAllocation map[string]decimal.Decimal

// Tickers returns the allocation keys in sorted order.
func (t TargetAllocation) Tickers() []string {
	out := make([]string, 0, len(t))
	for ticker := range t {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// Sum adds up all target fractions.
func (t TargetAllocation) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, w := range t {
		sum = sum.Add(w)
	}
	return sum
}

// Quote is the per-cycle price information for one ticker.
// Price marks holdings to market; Reference is the price orders are sized at
// (spot or a moving average). A zero Reference means "use Price".
// Halted marks an asset that cannot be traded this cycle.
type Quote struct {
	Price     decimal.Decimal
	Reference decimal.Decimal
	Halted    bool
}

// SizingPrice returns Reference when set, Price otherwise.
func (q Quote) SizingPrice() decimal.Decimal {
	if q.Reference.IsPositive() {
		return q.Reference
	}
	return q.Price
}

// PlanEntry is one signed share delta of a rebalance plan.
type PlanEntry struct {
	Ticker       string          `json:"ticker"`
	Delta        decimal.Decimal `json:"delta"`
	Price        decimal.Decimal `json:"price"`
	Contribution decimal.Decimal `json:"contribution"`
}

// Notional is |Delta| * Price.
func (e PlanEntry) Notional() decimal.Decimal {
	return e.Delta.Abs().Mul(e.Price)
}

// RebalancePlan is computed once per rebalance and consumed immediately.
type RebalancePlan struct {
	Entries      []PlanEntry     `json:"entries"`
	ResidualCash decimal.Decimal `json:"residualCash"`
}

// IsEmpty reports whether the plan has no orders.
func (p RebalancePlan) IsEmpty() bool {
	return len(p.Entries) == 0
}

// Delta returns the planned share change for ticker, zero when absent.
func (p RebalancePlan) Delta(ticker string) decimal.Decimal {
	for _, e := range p.Entries {
		if e.Ticker == ticker {
			return e.Delta
		}
	}
	return decimal.Zero
}

// BuySpend is the cash the plan's buy entries would consume at their sizing prices.
func (p RebalancePlan) BuySpend() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.Entries {
		if e.Delta.IsPositive() {
			total = total.Add(e.Notional())
		}
	}
	return total
}
