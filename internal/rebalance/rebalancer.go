package rebalance

import (
	"errors"
	"fmt"
	"sort"

	"rebalancer/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidMargin = errors.New("cash margin must be in [0, 1)")

// DefaultCashMargin keeps 10% of cash unspent to absorb slippage between
// plan generation and execution.
var DefaultCashMargin = decimal.RequireFromString("0.1")

var one = decimal.NewFromInt(1)

type Config struct {
	// SellAllowed lets overweight positions be reduced. When false the
	// rebalancer only tops up underweight assets.
	SellAllowed bool
	// CashMargin is the fraction of cash left unspent.
	CashMargin decimal.Decimal
	// TargetPercent buys each underweight asset up to its own target only.
	// Buys are still scaled down to the budget but never spread over it.
	TargetPercent bool
}

func DefaultConfig() Config {
	return Config{CashMargin: DefaultCashMargin}
}

func (c Config) Validate() error {
	if c.CashMargin.IsNegative() || c.CashMargin.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: got %s", ErrInvalidMargin, c.CashMargin)
	}
	return nil
}

type Rebalancer struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Rebalancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rebalancer{cfg: cfg, logger: logger.Named("rebalancer")}
}

func (r *Rebalancer) Config() Config {
	return r.cfg
}

type leg struct {
	ticker       string
	price        decimal.Decimal
	held         decimal.Decimal
	contribution decimal.Decimal
	scaled       decimal.Decimal
	shares       decimal.Decimal
}

// Plan computes the share deltas that move view toward targets.
// It never fails: degenerate inputs shrink the plan, possibly to nothing.
func (r *Rebalancer) Plan(view types.PortfolioView, targets types.TargetAllocation, quotes map[string]types.Quote) types.RebalancePlan {
	plan := types.RebalancePlan{ResidualCash: view.Cash}

	value := PortfolioValue(view, quotes)
	if !value.IsPositive() {
		r.logger.Debug("empty plan, portfolio has no value", zap.Stringer("value", value))
		return plan
	}

	budget := view.Cash.Mul(one.Sub(r.cfg.CashMargin))
	if budget.IsNegative() {
		budget = decimal.Zero
	}

	var buys, sells []*leg
	for _, l := range r.legs(view, targets, quotes, value) {
		switch {
		case l.contribution.IsPositive():
			buys = append(buys, l)
		case l.contribution.IsNegative() && r.cfg.SellAllowed:
			sells = append(sells, l)
		}
	}

	entries := make([]types.PlanEntry, 0, len(buys)+len(sells))

	for _, l := range sells {
		qty := l.contribution.Abs().Div(l.price).Floor()
		if qty.GreaterThan(l.held) {
			qty = l.held
		}
		if !qty.IsPositive() {
			continue
		}
		entries = append(entries, types.PlanEntry{
			Ticker:       l.ticker,
			Delta:        qty.Neg(),
			Price:        l.price,
			Contribution: l.contribution,
		})
	}

	spent := allocateBuys(buys, budget, !r.cfg.TargetPercent)
	for _, l := range buys {
		if !l.shares.IsPositive() {
			continue
		}
		entries = append(entries, types.PlanEntry{
			Ticker:       l.ticker,
			Delta:        l.shares,
			Price:        l.price,
			Contribution: l.contribution,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Ticker < entries[j].Ticker })
	plan.Entries = entries
	plan.ResidualCash = view.Cash.Sub(spent)

	r.logger.Debug("rebalance plan",
		zap.Stringer("value", value),
		zap.Stringer("budget", budget),
		zap.Stringer("spent", spent),
		zap.Int("entries", len(entries)),
	)
	return plan
}

// legs returns one leg per tradable target, sorted by ticker.
func (r *Rebalancer) legs(view types.PortfolioView, targets types.TargetAllocation, quotes map[string]types.Quote, value decimal.Decimal) []*leg {
	legs := make([]*leg, 0, len(targets))
	for _, ticker := range targets.Tickers() {
		quote, ok := quotes[ticker]
		if !ok || quote.Halted {
			r.logger.Debug("skipping untradeable asset", zap.String("ticker", ticker))
			continue
		}
		price := quote.SizingPrice()
		if !price.IsPositive() || !quote.Price.IsPositive() {
			r.logger.Debug("skipping asset without a positive price", zap.String("ticker", ticker))
			continue
		}
		held := view.Quantity(ticker)
		desired := targets[ticker].Mul(value)
		current := held.Mul(quote.Price)
		legs = append(legs, &leg{
			ticker:       ticker,
			price:        price,
			held:         held,
			contribution: desired.Sub(current),
		})
	}
	return legs
}

// allocateBuys scales the buy legs so their contributions sum to budget,
// sizes them in whole shares and returns the cash spent. Without scaleUp a
// total below budget is kept as is.
func allocateBuys(buys []*leg, budget decimal.Decimal, scaleUp bool) decimal.Decimal {
	if len(buys) == 0 || !budget.IsPositive() {
		return decimal.Zero
	}

	desired := decimal.Zero
	for _, l := range buys {
		desired = desired.Add(l.contribution)
	}
	if !desired.IsPositive() {
		return decimal.Zero
	}

	limit := budget
	if !scaleUp && desired.LessThan(budget) {
		limit = desired
	}

	spent := decimal.Zero
	scaledTotal := decimal.Zero
	var largest *leg
	for _, l := range buys {
		l.scaled = l.contribution
		if !limit.Equal(desired) {
			l.scaled = l.contribution.Mul(limit).Div(desired)
		}
		scaledTotal = scaledTotal.Add(l.scaled)
		l.shares = l.scaled.Div(l.price).Floor()
		spent = spent.Add(l.shares.Mul(l.price))
		if largest == nil || l.scaled.GreaterThan(largest.scaled) {
			largest = l
		}
	}
	if scaledTotal.GreaterThan(limit) {
		scaledTotal = limit
	}

	leftover := scaledTotal.Sub(spent)
	if leftover.IsPositive() {
		extra := leftover.Div(largest.price).Floor()
		largest.shares = largest.shares.Add(extra)
		spent = spent.Add(extra.Mul(largest.price))
	}

	// Rounding in the proportional scale can leave spent a hair above budget.
	for spent.GreaterThan(budget) {
		l := mostExpensiveHeld(buys)
		if l == nil {
			break
		}
		l.shares = l.shares.Sub(one)
		spent = spent.Sub(l.price)
	}
	return spent
}

func mostExpensiveHeld(buys []*leg) *leg {
	var out *leg
	for _, l := range buys {
		if !l.shares.IsPositive() {
			continue
		}
		if out == nil || l.price.GreaterThan(out.price) {
			out = l
		}
	}
	return out
}

// PortfolioValue is cash plus every position marked at its quoted price,
// falling back to the position's last price when no positive quote exists.
func PortfolioValue(view types.PortfolioView, quotes map[string]types.Quote) decimal.Decimal {
	value := view.Cash
	for sym, pos := range view.Positions {
		price := pos.LastPrice
		if q, ok := quotes[sym]; ok && q.Price.IsPositive() {
			price = q.Price
		}
		if !price.IsPositive() {
			continue
		}
		value = value.Add(pos.Quantity.Mul(price))
	}
	return value
}

// Contributions returns the signed dollar gap between target and current value
// for every priced target asset.
func Contributions(view types.PortfolioView, targets types.TargetAllocation, quotes map[string]types.Quote) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(targets))
	value := PortfolioValue(view, quotes)
	if !value.IsPositive() {
		return out
	}
	for ticker, weight := range targets {
		q, ok := quotes[ticker]
		if !ok || !q.Price.IsPositive() {
			continue
		}
		out[ticker] = weight.Mul(value).Sub(view.Quantity(ticker).Mul(q.Price))
	}
	return out
}

// OffTarget sums the absolute contributions, the distance from the targets in dollars.
func OffTarget(view types.PortfolioView, targets types.TargetAllocation, quotes map[string]types.Quote) decimal.Decimal {
	total := decimal.Zero
	for _, c := range Contributions(view, targets, quotes) {
		total = total.Add(c.Abs())
	}
	return total
}

// FillRemainder spreads whatever fraction targets leave unallocated evenly
// across fillers, so the returned allocation sums to at least one.
func FillRemainder(targets types.TargetAllocation, fillers []string) types.TargetAllocation {
	out := make(types.TargetAllocation, len(targets)+len(fillers))
	for k, v := range targets {
		out[k] = v
	}
	if len(fillers) == 0 {
		return out
	}
	remainder := one.Sub(targets.Sum())
	if remainder.IsNegative() {
		remainder = decimal.Zero
	}
	each := remainder.Div(decimal.NewFromInt(int64(len(fillers))))
	for _, f := range fillers {
		out[f] = out[f].Add(each)
	}
	return out
}
