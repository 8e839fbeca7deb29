package strategies

import (
	"rebalancer/internal/engine"
	"rebalancer/internal/rebalance"
	"rebalancer/types"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Quotes prices tickers at today's close. With smaWindow > 0 orders are
// sized at the moving average of the last smaWindow closes instead; an asset
// without enough history is quoted as halted. Tickers without any price are
// left out.
func Quotes(api engine.Platform, tickers []string, smaWindow int) map[string]types.Quote {
	quotes := make(map[string]types.Quote, len(tickers))
	for _, ticker := range tickers {
		price, err := api.CurrentPrice(ticker)
		if err != nil {
			api.Logger().Debug("no price", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		quote := types.Quote{Price: price, Halted: !api.CanTrade(ticker)}
		if smaWindow > 0 {
			closes, err := api.HistoricalCloses(ticker, smaWindow)
			sma, ok := rebalance.SMA(closes, smaWindow)
			if err != nil || !ok {
				quote.Halted = true
			}
			quote.Reference = sma
		}
		quotes[ticker] = quote
	}
	return quotes
}

// Submit sends every plan entry. With limit set, each order is a limit order
// at the entry's sizing price.
func Submit(api engine.Platform, plan types.RebalancePlan, limit bool) {
	for _, e := range plan.Entries {
		if limit {
			price := e.Price
			api.Submit(e.Ticker, e.Delta, &price)
			continue
		}
		api.Submit(e.Ticker, e.Delta, nil)
	}
}

// Rebalance plans the move from the current portfolio toward targets and
// submits it as market orders.
func Rebalance(api engine.Platform, rb *rebalance.Rebalancer, targets types.TargetAllocation) types.RebalancePlan {
	quotes := Quotes(api, heldAndTargeted(api.Snapshot(), targets), 0)
	plan := rb.Plan(api.Snapshot(), targets, quotes)
	Submit(api, plan, false)
	return plan
}

func heldAndTargeted(view types.PortfolioView, targets types.TargetAllocation) []string {
	return lo.Uniq(append(targets.Tickers(), lo.Keys(view.Positions)...))
}

// LogPositions writes one line per held position.
func LogPositions(api engine.Platform, msg string) {
	view := api.Snapshot()
	for _, ticker := range types.TargetAllocation(view.Holdings()).Tickers() {
		pos := view.Positions[ticker]
		api.Logger().Info(msg,
			zap.String("ticker", ticker),
			zap.String("qty", pos.Quantity.String()),
			zap.String("last_price", pos.LastPrice.String()),
		)
	}
	api.Logger().Info(msg, zap.String("cash", view.Cash.String()), zap.String("value", view.Value().String()))
}
