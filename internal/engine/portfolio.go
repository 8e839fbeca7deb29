package engine

import (
	"errors"
	"sort"
	"time"

	"rebalancer/types"

	"github.com/shopspring/decimal"
)

var UnknownSideErr = errors.New("unknown fill side")
var InsufficientBalanceErr = errors.New("insufficient balance when applying order fill")
var ShortSellNotAllowedErr = errors.New("short sell not allowed, broker sold more stock than in portfolio")

type portfolio struct {
	cash              decimal.Decimal
	deposits          decimal.Decimal
	cashFlows         []cashFlow
	positions         map[string]*Position
	executions        []*types.ExecutionReport
	snapshots         []types.PortfolioView
	allowShortSelling bool
}

type cashFlow struct {
	Time   time.Time
	Amount decimal.Decimal
}

type Position struct {
	Symbol    string
	Quantity  decimal.Decimal
	AvgCost   decimal.Decimal
	LastPrice decimal.Decimal
}

func newPortfolio(initialCash decimal.Decimal, allowShortSelling bool) *portfolio {
	return &portfolio{
		cash:              initialCash,
		positions:         make(map[string]*Position),
		allowShortSelling: allowShortSelling,
	}
}

func (p *portfolio) GetPortfolioSnapshot(curTime time.Time) types.PortfolioView {
	view := types.PortfolioView{
		Cash:      p.cash,
		Positions: make(map[string]types.PositionSnapshot),
		Time:      curTime,
	}

	for sym, pos := range p.positions {
		if pos.Quantity.IsZero() {
			continue
		}
		view.Positions[sym] = types.PositionSnapshot{
			Symbol:        pos.Symbol,
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgCost,
			LastPrice:     pos.LastPrice,
		}
	}
	return view
}

// deposit adds external cash such as a periodic contribution.
func (p *portfolio) deposit(amount decimal.Decimal, at time.Time) {
	if !amount.IsPositive() {
		return
	}
	p.cash = p.cash.Add(amount)
	p.deposits = p.deposits.Add(amount)
	p.cashFlows = append(p.cashFlows, cashFlow{Time: at, Amount: amount})
}

// markToMarket updates LastPrice for every held ticker present in prices.
func (p *portfolio) markToMarket(prices map[string]decimal.Decimal) {
	for sym, pos := range p.positions {
		if price, ok := prices[sym]; ok && price.IsPositive() {
			pos.LastPrice = price
		}
	}
}

func (p *portfolio) takeSnapshot(curTime time.Time) {
	p.snapshots = append(p.snapshots, p.GetPortfolioSnapshot(curTime))
}

// processExecutions applies filled reports to cash and positions. Every
// report, filled or not, is kept for reporting.
func (p *portfolio) processExecutions(execs []*types.ExecutionReport) error {
	if len(execs) == 0 {
		return nil
	}
	sort.SliceStable(execs, func(i, j int) bool { return execs[i].ReportTime.Before(execs[j].ReportTime) })
	for _, er := range execs {
		p.executions = append(p.executions, er)
		if er.Status != types.OrderFilled || len(er.Fills) == 0 {
			continue
		}
		if er.Side != types.SideTypeBuy && er.Side != types.SideTypeSell {
			return UnknownSideErr
		}

		fills := append([]types.Fill(nil), er.Fills...)
		sort.Slice(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })

		pos := p.positions[er.Ticker]
		if pos == nil {
			pos = &Position{Symbol: er.Ticker}
		}

		for _, fill := range fills {
			quantity := fill.Quantity
			if er.Side == types.SideTypeSell {
				quantity = quantity.Neg()
			}

			newCash := p.cash.Sub(fill.Price.Mul(quantity)).Sub(fill.Fee)
			if newCash.IsNegative() {
				return InsufficientBalanceErr
			}

			oldQty := pos.Quantity
			newQty := oldQty.Add(quantity)
			if !p.allowShortSelling && newQty.IsNegative() {
				return ShortSellNotAllowedErr
			}
			p.cash = newCash

			switch {
			case sameSide(oldQty, newQty):
				absOld := oldQty.Abs()
				absAdd := quantity.Abs()
				if newQty.Abs().GreaterThan(absOld) && !absAdd.IsZero() {
					pos.AvgCost = weightedAvg(pos.AvgCost, absOld, fill.Price, absAdd)
				}
				pos.Quantity = newQty

			case oldQty.IsZero():
				pos.Quantity = newQty
				pos.AvgCost = fill.Price

			case newQty.IsZero():
				pos.Quantity = decimal.Zero
				pos.AvgCost = decimal.Zero

			default:
				pos.Quantity = newQty
				pos.AvgCost = fill.Price
			}

			pos.LastPrice = fill.Price
		}
		if pos.Quantity.IsZero() {
			delete(p.positions, er.Ticker)
		} else {
			p.positions[er.Ticker] = pos
		}
	}
	return nil
}

func sameSide(a, b decimal.Decimal) bool {
	return (a.IsPositive() && b.IsPositive()) || (a.IsNegative() && b.IsNegative())
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}
