package engine

import (
	"time"

	"rebalancer/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FeeModel charges Rate of the trade value, clamped to [Min, Max].
// A zero Max means no cap.
type FeeModel struct {
	Rate decimal.Decimal
	Min  decimal.Decimal
	Max  decimal.Decimal
}

// IBKRFixedFees is the IBKR "Fixed - IB SmartRouting" schedule for USD
// denominated Netherlands stocks: 0.05% of trade value, USD 1.70 minimum,
// USD 39.00 maximum per order.
func IBKRFixedFees() FeeModel {
	return FeeModel{
		Rate: decimal.RequireFromString("0.0005"),
		Min:  decimal.RequireFromString("1.70"),
		Max:  decimal.RequireFromString("39"),
	}
}

func NoFees() FeeModel {
	return FeeModel{}
}

func (f FeeModel) Fee(tradeValue decimal.Decimal) decimal.Decimal {
	if tradeValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	fee := tradeValue.Mul(f.Rate)
	if fee.LessThan(f.Min) {
		fee = f.Min
	}
	if f.Max.IsPositive() && fee.GreaterThan(f.Max) {
		fee = f.Max
	}
	return fee
}

// SimBroker fills orders at the OPEN of the first candle after the
// submission day.
//
//   - No slippage
//   - Limit buys are rejected when the open is above the limit,
//     limit sells when the open is below it
//   - Buys are rejected when price * qty + fee exceeds the remaining cash
//   - Sells are rejected when they exceed the held quantity
//   - Does NOT mutate the portfolio directly; the engine applies reports
type SimBroker struct {
	fees   FeeModel
	logger *zap.Logger
}

func NewSimBroker(fees FeeModel, logger *zap.Logger) *SimBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimBroker{fees: fees, logger: logger.Named("broker")}
}

func (b *SimBroker) Execute(orders []types.Order, ctx types.ExecutionContext) []*types.ExecutionReport {
	var execReports []*types.ExecutionReport
	remainingCash := ctx.Portfolio.Cash
	held := ctx.Portfolio.Holdings()

	reject := func(order types.Order, reason string) {
		b.logger.Warn("order rejected",
			zap.String("order", order.Id),
			zap.String("ticker", order.Ticker),
			zap.String("side", string(order.Side)),
			zap.String("quantity", order.Quantity.String()),
			zap.String("reason", reason),
		)
		execReports = append(execReports, types.NewExecutionReport(
			order.Id,
			order.Ticker,
			order.Side,
			types.OrderRejected,
			[]types.Fill{},
			decimal.Zero,
			decimal.Zero,
			decimal.Zero,
			order.Quantity,
			reason,
			order.Reason,
			ctx.CurTime,
		))
	}

	for _, order := range orders {
		if order.Quantity.LessThanOrEqual(decimal.Zero) {
			reject(order, "Non-positive order quantity")
			continue
		}

		candles, ok := ctx.Candles[order.Ticker]
		if !ok || len(candles) == 0 {
			reject(order, "No market data for ticker")
			continue
		}

		nextCandle := getNextCandle(ctx.CurTime, candles)
		if nextCandle == nil {
			reject(order, "No future candle available for execution")
			continue
		}

		fillPrice := nextCandle.Open
		if order.OrderType == types.TypeLimit && order.Price.IsPositive() {
			if order.Side == types.SideTypeBuy && fillPrice.GreaterThan(order.Price) {
				reject(order, "Open above buy limit")
				continue
			}
			if order.Side == types.SideTypeSell && fillPrice.LessThan(order.Price) {
				reject(order, "Open below sell limit")
				continue
			}
		}

		tradeValue := fillPrice.Mul(order.Quantity)
		fee := b.fees.Fee(tradeValue)

		switch order.Side {
		case types.SideTypeBuy:
			totalCost := tradeValue.Add(fee)
			if totalCost.GreaterThan(remainingCash) {
				reject(order, "Not enough cash available for buy")
				continue
			}
			remainingCash = remainingCash.Sub(totalCost)
			held[order.Ticker] = held[order.Ticker].Add(order.Quantity)

		case types.SideTypeSell:
			if order.Quantity.GreaterThan(held[order.Ticker]) {
				reject(order, "Not enough shares held for sell")
				continue
			}
			if tradeValue.Add(remainingCash).LessThan(fee) {
				reject(order, "Sale proceeds do not cover the fee")
				continue
			}
			remainingCash = remainingCash.Add(tradeValue).Sub(fee)
			held[order.Ticker] = held[order.Ticker].Sub(order.Quantity)

		default:
			reject(order, "Unknown order side")
			continue
		}

		fill := types.NewFill(nextCandle.Timestamp, fillPrice, order.Quantity, fee)
		execReports = append(execReports, types.NewExecutionReport(
			order.Id,
			order.Ticker,
			order.Side,
			types.OrderFilled,
			[]types.Fill{fill},
			order.Quantity,
			fillPrice,
			fee,
			decimal.Zero,
			"",
			order.Reason,
			nextCandle.Timestamp,
		))
	}

	return execReports
}

// getNextCandle returns the first candle whose day is strictly after curTime's day.
func getNextCandle(curTime time.Time, candles []types.Candle) *types.Candle {
	y, m, d := curTime.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		if candles[i].Day().After(today) {
			return &candles[i]
		}
	}
	return nil
}
