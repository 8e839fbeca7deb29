package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExecutionReport struct {
	OrderId        string
	Ticker         string
	Side           Side
	Status         OrderStatus
	Fills          []Fill
	TotalFilledQty decimal.Decimal
	AvgFillPrice   decimal.Decimal
	TotalFees      decimal.Decimal
	RemainingQty   decimal.Decimal
	RejectReason   string
	OrderReason    string
	ReportTime     time.Time
}

type Fill struct {
	Time     time.Time
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Fee      decimal.Decimal
}

func NewFill(time time.Time, price, qty, fee decimal.Decimal) Fill {
	return Fill{
		Time:     time,
		Price:    price,
		Quantity: qty,
		Fee:      fee,
	}
}

func NewExecutionReport(
	orderID string,
	ticker string,
	side Side,
	status OrderStatus,
	fills []Fill,
	totalFilledQty decimal.Decimal,
	avgFillPrice decimal.Decimal,
	totalFees decimal.Decimal,
	remainingQty decimal.Decimal,
	rejectReason string,
	orderReason string,
	reportTime time.Time,
) *ExecutionReport {
	return &ExecutionReport{
		OrderId:        orderID,
		Ticker:         ticker,
		Side:           side,
		Status:         status,
		Fills:          fills,
		TotalFilledQty: totalFilledQty,
		AvgFillPrice:   avgFillPrice,
		TotalFees:      totalFees,
		RemainingQty:   remainingQty,
		RejectReason:   rejectReason,
		OrderReason:    orderReason,
		ReportTime:     reportTime,
	}
}
