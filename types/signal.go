package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a strategy decision about one ticker before it is sized into orders.
type Signal struct {
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Strength  decimal.Decimal
	Reason    string
	CreatedAt time.Time
}

func NewSignal(
	ticker string,
	side Side,
	price decimal.Decimal,
	strength decimal.Decimal,
	reason string,
	createdAt time.Time,
) Signal {
	return Signal{
		Symbol:    ticker,
		Side:      side,
		Price:     price,
		Strength:  strength,
		Reason:    reason,
		CreatedAt: createdAt,
	}
}
