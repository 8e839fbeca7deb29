package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is always expressed with a positive Quantity; direction lives in Side.
// Price is the limit price for TypeLimit orders and zero for market orders.
type Order struct {
	Id        string
	Ticker    string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	OrderType OrderType
	Side      Side
	Reason    string
	CreatedAt time.Time
}

func NewOrder(
	id string,
	ticker string,
	price decimal.Decimal,
	quantity decimal.Decimal,
	orderType OrderType,
	side Side,
	reason string,
	createdAt time.Time,
) Order {
	return Order{
		Id:        id,
		Ticker:    ticker,
		Price:     price,
		Quantity:  quantity,
		OrderType: orderType,
		Side:      side,
		Reason:    reason,
		CreatedAt: createdAt,
	}
}

// SignedQuantity returns the quantity as a share delta: positive for buys, negative for sells.
func (o Order) SignedQuantity() decimal.Decimal {
	if o.Side == SideTypeSell {
		return o.Quantity.Neg()
	}
	return o.Quantity
}

// SideForDelta maps a signed share delta to an order side.
func SideForDelta(delta decimal.Decimal) Side {
	if delta.IsNegative() {
		return SideTypeSell
	}
	return SideTypeBuy
}
