package types

type Side string

type OrderType string

type OrderStatus string

const (
	OrderAccepted OrderStatus = "ORDER_ACCEPTED"
	OrderFilled   OrderStatus = "ORDER_FILLED"
	OrderRejected OrderStatus = "ORDER_REJECTED"

	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"

	TypeLimit  OrderType = "LIMIT"
	TypeMarket OrderType = "MARKET"
)
