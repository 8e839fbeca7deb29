package types

import (
	"time"
)

// ExecutionContext is what the broker sees when filling a batch of orders.
// Candles holds, per ticker, the bars from the submission day onwards.
type ExecutionContext struct {
	Candles   map[string][]Candle
	Portfolio PortfolioView
	CurTime   time.Time
}
