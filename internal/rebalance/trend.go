package rebalance

import (
	"github.com/shopspring/decimal"
)

// SMA is the simple moving average of the last window values.
// ok is false when there are fewer than window values.
func SMA(values []decimal.Decimal, window int) (decimal.Decimal, bool) {
	if window <= 0 || len(values) < window {
		return decimal.Zero, false
	}
	return sum(values[len(values)-window:]).Div(decimal.NewFromInt(int64(window))), true
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// TrendReading holds a short and a long moving average for one candidate.
type TrendReading struct {
	Ticker string
	Short  decimal.Decimal
	Long   decimal.Decimal
}

// NewTrendReading builds a reading from most-recent-last closes.
// ok is false when closes cannot fill the long window.
func NewTrendReading(ticker string, closes []decimal.Decimal, shortWindow, longWindow int) (TrendReading, bool) {
	short, ok := SMA(closes, shortWindow)
	if !ok {
		return TrendReading{Ticker: ticker}, false
	}
	long, ok := SMA(closes, longWindow)
	if !ok {
		return TrendReading{Ticker: ticker}, false
	}
	return TrendReading{Ticker: ticker, Short: short, Long: long}, true
}

func (t TrendReading) Rising() bool {
	return t.Short.GreaterThan(t.Long)
}

func (t TrendReading) Falling() bool {
	return t.Short.LessThan(t.Long)
}

// SelectLeader returns the first candidate in declaration order whose short
// average is above its long average, or the first candidate when none is.
func SelectLeader(readings []TrendReading) string {
	if len(readings) == 0 {
		return ""
	}
	for _, r := range readings {
		if r.Rising() {
			return r.Ticker
		}
	}
	return readings[0].Ticker
}

// SelectLaggard returns the first candidate whose short average is below its
// long average. Without one it falls back to the last candidate still held,
// then to the first candidate.
func SelectLaggard(readings []TrendReading, held map[string]decimal.Decimal) string {
	if len(readings) == 0 {
		return ""
	}
	fallback := readings[0].Ticker
	for _, r := range readings {
		if r.Falling() {
			return r.Ticker
		}
		if held[r.Ticker].IsPositive() {
			fallback = r.Ticker
		}
	}
	return fallback
}

// MeanPercentChange is the average day-over-day fractional change of closes,
// oldest first. ok is false with fewer than two closes or a zero close.
func MeanPercentChange(closes []decimal.Decimal) (decimal.Decimal, bool) {
	if len(closes) < 2 {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for i := 1; i < len(closes); i++ {
		if closes[i-1].IsZero() {
			return decimal.Zero, false
		}
		total = total.Add(closes[i].Sub(closes[i-1]).Div(closes[i-1]))
	}
	return total.Div(decimal.NewFromInt(int64(len(closes) - 1))), true
}
