package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rebalancer/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoRows = errors.New("CSV file has no data rows")

// CSVLoader reads daily candles from <dataDir>/<TICKER>.csv.
type CSVLoader struct {
	dataDir string
	logger  *zap.Logger
}

func NewCSVLoader(dataDir string, logger *zap.Logger) *CSVLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVLoader{dataDir: dataDir, logger: logger.Named("csv")}
}

// GetCandles returns the candles of ticker between start and end, inclusive,
// oldest first. Files only carry daily bars, so any other interval is rejected.
func (l *CSVLoader) GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	if interval != types.Day {
		return nil, fmt.Errorf("csv source only serves daily bars, got %q", interval)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath := filepath.Join(l.dataDir, ticker+".csv")
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: %w", filePath, ErrNoRows)
	}

	colIndex := parseHeader(records[0])
	for _, required := range []string{"date", "open", "close"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("%s: missing %q column", filePath, required)
		}
	}

	var candles []types.Candle
	skipped := 0
	for i := 1; i < len(records); i++ {
		candle, err := parseRow(records[i], colIndex, ticker)
		if err != nil {
			skipped++
			continue
		}
		if candle.Timestamp.Before(start) || candle.Timestamp.After(end) {
			continue
		}
		candles = append(candles, candle)
	}
	if skipped > 0 {
		l.logger.Warn("skipped unparseable rows", zap.String("file", filePath), zap.Int("rows", skipped))
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// parseHeader maps normalised column names to their index.
func parseHeader(header []string) map[string]int {
	colIndex := make(map[string]int)
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		name = strings.ReplaceAll(name, " ", "_")
		switch name {
		case "date", "timestamp":
			colIndex["date"] = i
		case "open", "high", "low", "close", "volume":
			colIndex[name] = i
		case "adj_close", "adjclose":
			colIndex["adj_close"] = i
		}
	}
	return colIndex
}

// parseRow prefers adj_close over close when both are present.
func parseRow(row []string, colIndex map[string]int, ticker string) (types.Candle, error) {
	candle := types.Candle{Ticker: ticker, Interval: types.Day}

	t, err := parseDate(field(row, colIndex, "date"))
	if err != nil {
		return candle, err
	}
	candle.Timestamp = t

	if candle.Open, err = decimal.NewFromString(field(row, colIndex, "open")); err != nil {
		return candle, fmt.Errorf("open: %w", err)
	}
	if candle.Close, err = decimal.NewFromString(field(row, colIndex, "close")); err != nil {
		return candle, fmt.Errorf("close: %w", err)
	}
	if adj, err := decimal.NewFromString(field(row, colIndex, "adj_close")); err == nil && adj.IsPositive() {
		candle.Close = adj
	}
	candle.High = optionalDecimal(field(row, colIndex, "high"), decimal.Max(candle.Open, candle.Close))
	candle.Low = optionalDecimal(field(row, colIndex, "low"), decimal.Min(candle.Open, candle.Close))
	candle.Volume = optionalDecimal(field(row, colIndex, "volume"), decimal.Zero)
	return candle, nil
}

func field(row []string, colIndex map[string]int, name string) string {
	idx, ok := colIndex[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func optionalDecimal(s string, fallback decimal.Decimal) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return v
}

func parseDate(dateStr string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"2006-01-02 15:04:05",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
