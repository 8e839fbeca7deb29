package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rebalancer/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var bucketToInterval = map[types.Interval]string{
	types.OneMinute: "1 minute",
	types.Hour:      "1 hour",
	types.Day:       "1 day",
	types.Week:      "1 week",
}

// GetCandles loads the bucketed candles of ticker between start and end,
// inclusive, oldest first.
func (db *Database) GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, ErrIntervalNotSupported
	}
	asset, err := db.GetAssetByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	args := aggregatesParams{
		TimeBucket: bucket,
		AssetID:    int32(asset.Id),
		StartTime:  start,
		EndTime:    end,
	}
	candles, err := db.candles.GetAggregates(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", ticker, ErrNoCandles)
		}
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoCandles)
	}
	return convertCandles(candles, interval, ticker), nil
}

// GetCloses returns up to n daily closes of ticker up to and including
// until, most recent last.
func (db *Database) GetCloses(ctx context.Context, ticker string, n int, until time.Time) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, nil
	}
	asset, err := db.GetAssetByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	rows, err := db.candles.GetLatestDailyCloses(ctx, latestClosesParams{
		AssetID: int32(asset.Id),
		Until:   until,
		Limit:   int32(n),
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoCandles)
	}
	closes := make([]decimal.Decimal, len(rows))
	for i, r := range rows {
		closes[len(rows)-1-i] = r.Close
	}
	return closes, nil
}

func convertCandles(candleDAOs []aggregateRow, interval types.Interval, ticker string) []types.Candle {
	var candles []types.Candle
	for _, dao := range candleDAOs {
		candles = append(candles, types.Candle{
			AssetId:   int(dao.AssetID),
			Ticker:    ticker,
			Open:      dao.Open,
			Close:     dao.Close,
			High:      dao.High,
			Low:       dao.Low,
			Volume:    dao.Volume,
			Interval:  interval,
			Timestamp: dao.Bucket,
		})
	}
	return candles
}
