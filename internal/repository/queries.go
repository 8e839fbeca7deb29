package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// dbtx is the subset of pgxpool.Pool and pgx.Tx the queries need.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

type assetRow struct {
	ID         int32
	Ticker     string
	Name       string
	Type       string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

const getAssetByTicker = `
SELECT id, ticker, name, type, created_at, modified_at
FROM assets
WHERE ticker = $1
LIMIT 1`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	var a assetRow
	err := q.db.QueryRow(ctx, getAssetByTicker, ticker).Scan(
		&a.ID,
		&a.Ticker,
		&a.Name,
		&a.Type,
		&a.CreatedAt,
		&a.ModifiedAt,
	)
	return a, err
}

type aggregatesParams struct {
	TimeBucket string
	AssetID    int32
	StartTime  time.Time
	EndTime    time.Time
}

type aggregateRow struct {
	Bucket  time.Time
	AssetID int32
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

// Candles are stored at the finest resolution and bucketed on read.
const getAggregates = `
SELECT time_bucket($1::interval, timestamp) AS bucket,
       asset_id,
       first(open, timestamp)  AS open,
       max(high)               AS high,
       min(low)                AS low,
       last(close, timestamp)  AS close,
       sum(volume)             AS volume
FROM candles
WHERE asset_id = $2
  AND timestamp >= $3
  AND timestamp <= $4
GROUP BY bucket, asset_id
ORDER BY bucket`

func (q *queries) GetAggregates(ctx context.Context, arg aggregatesParams) ([]aggregateRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.StartTime, arg.EndTime)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (aggregateRow, error) {
		var r aggregateRow
		err := row.Scan(&r.Bucket, &r.AssetID, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume)
		return r, err
	})
}

type latestClosesParams struct {
	AssetID int32
	Until   time.Time
	Limit   int32
}

type closeRow struct {
	Day   time.Time
	Close decimal.Decimal
}

// Newest first; callers reverse.
const getLatestDailyCloses = `
SELECT time_bucket('1 day'::interval, timestamp) AS day,
       last(close, timestamp) AS close
FROM candles
WHERE asset_id = $1
  AND timestamp <= $2
GROUP BY day
ORDER BY day DESC
LIMIT $3`

func (q *queries) GetLatestDailyCloses(ctx context.Context, arg latestClosesParams) ([]closeRow, error) {
	rows, err := q.db.Query(ctx, getLatestDailyCloses, arg.AssetID, arg.Until, arg.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (closeRow, error) {
		var r closeRow
		err := row.Scan(&r.Day, &r.Close)
		return r, err
	})
}
