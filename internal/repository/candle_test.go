package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"rebalancer/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var testInterval = types.Day
var startTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
var endTime = startTime.AddDate(0, 0, 5)

type mockCandlesRepository struct {
	sqlError error
	empty    bool
	gotArgs  *aggregatesParams
}

func TestDatabase_GetCandles(t *testing.T) {
	type args struct {
		ticker   string
		interval types.Interval
		start    time.Time
		end      time.Time
	}
	tests := []struct {
		name     string
		args     args
		want     []types.Candle
		sqlErr   error
		empty    bool
		assetErr error
		wantErr  error
	}{
		{"should throw ErrNoCandles on empty result", args{"SPY", testInterval, startTime, endTime}, nil, nil, true, nil, ErrNoCandles},
		{"should throw ErrNoCandles on no rows", args{"SPY", testInterval, startTime, endTime}, nil, pgx.ErrNoRows, false, nil, ErrNoCandles},
		{"should throw ErrIntervalNotSupported", args{"SPY", types.Month, startTime, endTime}, nil, nil, false, nil, ErrIntervalNotSupported},
		{"should throw ErrAssetNotFound", args{"SPY", testInterval, startTime, endTime}, nil, nil, false, pgx.ErrNoRows, ErrAssetNotFound},
		{"should return candles", args{"SPY", testInterval, startTime, endTime}, mockCandles(1, startTime, endTime), nil, false, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCandlesRepository{sqlError: tt.sqlErr, empty: tt.empty}
			db := &Database{
				assets:  mockAssetsRepository{sqlError: tt.assetErr},
				candles: repo,
			}
			got, err := db.GetCandles(context.Background(), tt.args.ticker, tt.args.interval, tt.args.start, tt.args.end)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GetCandles() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetCandles() unexpected error = %v", err)
			}
			if repo.gotArgs == nil || repo.gotArgs.TimeBucket != "1 day" || repo.gotArgs.AssetID != 1 {
				t.Errorf("GetAggregates() args = %+v, want 1 day bucket for asset 1", repo.gotArgs)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("GetCandles() returned %d candles, want %d", len(got), len(tt.want))
			}
			for i := 0; i < len(tt.want); i++ {
				if got[i].AssetId != tt.want[i].AssetId || got[i].Ticker != tt.args.ticker {
					t.Errorf("GetCandles() %s asset got = %v/%s, want %v/%s", got[i].Timestamp, got[i].AssetId, got[i].Ticker, tt.want[i].AssetId, tt.args.ticker)
					break
				}
				if got[i].Interval != tt.args.interval {
					t.Errorf("GetCandles() %s interval got = %v, want %v", got[i].Timestamp, got[i].Interval, tt.want[i].Interval)
					break
				}
				if !got[i].Timestamp.Equal(tt.want[i].Timestamp) || !got[i].High.Equal(tt.want[i].High) {
					t.Errorf("GetCandles() candle %d got = %s/%s, want %s/%s", i, got[i].Timestamp, got[i].High, tt.want[i].Timestamp, tt.want[i].High)
					break
				}
			}
		})
	}
}

func TestDatabase_GetCloses(t *testing.T) {
	db := &Database{
		assets:  mockAssetsRepository{},
		candles: &mockCandlesRepository{},
	}
	got, err := db.GetCloses(context.Background(), "SPY", 3, endTime)
	if err != nil {
		t.Fatalf("GetCloses() error = %v", err)
	}
	// endTime is day 5; the three latest closes are days 3, 4, 5 oldest first.
	want := []int64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("GetCloses() = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(decimal.NewFromInt(want[i])) {
			t.Fatalf("GetCloses() = %v, want %v", got, want)
		}
	}

	if got, err := db.GetCloses(context.Background(), "SPY", 0, endTime); err != nil || got != nil {
		t.Errorf("GetCloses(n=0) = %v, %v; want nil, nil", got, err)
	}

	empty := &Database{assets: mockAssetsRepository{}, candles: &mockCandlesRepository{empty: true}}
	if _, err := empty.GetCloses(context.Background(), "SPY", 3, endTime); !errors.Is(err, ErrNoCandles) {
		t.Errorf("GetCloses() error = %v, want ErrNoCandles", err)
	}
}

func (m *mockCandlesRepository) GetAggregates(_ context.Context, arg aggregatesParams) ([]aggregateRow, error) {
	m.gotArgs = &arg
	if m.sqlError != nil {
		return []aggregateRow{}, m.sqlError
	}
	if m.empty {
		return nil, nil
	}
	var candles []aggregateRow
	for i := arg.StartTime; i.Before(arg.EndTime); i = i.Add(types.IntervalToTime[testInterval]) {
		v := decimal.NewFromInt(i.UnixMilli())
		candles = append(candles, aggregateRow{
			Bucket:  i,
			AssetID: arg.AssetID,
			Open:    v,
			High:    v,
			Low:     v,
			Close:   v,
			Volume:  v,
		})
	}
	return candles, nil
}

// GetLatestDailyCloses returns one close per day counted from startTime,
// newest first, like the SQL query.
func (m *mockCandlesRepository) GetLatestDailyCloses(_ context.Context, arg latestClosesParams) ([]closeRow, error) {
	if m.sqlError != nil {
		return nil, m.sqlError
	}
	if m.empty {
		return nil, nil
	}
	var rows []closeRow
	for d := arg.Until; !d.Before(startTime) && len(rows) < int(arg.Limit); d = d.AddDate(0, 0, -1) {
		day := int64(d.Sub(startTime) / (24 * time.Hour))
		rows = append(rows, closeRow{Day: d, Close: decimal.NewFromInt(day)})
	}
	return rows, nil
}

func mockCandles(assetId int, start, end time.Time) []types.Candle {
	var candles []types.Candle
	for i := start; i.Before(end); i = i.Add(types.IntervalToTime[testInterval]) {
		v := decimal.NewFromInt(i.UnixMilli())
		candles = append(candles, types.Candle{
			Timestamp: i,
			Interval:  testInterval,
			AssetId:   assetId,
			Open:      v,
			High:      v,
			Low:       v,
			Close:     v,
			Volume:    v,
		})
	}
	return candles
}
