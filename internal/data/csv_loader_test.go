package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rebalancer/types"

	"github.com/shopspring/decimal"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestCSVLoader_GetCandles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "SPY.csv", `Date,Open,High,Low,Close,Adj Close,Volume
2024-01-04,101,102,100,101.5,100.5,1000
2024-01-02,99,100,98,99.5,,900
2024-01-03,100,101,99,100.5,99.8,800
not-a-date,1,1,1,1,1,1
2024-01-05,102,103,101,102.5,101.9,700
`)
	writeFile(t, dir, "TLT.csv", "date,open,close\n")
	writeFile(t, dir, "GLD.csv", "date,high,low\n2024-01-02,1,1\n")

	loader := NewCSVLoader(dir, nil)
	start := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.January, 4, 0, 0, 0, 0, time.UTC)

	candles, err := loader.GetCandles(context.Background(), "SPY", types.Day, start, end)
	if err != nil {
		t.Fatalf("GetCandles() error = %v", err)
	}
	wantCloses := []string{"99.5", "99.8", "100.5"}
	if len(candles) != len(wantCloses) {
		t.Fatalf("GetCandles() returned %d candles, want %d", len(candles), len(wantCloses))
	}
	for i, want := range wantCloses {
		if !candles[i].Close.Equal(decimal.RequireFromString(want)) {
			t.Errorf("candle %d close = %s, want %s", i, candles[i].Close, want)
		}
		if candles[i].Ticker != "SPY" || candles[i].Interval != types.Day {
			t.Errorf("candle %d = %+v, want SPY daily", i, candles[i])
		}
		if i > 0 && !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			t.Errorf("candles not sorted at %d", i)
		}
	}

	tests := []struct {
		name     string
		ticker   string
		interval types.Interval
		wantErr  error
	}{
		{"missing file", "QQQ", types.Day, os.ErrNotExist},
		{"header only", "TLT", types.Day, ErrNoRows},
		{"missing columns", "GLD", types.Day, nil},
		{"intraday interval", "SPY", types.Hour, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.GetCandles(context.Background(), tt.ticker, tt.interval, start, end)
			if err == nil {
				t.Fatalf("GetCandles() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("GetCandles() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseHeader(t *testing.T) {
	got := parseHeader([]string{" Timestamp", "OPEN", "Adj Close", "close", "ignored"})
	want := map[string]int{"date": 0, "open": 1, "adj_close": 2, "close": 3}
	if len(got) != len(want) {
		t.Fatalf("parseHeader() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("parseHeader()[%q] = %d, want %d", k, got[k], v)
		}
	}
}
