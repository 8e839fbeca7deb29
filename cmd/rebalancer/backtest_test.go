package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rebalancer/internal/config"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func writeDailyCSV(t *testing.T, dir, ticker, price string, start, end time.Time) {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,1000\n", day.Format("2006-01-02"), price, price, price, price)
	}
	if err := os.WriteFile(filepath.Join(dir, ticker+".csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunBacktest_BuyHoldFromCSV(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	dataDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.March, 29, 0, 0, 0, 0, time.UTC)
	writeDailyCSV(t, dataDir, "SPY", "100", start, end)
	writeDailyCSV(t, dataDir, "TLT", "50", start, end)

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
backtest:
  start_date: 2024-01-01
  end_date: 2024-03-29
  initial_capital: 10000
source:
  type: csv
  data_dir: %s
strategy:
  type: buyhold
  assets:
    - symbol: SPY
      weight: 0.5
    - symbol: TLT
      weight: 0.5
costs:
  preset: none
output:
  path: %s
  summary_file: summary.json
  executions_file: executions.csv
`, dataDir, outDir)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	if err := runBacktest(cmd, cfg, zap.NewNop()); err != nil {
		t.Fatalf("runBacktest() error = %v", err)
	}

	// Flat prices: the January rebalance and its top up invest 90% of the
	// cash twice, February spends the margin left over on one SPY share
	// (2 + 2 + 1 orders).
	for _, want := range []string{"Rebalancing Report", "End Value:             10000.00", "Orders:                5 (5 filled, 0 rejected)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "summary.json"))
	if err != nil {
		t.Fatalf("summary not written: %v", err)
	}
	var summary map[string]any
	if err := json.Unmarshal(raw, &summary); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "executions.csv")); err != nil {
		t.Errorf("executions not written: %v", err)
	}
}

func TestRunBacktest_MissingData(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
backtest:
  start_date: 2024-01-01
  end_date: 2024-03-29
  initial_capital: 10000
source:
  data_dir: %s
strategy:
  type: buyhold
  assets:
    - symbol: SPY
      weight: 1
`, t.TempDir())))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&bytes.Buffer{})
	if err := runBacktest(cmd, cfg, nil); err == nil {
		t.Errorf("runBacktest() error = nil, want missing file error")
	}
}
