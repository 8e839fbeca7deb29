package engine

import (
	"bytes"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"rebalancer/types"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

func TestCalcCAGR(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	yearLater := base.Add(time.Duration(365.25 * 24 * float64(time.Hour)))

	tests := []struct {
		name      string
		snapshots []types.PortfolioView
		flows     []cashFlow
		want      decimal.Decimal
	}{
		{
			name:      "fewer than two snapshots",
			snapshots: []types.PortfolioView{newPv(base, "1000")},
			want:      decimal.Zero,
		},
		{
			name:      "one year +10%",
			snapshots: []types.PortfolioView{newPv(base, "1000"), newPv(yearLater, "1100")},
			want:      decimal.RequireFromString("0.1"),
		},
		{
			name:      "later deposits are not growth",
			snapshots: []types.PortfolioView{newPv(base, "1000"), newPv(yearLater, "1600")},
			flows:     []cashFlow{{Time: base.AddDate(0, 6, 0), Amount: decimal.NewFromInt(500)}},
			want:      decimal.RequireFromString("0.1"),
		},
		{
			name:      "deposit on the first day is part of the start value",
			snapshots: []types.PortfolioView{newPv(base, "1000"), newPv(yearLater, "1100")},
			flows:     []cashFlow{{Time: base, Amount: decimal.NewFromInt(1000)}},
			want:      decimal.RequireFromString("0.1"),
		},
		{
			name:      "zero start value",
			snapshots: []types.PortfolioView{newPv(base, "0"), newPv(yearLater, "1100")},
			want:      decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			got := calcCAGR(tt.snapshots, tt.flows, &wg)
			if !got.Round(6).Equal(tt.want.Round(6)) {
				t.Fatalf("CAGR = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCalcMaxDrawdownMetrics(t *testing.T) {
	baseTime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		snapshots    []types.PortfolioView
		wantMaxDD    decimal.Decimal
		wantMaxDDPct decimal.Decimal
		wantMaxDDDur time.Duration
	}{
		{
			name: "simple drawdown 30%",
			snapshots: []types.PortfolioView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(0, 0, 1), "10000"),
				newPv(baseTime.AddDate(0, 0, 2), "7000"),
			},
			wantMaxDD:    decimal.RequireFromString("3000"),
			wantMaxDDPct: decimal.RequireFromString("0.3"),
			wantMaxDDDur: time.Hour * 24,
		},
		{
			name:         "no snapshots -> zero drawdown and duration",
			snapshots:    nil,
			wantMaxDD:    decimal.Zero,
			wantMaxDDPct: decimal.Zero,
			wantMaxDDDur: 0,
		},
		{
			name: "monotonic up -> zero drawdown",
			snapshots: []types.PortfolioView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(0, 0, 1), "1200"),
				newPv(baseTime.AddDate(0, 0, 2), "1500"),
			},
			wantMaxDD:    decimal.Zero,
			wantMaxDDPct: decimal.Zero,
			wantMaxDDDur: 0,
		},
		{
			name: "multiple peaks with deeper later drawdown",
			// peaks 1000 1500 1500 1600 1600, max dd 400 one day after the 1600 peak
			snapshots: []types.PortfolioView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(0, 0, 1), "1500"),
				newPv(baseTime.AddDate(0, 0, 2), "1300"),
				newPv(baseTime.AddDate(0, 0, 3), "1600"),
				newPv(baseTime.AddDate(0, 0, 4), "1200"),
			},
			wantMaxDD:    decimal.RequireFromString("400"),
			wantMaxDDPct: decimal.RequireFromString("0.25"),
			wantMaxDDDur: 24 * time.Hour,
		},
		{
			name: "flat then drop with no recovery",
			snapshots: []types.PortfolioView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(0, 0, 1), "1000"),
				newPv(baseTime.AddDate(0, 0, 2), "800"),
				newPv(baseTime.AddDate(0, 0, 3), "700"),
			},
			wantMaxDD:    decimal.RequireFromString("300"),
			wantMaxDDPct: decimal.RequireFromString("0.3"),
			wantMaxDDDur: 72 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)

			gotDD, gotDDPct, gotDur := calcDrawdownMetrics(tt.snapshots, &wg)

			if !gotDD.Equal(tt.wantMaxDD) {
				t.Fatalf("max drawdown = %s, want %s", gotDD.String(), tt.wantMaxDD.String())
			}
			if !gotDDPct.Equal(tt.wantMaxDDPct) {
				t.Fatalf("max drawdown pct = %s, want %s", gotDDPct.String(), tt.wantMaxDDPct.String())
			}
			if gotDur != tt.wantMaxDDDur {
				t.Fatalf("max drawdown duration = %s, want %s", gotDur, tt.wantMaxDDDur)
			}
		})
	}
}

func TestMonthlyReturnsFromSnapshots(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		snapshots []types.PortfolioView
		flows     []cashFlow
		want      []decimal.Decimal
	}{
		{
			name:      "no snapshots -> empty returns",
			snapshots: nil,
			want:      nil,
		},
		{
			name: "three consecutive months, +10%, 0%, -10%",
			snapshots: []types.PortfolioView{
				newPv(base, "1000"),
				newPv(base.AddDate(0, 1, 0), "1100"),
				newPv(base.AddDate(0, 2, 0), "1100"),
				newPv(base.AddDate(0, 3, 0), "990"),
			},
			want: []decimal.Decimal{
				decimal.RequireFromString("0.10"),
				decimal.RequireFromString("0.00"),
				decimal.RequireFromString("-0.10"),
			},
		},
		{
			name: "last snapshot of the month is the month end",
			snapshots: []types.PortfolioView{
				newPv(base, "1000"),
				newPv(base.AddDate(0, 1, 0), "1100"),
				newPv(base.AddDate(0, 1, 15), "1050"),
			},
			want: []decimal.Decimal{
				decimal.RequireFromString("0.05"),
			},
		},
		{
			name: "zero month end is skipped as a base",
			snapshots: []types.PortfolioView{
				newPv(base, "0"),
				newPv(base.AddDate(0, 1, 0), "1000"),
				newPv(base.AddDate(0, 2, 0), "1100"),
			},
			want: []decimal.Decimal{
				decimal.RequireFromString("0.10"),
			},
		},
		{
			name: "deposits inside the month are removed",
			snapshots: []types.PortfolioView{
				newPv(base, "1000"),
				newPv(base.AddDate(0, 1, 0), "1210"),
			},
			flows: []cashFlow{{Time: base.AddDate(0, 1, 0), Amount: decimal.NewFromInt(100)}},
			want: []decimal.Decimal{
				decimal.RequireFromString("0.11"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getMonthlyReturns(tt.snapshots, tt.flows)
			if len(got) != len(tt.want) {
				t.Fatalf("len(got)=%d, len(want)=%d, got=%v, want=%v", len(got), len(tt.want), got, tt.want)
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Fatalf("index %d: got=%s, want=%s", i, got[i].String(), tt.want[i].String())
				}
			}
		})
	}
}

func TestCalcSharpeRatio(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	values := []string{"1000", "1020", "1010", "1050", "1040", "1100"}
	var snapshots []types.PortfolioView
	for i, v := range values {
		snapshots = append(snapshots, newPv(base.AddDate(0, i, 0), v))
	}

	rf := 0.02
	rfMonthly := math.Pow(1+rf, 1.0/12) - 1
	var excess []float64
	for i := 1; i < len(values); i++ {
		prev := decimal.RequireFromString(values[i-1])
		curr := decimal.RequireFromString(values[i])
		excess = append(excess, curr.Div(prev).Sub(decimal.NewFromInt(1)).InexactFloat64()-rfMonthly)
	}
	var mean float64
	for _, x := range excess {
		mean += x
	}
	mean /= float64(len(excess))
	var ss float64
	for _, x := range excess {
		ss += (x - mean) * (x - mean)
	}
	want := mean / math.Sqrt(ss/float64(len(excess)-1)) * math.Sqrt(12)

	var wg sync.WaitGroup
	wg.Add(1)
	got := calcSharpeRatio(snapshots, nil, decimal.NewFromFloat(rf), &wg)
	if math.Abs(got.InexactFloat64()-want) > 1e-6 {
		t.Fatalf("sharpe = %s, want %f", got, want)
	}

	t.Run("fewer than two returns", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)
		got := calcSharpeRatio(snapshots[:2], nil, decimal.Zero, &wg)
		if !got.IsZero() {
			t.Fatalf("sharpe = %s, want 0", got)
		}
	})

	t.Run("flat portfolio", func(t *testing.T) {
		flat := []types.PortfolioView{
			newPv(base, "1000"),
			newPv(base.AddDate(0, 1, 0), "1000"),
			newPv(base.AddDate(0, 2, 0), "1000"),
			newPv(base.AddDate(0, 3, 0), "1000"),
		}
		var wg sync.WaitGroup
		wg.Add(1)
		got := calcSharpeRatio(flat, nil, decimal.Zero, &wg)
		if !got.IsZero() {
			t.Fatalf("sharpe = %s, want 0", got)
		}
	})
}

func TestGenerateReport(t *testing.T) {
	base := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	p := newPortfolio(decimal.NewFromInt(1000), false)
	p.snapshots = []types.PortfolioView{
		newPv(base.AddDate(0, 0, 2), "1300"),
		newPv(base, "1000"),
		newPv(base.AddDate(0, 0, 1), "900"),
	}
	p.deposits = decimal.NewFromInt(200)
	p.cashFlows = []cashFlow{{Time: base.AddDate(0, 0, 1), Amount: decimal.NewFromInt(200)}}
	p.executions = []*types.ExecutionReport{
		newExecutionReport("SPY", types.SideTypeBuy, newFill(base, "10", "1", "1.5")),
		{Ticker: "SPY", Side: types.SideTypeSell, Status: types.OrderRejected},
		newExecutionReport("TLT", types.SideTypeBuy, newFill(base, "10", "1", "2")),
	}

	report := generateReport("run-1", p, decimal.Zero)

	if !report.StartDate.Equal(base) || !report.EndDate.Equal(base.AddDate(0, 0, 2)) {
		t.Errorf("period = %s..%s, want sorted snapshots", report.StartDate, report.EndDate)
	}
	if !report.StartValue.Equal(decimal.NewFromInt(1000)) || !report.EndValue.Equal(decimal.NewFromInt(1300)) {
		t.Errorf("values = %s -> %s, want 1000 -> 1300", report.StartValue, report.EndValue)
	}
	if !report.NetProfit.Equal(decimal.NewFromInt(100)) {
		t.Errorf("net profit = %s, want 100", report.NetProfit)
	}
	if !report.MaxDrawdown.Equal(decimal.NewFromInt(100)) {
		t.Errorf("max drawdown = %s, want 100", report.MaxDrawdown)
	}
	if report.TotalOrders != 3 || report.FilledOrders != 2 || report.RejectedOrders != 1 {
		t.Errorf("orders = %d/%d/%d, want 3/2/1", report.TotalOrders, report.FilledOrders, report.RejectedOrders)
	}
	if !report.TotalFees.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("fees = %s, want 3.5", report.TotalFees)
	}

	var out bytes.Buffer
	printReport(&out, report)
	if !strings.Contains(out.String(), "run-1") || !strings.Contains(out.String(), "Net Profit:            100.00") {
		t.Errorf("printed report missing fields:\n%s", out.String())
	}

	var summary bytes.Buffer
	if err := writeSummaryJSON(&summary, report); err != nil {
		t.Fatalf("writeSummaryJSON() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(summary.Bytes(), &decoded); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	if decoded["run_id"] != "run-1" || decoded["net_profit"] != "100" {
		t.Errorf("summary = %v", decoded)
	}
}

func TestWriteExecutionsCSV(t *testing.T) {
	at := time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)
	execs := []*types.ExecutionReport{
		types.NewExecutionReport("r-1", "SPY", types.SideTypeBuy, types.OrderFilled,
			[]types.Fill{types.NewFill(at, decimal.NewFromInt(10), decimal.NewFromInt(3), decimal.Zero)},
			decimal.NewFromInt(3), decimal.NewFromInt(10), decimal.Zero, decimal.Zero, "", "rebalance", at),
	}
	var buf bytes.Buffer
	if err := writeExecutionsCSV(&buf, execs); err != nil {
		t.Fatalf("writeExecutionsCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + 1 row", len(lines))
	}
	want := "r-1,SPY,BUY,ORDER_FILLED,3,10,0,0,1,,rebalance,2021-01-05T00:00:00Z"
	if lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
}

// Helper functions
func newPv(t time.Time, cashStr string) types.PortfolioView {
	return types.PortfolioView{
		Time:      t,
		Cash:      decimal.RequireFromString(cashStr),
		Positions: map[string]types.PositionSnapshot{},
	}
}
