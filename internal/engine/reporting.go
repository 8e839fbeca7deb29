package engine

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"rebalancer/types"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

type Report struct {
	RunID string `json:"run_id"`

	// Meta / period info
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	TotalPeriod time.Duration `json:"total_period"`

	// Absolute performance
	StartValue decimal.Decimal `json:"start_value"`
	EndValue   decimal.Decimal `json:"end_value"`
	Deposits   decimal.Decimal `json:"deposits"`
	NetProfit  decimal.Decimal `json:"net_profit"`
	CAGR       decimal.Decimal `json:"cagr"`

	// Drawdown metrics
	MaxDrawdown        decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPercent decimal.Decimal `json:"max_drawdown_percent"`
	MaxDrawdownDays    time.Duration   `json:"max_drawdown_days"`

	// Risk-adjusted metrics
	SharpeRatio decimal.Decimal `json:"sharpe_ratio"`

	// Costs and activity
	TotalFees      decimal.Decimal `json:"total_fees"`
	TotalOrders    int             `json:"total_orders"`
	FilledOrders   int             `json:"filled_orders"`
	RejectedOrders int             `json:"rejected_orders"`
}

func printReport(w io.Writer, report *Report) {
	fmt.Fprintln(w, "===== Rebalancing Report =====")
	fmt.Fprintf(w, "Run ID:                %s\n", report.RunID)
	fmt.Fprintf(w, "Start Date:            %s\n", report.StartDate.Format("2006-01-02"))
	fmt.Fprintf(w, "End Date:              %s\n", report.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Total Period:          %d days\n", report.TotalPeriod/(24*time.Hour))

	fmt.Fprintln(w, "\n-- Absolute Performance --")
	fmt.Fprintf(w, "Start Value:           %s\n", report.StartValue.StringFixed(2))
	fmt.Fprintf(w, "End Value:             %s\n", report.EndValue.StringFixed(2))
	fmt.Fprintf(w, "Deposits:              %s\n", report.Deposits.StringFixed(2))
	fmt.Fprintf(w, "Net Profit:            %s\n", report.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "CAGR:                  %s\n", report.CAGR.StringFixed(4))

	fmt.Fprintln(w, "\n-- Drawdown Metrics --")
	fmt.Fprintf(w, "Max Drawdown:          %s\n", report.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(w, "Max Drawdown %%:        %s\n", report.MaxDrawdownPercent.StringFixed(4))
	fmt.Fprintf(w, "Max Drawdown Days:     %d\n", report.MaxDrawdownDays/(24*time.Hour))

	fmt.Fprintln(w, "\n-- Risk-Adjusted Metrics --")
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", report.SharpeRatio.StringFixed(4))

	fmt.Fprintln(w, "\n-- Costs --")
	fmt.Fprintf(w, "Total Fees:            %s\n", report.TotalFees.StringFixed(2))
	fmt.Fprintf(w, "Orders:                %d (%d filled, %d rejected)\n", report.TotalOrders, report.FilledOrders, report.RejectedOrders)

	fmt.Fprintln(w, "==============================")
}

func generateReport(runID string, results *portfolio, riskFree decimal.Decimal) *Report {
	snapshots := append([]types.PortfolioView(nil), results.snapshots...)
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Time.Before(snapshots[j].Time)
	})

	report := &Report{RunID: runID, Deposits: results.deposits}
	if len(snapshots) > 0 {
		first, last := snapshots[0], snapshots[len(snapshots)-1]
		report.StartDate = first.Time
		report.EndDate = last.Time
		report.TotalPeriod = last.Time.Sub(first.Time).Truncate(time.Hour * 24)
		report.StartValue = first.Value()
		report.EndValue = last.Value()
		report.NetProfit = report.EndValue.Sub(report.StartValue).Sub(depositsAfter(results.cashFlows, first.Time))
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		report.CAGR = calcCAGR(snapshots, results.cashFlows, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDays = calcDrawdownMetrics(snapshots, &wg)
	}()
	go func() {
		report.SharpeRatio = calcSharpeRatio(snapshots, results.cashFlows, riskFree, &wg)
	}()
	go func() {
		report.TotalOrders, report.FilledOrders, report.RejectedOrders, report.TotalFees = calcOrderStats(results.executions, &wg)
	}()
	wg.Wait()

	return report
}

// depositsAfter sums the cash flows strictly after t. A deposit made on the
// first snapshot day is already part of the start value.
func depositsAfter(flows []cashFlow, t time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, f := range flows {
		if f.Time.After(t) {
			total = total.Add(f.Amount)
		}
	}
	return total
}

func depositsBetween(flows []cashFlow, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, f := range flows {
		if f.Time.After(from) && !f.Time.After(to) {
			total = total.Add(f.Amount)
		}
	}
	return total
}

// calcCAGR compounds the start value into the end value net of any later
// deposits.
func calcCAGR(snapshots []types.PortfolioView, flows []cashFlow, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(snapshots) < 2 {
		return decimal.Zero
	}

	startSnap := snapshots[0]
	endSnap := snapshots[len(snapshots)-1]

	startVal := startSnap.Value()
	endVal := endSnap.Value().Sub(depositsAfter(flows, startSnap.Time))

	if !startVal.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}

	// 365.25 days accounts for leap years
	duration := endSnap.Time.Sub(startSnap.Time)
	if duration <= 0 {
		return decimal.Zero
	}
	years := duration.Hours() / (24.0 * 365.25)

	ratio := endVal.Div(startVal)
	if !ratio.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}

	cagrFloat := math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0
	return decimal.NewFromFloat(cagrFloat)
}

func calcDrawdownMetrics(
	snapshots []types.PortfolioView,
	wg *sync.WaitGroup,
) (decimal.Decimal, decimal.Decimal, time.Duration) {
	defer wg.Done()

	if len(snapshots) == 0 {
		return decimal.Zero, decimal.Zero, 0
	}

	peak := decimal.Zero
	var peakTime time.Time

	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for i, snap := range snapshots {
		equity := snap.Value()

		if i == 0 || equity.GreaterThan(peak) || peak.IsZero() {
			peak = equity
			peakTime = snap.Time
		}

		if peak.GreaterThan(decimal.Zero) {
			dd := peak.Sub(equity)

			if dd.GreaterThan(maxDD) {
				maxDD = dd
				maxDDPct = dd.Div(peak)
				maxDDDuration = snap.Time.Sub(peakTime)
			}
		}
	}

	return maxDD, maxDDPct, maxDDDuration
}

// calcSharpeRatio annualises the Sharpe ratio of monthly excess returns.
func calcSharpeRatio(
	snapshots []types.PortfolioView,
	flows []cashFlow,
	annualRiskFree decimal.Decimal,
	wg *sync.WaitGroup,
) decimal.Decimal {
	defer wg.Done()
	monthlyReturns := getMonthlyReturns(snapshots, flows)
	if len(monthlyReturns) < 2 {
		return decimal.Zero
	}

	// rf_monthly = (1 + rf_annual)^(1/12) - 1
	rfMonthly := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/12.0) - 1.0

	excess := make([]float64, 0, len(monthlyReturns))
	for _, r := range monthlyReturns {
		excess = append(excess, r.InexactFloat64()-rfMonthly)
	}

	mean, std := stat.MeanStdDev(excess, nil)
	if std == 0 || math.IsNaN(std) {
		return decimal.Zero
	}

	return decimal.NewFromFloat(mean / std * math.Sqrt(12.0))
}

// getMonthlyReturns expects snapshots sorted by time. Deposits made during a
// month are removed from that month's end value.
func getMonthlyReturns(snapshots []types.PortfolioView, flows []cashFlow) []decimal.Decimal {
	if len(snapshots) == 0 {
		return nil
	}

	var monthEnds []types.PortfolioView
	for i, snap := range snapshots {
		if i+1 == len(snapshots) || !sameMonth(snap.Time, snapshots[i+1].Time) {
			monthEnds = append(monthEnds, snap)
		}
	}
	if len(monthEnds) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(monthEnds)-1)
	prev := monthEnds[0]
	for _, curr := range monthEnds[1:] {
		prevVal := prev.Value()
		if !prevVal.GreaterThan(decimal.Zero) {
			prev = curr
			continue
		}
		currVal := curr.Value().Sub(depositsBetween(flows, prev.Time, curr.Time))
		returns = append(returns, currVal.Div(prevVal).Sub(decimal.NewFromInt(1)))
		prev = curr
	}
	return returns
}

func calcOrderStats(execs []*types.ExecutionReport, wg *sync.WaitGroup) (int, int, int, decimal.Decimal) {
	defer wg.Done()

	filled, rejected := 0, 0
	fees := decimal.Zero
	for _, er := range execs {
		switch er.Status {
		case types.OrderFilled:
			filled++
			for _, fill := range er.Fills {
				fees = fees.Add(fill.Fee)
			}
		case types.OrderRejected:
			rejected++
		}
	}
	return len(execs), filled, rejected, fees
}
