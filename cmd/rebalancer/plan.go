package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"rebalancer/internal/config"
	"rebalancer/internal/rebalance"
	"rebalancer/internal/repository"
	"rebalancer/types"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// closesSource serves recent daily closes, most recent last.
type closesSource interface {
	GetCloses(ctx context.Context, ticker string, n int, until time.Time) ([]decimal.Decimal, error)
}

type planOutput struct {
	Value       decimal.Decimal            `json:"value"`
	Cash        decimal.Decimal            `json:"cash"`
	OffTarget   decimal.Decimal            `json:"offTarget"`
	Targets     types.TargetAllocation     `json:"targets"`
	Plan        types.RebalancePlan        `json:"plan"`
	Quotes      map[string]decimal.Decimal `json:"quotes"`
	BuySpend    decimal.Decimal            `json:"buySpend"`
	SellAllowed bool                       `json:"sellAllowed"`
	CashMargin  decimal.Decimal            `json:"cashMargin"`
}

func newPlanCmd(newLogger func() (*zap.Logger, error)) *cobra.Command {
	var (
		snapshotPath string
		asJSON       bool
		fromDB       bool
		databaseURL  string
		smaWindow    int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the orders that move a portfolio snapshot toward its targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			snap, err := config.LoadSnapshot(snapshotPath)
			if err != nil {
				return err
			}

			if fromDB {
				if databaseURL == "" {
					_ = godotenv.Load()
					databaseURL = os.Getenv("DATABASE_URL")
				}
				if databaseURL == "" {
					return fmt.Errorf("%w: --from-db needs --database-url or DATABASE_URL", config.ErrInvalidConfig)
				}
				db, err := repository.NewDatabase(cmd.Context(), databaseURL)
				if err != nil {
					return fmt.Errorf("connect to price store: %w", err)
				}
				defer db.Close()
				if err := loadQuotes(cmd.Context(), db, snap, smaWindow, time.Now()); err != nil {
					return err
				}
			}

			return runPlan(cmd.OutOrStdout(), snap, asJSON, logger)
		},
	}
	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "snapshot.yaml", "path to the portfolio snapshot")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "quote tickers from the price store instead of the snapshot")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "price store URL (defaults to DATABASE_URL)")
	cmd.Flags().IntVar(&smaWindow, "sma", 0, "size orders at the moving average of this many closes")
	return cmd
}

// loadQuotes replaces the snapshot quotes with the latest stored closes.
// With smaWindow > 0 the reference price is the moving average.
func loadQuotes(ctx context.Context, src closesSource, snap *config.Snapshot, smaWindow int, until time.Time) error {
	n := 1
	if smaWindow > n {
		n = smaWindow
	}
	for _, ticker := range snap.Tickers() {
		closes, err := src.GetCloses(ctx, ticker, n, until)
		if err != nil {
			return fmt.Errorf("quote %s: %w", ticker, err)
		}
		if len(closes) == 0 {
			return fmt.Errorf("quote %s: %w", ticker, repository.ErrNoCandles)
		}
		q := types.Quote{Price: closes[len(closes)-1]}
		if smaWindow > 0 {
			sma, ok := rebalance.SMA(closes, smaWindow)
			if !ok {
				q.Halted = true
			}
			q.Reference = sma
		}
		snap.SetQuote(ticker, q)
	}
	return nil
}

func runPlan(w io.Writer, snap *config.Snapshot, asJSON bool, logger *zap.Logger) error {
	cfg := snap.RebalanceConfig()
	view := snap.View()
	targets := snap.TargetAllocation()
	quotes := snap.QuoteMap()

	plan := rebalance.New(cfg, logger).Plan(view, targets, quotes)

	if asJSON {
		out := planOutput{
			Value:       rebalance.PortfolioValue(view, quotes),
			Cash:        view.Cash,
			OffTarget:   rebalance.OffTarget(view, targets, quotes),
			Targets:     targets,
			Plan:        plan,
			Quotes:      make(map[string]decimal.Decimal, len(quotes)),
			BuySpend:    plan.BuySpend(),
			SellAllowed: cfg.SellAllowed,
			CashMargin:  cfg.CashMargin,
		}
		for ticker, q := range quotes {
			out.Quotes[ticker] = q.SizingPrice()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printPlan(w, view, targets, quotes, plan)
}

func printPlan(w io.Writer, view types.PortfolioView, targets types.TargetAllocation, quotes map[string]types.Quote, plan types.RebalancePlan) error {
	fmt.Fprintf(w, "Portfolio value: %s\n", rebalance.PortfolioValue(view, quotes).StringFixed(2))
	fmt.Fprintf(w, "Cash:            %s\n", view.Cash.StringFixed(2))
	fmt.Fprintf(w, "Off target:      %s\n\n", rebalance.OffTarget(view, targets, quotes).StringFixed(2))

	if plan.IsEmpty() {
		fmt.Fprintln(w, "Nothing to trade.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Ticker\tSide\tShares\tPrice\tNotional\tGap\t")
	for _, e := range plan.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			e.Ticker,
			types.SideForDelta(e.Delta),
			e.Delta.Abs().String(),
			e.Price.StringFixed(2),
			e.Notional().StringFixed(2),
			e.Contribution.StringFixed(2),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nBuy spend:       %s\n", plan.BuySpend().StringFixed(2))
	fmt.Fprintf(w, "Residual cash:   %s\n", plan.ResidualCash.StringFixed(2))
	return nil
}
