package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"rebalancer/types"

	"github.com/goccy/go-json"
)

// writeExecutionsCSVFile writes execution reports to a CSV file at the given path.
func writeExecutionsCSVFile(path string, execs []*types.ExecutionReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create executions file: %w", err)
	}
	defer f.Close()

	return writeExecutionsCSV(f, execs)
}

// writeExecutionsCSV writes one row per execution report.
func writeExecutionsCSV(w io.Writer, execs []*types.ExecutionReport) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"order_id",
		"ticker",
		"side",
		"status",
		"total_filled_qty",
		"avg_fill_price",
		"total_fees",
		"remaining_qty",
		"num_fills",
		"reject_reason",
		"order_reason",
		"report_time", // RFC3339
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, er := range execs {
		if err := writeExecutionRow(cw, er); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeExecutionRow(cw *csv.Writer, er *types.ExecutionReport) error {
	record := []string{
		er.OrderId,
		er.Ticker,
		string(er.Side),
		string(er.Status),
		er.TotalFilledQty.String(),
		er.AvgFillPrice.String(),
		er.TotalFees.String(),
		er.RemainingQty.String(),
		fmt.Sprintf("%d", len(er.Fills)),
		er.RejectReason,
		er.OrderReason,
		er.ReportTime.Format(time.RFC3339),
	}

	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// writeSummaryJSONFile exports the report as indented JSON.
func writeSummaryJSONFile(path string, report *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer f.Close()

	return writeSummaryJSON(f, report)
}

func writeSummaryJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
