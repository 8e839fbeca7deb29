package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Recorder collects named daily metrics. A second value for the same name
// on the same day overwrites the first.
type Recorder struct {
	names []string
	known map[string]struct{}
	rows  []recordRow
}

type recordRow struct {
	Time   time.Time
	Values map[string]decimal.Decimal
}

func NewRecorder() *Recorder {
	return &Recorder{known: make(map[string]struct{})}
}

func (r *Recorder) Record(at time.Time, name string, value decimal.Decimal) {
	if _, ok := r.known[name]; !ok {
		r.known[name] = struct{}{}
		r.names = append(r.names, name)
	}
	if n := len(r.rows); n == 0 || !r.rows[n-1].Time.Equal(at) {
		r.rows = append(r.rows, recordRow{Time: at, Values: make(map[string]decimal.Decimal)})
	}
	r.rows[len(r.rows)-1].Values[name] = value
}

// Series returns the values recorded under name in time order.
func (r *Recorder) Series(name string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, row := range r.rows {
		if v, ok := row.Values[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Last returns the most recent value recorded under name.
func (r *Recorder) Last(name string) (decimal.Decimal, bool) {
	for i := len(r.rows) - 1; i >= 0; i-- {
		if v, ok := r.rows[i].Values[name]; ok {
			return v, true
		}
	}
	return decimal.Zero, false
}

func (r *Recorder) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Recorder) writeCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer f.Close()

	return r.writeCSV(f)
}

// writeCSV writes one row per day with a column per metric name.
func (r *Recorder) writeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"date"}, r.names...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range r.rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Time.Format("2006-01-02"))
		for _, name := range r.names {
			if v, ok := row.Values[name]; ok {
				record = append(record, v.String())
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
