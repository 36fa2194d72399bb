package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/layerscope/internal/capture"
	"github.com/san-kum/layerscope/internal/metrics"
)

var baseHeader = []string{"index", "name", "type", "status", "shape", "min", "max", "active", "total"}

func summaryHeader(reducers []metrics.Metric) []string {
	header := append([]string{}, baseHeader...)
	for _, m := range reducers {
		header = append(header, m.Name())
	}
	return append(header, "error")
}

// WriteSummary writes one CSV row per record, with a column for each of
// metrics.Defaults after the fixed statistics. Failed rows leave the
// statistic columns empty and carry the error text.
func WriteSummary(w io.Writer, records []capture.Record) error {
	reducers := metrics.Defaults()
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader(reducers)); err != nil {
		return err
	}

	for i, rec := range records {
		row := []string{strconv.Itoa(i), rec.LayerName, rec.Type}
		act, ok := rec.Activation()
		if ok {
			s := metrics.Summarize(act.Data)
			row = append(row, "ok", formatShape(act.Shape),
				formatFloat(s.Min), formatFloat(s.Max),
				strconv.Itoa(s.Active), strconv.Itoa(s.Total))
			for _, m := range reducers {
				m.Reset()
				m.Observe(act.Data)
				row = append(row, formatFloat(m.Value()))
			}
			row = append(row, "")
		} else {
			row = append(row, "failed")
			for range len(baseHeader) - 4 + len(reducers) {
				row = append(row, "")
			}
			msg := ""
			if err := rec.Err(); err != nil {
				msg = err.Error()
			}
			row = append(row, msg)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func ExportSummary(path string, records []capture.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := WriteSummary(file, records); err != nil {
		return fmt.Errorf("export: write summary %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x")
}
