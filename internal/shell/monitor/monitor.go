// Package monitor aggregates usage statistics from the command log:
// per-user per-day command counts and the average time between submission
// and completion. Output goes to a writer or CSV; presentation beyond that
// is an external concern.
package monitor

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/logshell/logshell/internal/shell/storage"
)

// Store is the persistence surface the monitor reads.
type Store interface {
	UsageMetrics(ctx context.Context) ([]storage.UsageStat, error)
}

// Collect reads the current usage aggregation over terminal commands.
func Collect(ctx context.Context, store Store) ([]storage.UsageStat, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	stats, err := store.UsageMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect usage metrics: %w", err)
	}
	return stats, nil
}

// Write prints one line per aggregation row.
func Write(w io.Writer, stats []storage.UsageStat) error {
	for _, stat := range stats {
		_, err := fmt.Fprintf(w, "%s user=%s commands=%d avg_s=%.3f\n",
			stat.Day, stat.UserID, stat.Count, stat.AvgSeconds)
		if err != nil {
			return fmt.Errorf("write usage stat: %w", err)
		}
	}
	return nil
}

// CSVHeader is the column header written to fresh CSV files.
var CSVHeader = []string{"user_id", "day", "command_count", "avg_seconds"}

// WriteCSV appends aggregation rows to a CSV writer, optionally emitting
// the header first.
func WriteCSV(w *csv.Writer, stats []storage.UsageStat, withHeader bool) error {
	if withHeader {
		if err := w.Write(CSVHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, stat := range stats {
		record := []string{
			stat.UserID,
			stat.Day,
			strconv.FormatInt(stat.Count, 10),
			strconv.FormatFloat(stat.AvgSeconds, 'f', 3, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
