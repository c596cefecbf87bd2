// Package monitor parses monitor command flags and runs the usage metrics
// loop.
package monitor

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	entrypoint "github.com/logshell/logshell/internal/platform/cmd"
	"github.com/logshell/logshell/internal/shell/monitor"
	shellsqlite "github.com/logshell/logshell/internal/shell/storage/sqlite"
)

// Config holds monitor command configuration.
type Config struct {
	DBPath   string        `env:"LOGSHELL_DB_PATH" envDefault:"data/logshell.db"`
	Interval time.Duration `env:"LOGSHELL_MONITOR_INTERVAL" envDefault:"5m"`
	CSVPath  string        `env:"LOGSHELL_MONITOR_CSV"`
	Once     bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shell SQLite database path")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Time between metric outputs")
	fs.StringVar(&cfg.CSVPath, "csv", cfg.CSVPath, "Append metrics to this CSV file instead of stdout")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "Collect once and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the monitor loop.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMonitor, func(context.Context) error {
		store, err := shellsqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open shell sqlite store: %w", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Printf("close shell sqlite store: %v", closeErr)
			}
		}()

		for {
			if err := collectOnce(ctx, store, cfg.CSVPath); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("collect metrics: %v", err)
			}
			if cfg.Once {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(cfg.Interval):
			}
		}
	})
}

func collectOnce(ctx context.Context, store monitor.Store, csvPath string) error {
	stats, err := monitor.Collect(ctx, store)
	if err != nil {
		return err
	}
	if csvPath == "" {
		return monitor.Write(os.Stdout, stats)
	}

	file, err := os.OpenFile(csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	return monitor.WriteCSV(csv.NewWriter(file), stats, info.Size() == 0)
}
