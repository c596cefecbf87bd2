// Package cleanup parses cleanup command flags and runs the retention
// sweep loop.
package cleanup

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	entrypoint "github.com/logshell/logshell/internal/platform/cmd"
	"github.com/logshell/logshell/internal/shell/cleanup"
	shellsqlite "github.com/logshell/logshell/internal/shell/storage/sqlite"
)

// Config holds cleanup command configuration.
type Config struct {
	DBPath        string        `env:"LOGSHELL_DB_PATH" envDefault:"data/logshell.db"`
	Interval      time.Duration `env:"LOGSHELL_CLEANUP_INTERVAL" envDefault:"1h"`
	RetentionDays int           `env:"LOGSHELL_CLEANUP_DAYS" envDefault:"90"`
	Once          bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shell SQLite database path")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Time between cleanup runs")
	fs.IntVar(&cfg.RetentionDays, "days", cfg.RetentionDays, "Age threshold in days")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "Run cleanup once and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the cleanup loop.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCleanup, func(context.Context) error {
		store, err := shellsqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open shell sqlite store: %w", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Printf("close shell sqlite store: %v", closeErr)
			}
		}()

		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		for {
			result, err := cleanup.Sweep(ctx, store, retention)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("retention sweep: %v", err)
			} else {
				log.Printf("deleted %d old commands, reset %d environments",
					result.CommandsDeleted, result.EnvironmentsReset)
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
