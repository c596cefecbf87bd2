// Package executor parses executor command flags and launches the claim
// loop runtime.
package executor

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/logshell/logshell/internal/platform/cmd"
	"github.com/logshell/logshell/internal/shell/app"
)

// Config holds executor command configuration.
type Config struct {
	Port           int           `env:"LOGSHELL_EXECUTOR_PORT" envDefault:"8090"`
	DBPath         string        `env:"LOGSHELL_DB_PATH" envDefault:"data/logshell.db"`
	Owner          string        `env:"LOGSHELL_EXECUTOR_OWNER"`
	Channel        string        `env:"LOGSHELL_LISTEN_CHANNEL"`
	PollInterval   time.Duration `env:"LOGSHELL_POLL_INTERVAL" envDefault:"1s"`
	ClaimBatch     int           `env:"LOGSHELL_CLAIM_BATCH" envDefault:"5"`
	CommandTimeout time.Duration `env:"LOGSHELL_COMMAND_TIMEOUT" envDefault:"30s"`
	MaxOutputBytes int           `env:"LOGSHELL_MAX_OUTPUT_BYTES" envDefault:"65536"`
	StaleAfter     time.Duration `env:"LOGSHELL_STALE_AFTER" envDefault:"5m"`
	SweepInterval  time.Duration `env:"LOGSHELL_SWEEP_INTERVAL" envDefault:"1m"`
	MaxAttempts    int           `env:"LOGSHELL_MAX_ATTEMPTS" envDefault:"8"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The executor health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shell SQLite database path")
	fs.StringVar(&cfg.Owner, "owner", cfg.Owner, "Claim owner token (defaults to a fresh UUID)")
	fs.StringVar(&cfg.Channel, "channel", cfg.Channel, "Wake channel name override")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Pending command poll interval")
	fs.IntVar(&cfg.ClaimBatch, "claim-batch", cfg.ClaimBatch, "Maximum commands claimed per attempt")
	fs.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "Wall-clock timeout per command")
	fs.IntVar(&cfg.MaxOutputBytes, "max-output-bytes", cfg.MaxOutputBytes, "Captured output ceiling per command")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "Claim age before a running command is requeued")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Staleness sweep interval")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Per-command retry ceiling")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the executor runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceExecutor, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port:           cfg.Port,
			DBPath:         cfg.DBPath,
			Owner:          cfg.Owner,
			Channel:        cfg.Channel,
			PollInterval:   cfg.PollInterval,
			ClaimBatch:     cfg.ClaimBatch,
			CommandTimeout: cfg.CommandTimeout,
			MaxOutputBytes: cfg.MaxOutputBytes,
			StaleAfter:     cfg.StaleAfter,
			SweepInterval:  cfg.SweepInterval,
			MaxAttempts:    cfg.MaxAttempts,
		})
	})
}
