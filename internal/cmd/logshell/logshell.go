// Package logshell implements the operator CLI: submitting commands,
// tailing output, creating users, and forking or replaying sessions. It
// talks to the store directly; the executor processes do the running.
package logshell

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	entrypoint "github.com/logshell/logshell/internal/platform/cmd"
	"github.com/logshell/logshell/internal/shell/backend"
	"github.com/logshell/logshell/internal/shell/engine"
	"github.com/logshell/logshell/internal/shell/notify"
	shellsqlite "github.com/logshell/logshell/internal/shell/storage/sqlite"
)

// Config holds CLI-wide configuration shared by all subcommands.
type Config struct {
	DBPath string `env:"LOGSHELL_DB_PATH" envDefault:"data/logshell.db"`
}

// Run dispatches one CLI subcommand.
func Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError()
	}

	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return err
	}

	name, rest := args[0], args[1:]
	switch name {
	case "useradd":
		return runUserAdd(ctx, cfg, rest, out)
	case "exec":
		return runExec(ctx, cfg, rest, out)
	case "tail":
		return runTail(ctx, cfg, rest, out)
	case "fork":
		return runFork(ctx, cfg, rest, out)
	case "replay":
		return runReplay(ctx, cfg, rest, out)
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("usage: logshell <useradd|exec|tail|fork|replay> [flags]")
}

func openEngine(cfg Config) (*engine.Engine, *shellsqlite.Store, error) {
	store, err := shellsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open shell sqlite store: %w", err)
	}
	eng, err := engine.New(store, backend.NewLocal(), notify.Nop{}, engine.Config{})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return eng, store, nil
}

func runUserAdd(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	name := fs.String("name", "", "Display name for the new user")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shell SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}

	eng, store, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := eng.CreateUser(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created user %s (%s)\n", user.ID, user.Name)
	return nil
}

func runExec(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	user := fs.String("user", "", "User ID")
	cmd := fs.String("cmd", "", "Command text")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shell SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}

	eng, store, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := eng.Submit(ctx, *user, *cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "queued as command %d\n", id)
	return nil
}

func runTail(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	user := fs.String("user", "", "User ID")
	since := fs.Int64("since", 0, "Start tailing after this command ID")
	interval := fs.Duration("interval", time.Second, "Polling interval")
	maxPolls := fs.Int("max-polls", 0, "Maximum number of polls before exiting (0 = unbounded)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shell SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}

	eng, store, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	lastID := *since
	polls := 0
	for {
		commands, err := eng.ListRecent(ctx, *user, lastID)
		if err != nil {
			return err
		}
		// ListRecent is newest first; print oldest first.
		for i := len(commands) - 1; i >= 0; i-- {
			command := commands[i]
			if !command.Status.Terminal() {
				continue
			}
			fmt.Fprintf(out, "$ %s\n", command.Text)
			if command.Output != "" {
				fmt.Fprintln(out, command.Output)
			}
			fmt.Fprintf(out, "(exit %d)\n", command.ExitCode)
			if command.ID > lastID {
				lastID = command.ID
			}
		}

		polls++
		if *maxPolls > 0 && polls >= *maxPolls {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(*interval):
		}
	}
}

func runFork(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fork", flag.ContinueOnError)
	user := fs.String("user", "", "User owning the forked session")
	at := fs.Int64("at", 0, "Command ID to fork at")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shell SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}

	eng, store, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	env, err := eng.Fork(ctx, *user, *at)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "forked user %s at command %d, cwd %s\n", env.UserID, *at, env.Cwd)
	return nil
}

func runReplay(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	user := fs.String("user", "", "User ID")
	start := fs.Int64("start", 0, "Starting command ID")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The shell SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}

	eng, store, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	replayID, results, err := eng.Replay(ctx, *user, *start)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no commands to replay")
		return nil
	}
	fmt.Fprintf(out, "replay %s\n", replayID)
	for _, result := range results {
		fmt.Fprintf(out, "$ %s\n", result.Text)
		if result.Output != "" {
			fmt.Fprintln(out, result.Output)
		}
		fmt.Fprintf(out, "(exit %d)\n", result.ExitCode)
	}
	return nil
}
