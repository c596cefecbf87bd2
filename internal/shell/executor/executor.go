// Package executor drains pending commands from the log: it atomically
// claims rows, runs them through the execution backend against their frozen
// snapshots, and writes terminal results back. Any number of executor
// instances may run concurrently; coordination happens entirely through the
// store's conditional updates.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/logshell/logshell/internal/shell/backend"
	"github.com/logshell/logshell/internal/shell/domain"
	"github.com/logshell/logshell/internal/shell/notify"
	"github.com/logshell/logshell/internal/shell/storage"
	"github.com/logshell/logshell/internal/shell/token"
)

const (
	defaultPollInterval   = time.Second
	defaultClaimBatch     = 5
	defaultCommandTimeout = 30 * time.Second
	defaultMaxOutput      = 64 * 1024
	defaultStaleAfter     = 5 * time.Minute
	defaultSweepInterval  = time.Minute
	defaultMaxAttempts    = 8
)

// Store is the persistence surface the executor drives.
type Store interface {
	storage.CommandStore
	storage.EnvironmentStore
	storage.ConfigStore
}

// Config tunes the claim loop.
type Config struct {
	// Owner is this executor's claim token. Defaults to a fresh UUID.
	Owner string
	// Channel overrides the wake channel name; when set it is persisted to
	// the configuration table, otherwise the stored value (or default) is
	// used.
	Channel string
	// PollInterval is the fallback work-discovery cadence. Polling is the
	// correctness path; wake signals only reduce latency.
	PollInterval time.Duration
	// ClaimBatch bounds how many pending commands one claim attempt takes.
	ClaimBatch int
	// CommandTimeout bounds each command's wall-clock execution.
	CommandTimeout time.Duration
	// MaxOutputBytes caps captured output per command.
	MaxOutputBytes int
	// StaleAfter is the claim age beyond which a running command with no
	// terminal write is requeued.
	StaleAfter time.Duration
	// SweepInterval is how often the staleness sweep runs.
	SweepInterval time.Duration
	// MaxAttempts is the per-row retry ceiling before a command that keeps
	// losing its backend goes terminal failed.
	MaxAttempts int
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.Owner) == "" {
		c.Owner = uuid.NewString()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ClaimBatch <= 0 {
		c.ClaimBatch = defaultClaimBatch
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = defaultMaxOutput
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Executor is one claim/execute worker instance.
type Executor struct {
	store Store
	exec  backend.Backend
	hub   *notify.Hub
	cfg   Config
}

// New returns an executor over the given store and backend. The hub is
// optional; without one the executor discovers work by polling alone.
func New(store Store, exec backend.Backend, hub *notify.Hub, cfg Config) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("execution backend is required")
	}
	return &Executor{
		store: store,
		exec:  exec,
		hub:   hub,
		cfg:   cfg.normalized(),
	}, nil
}

// Owner returns this executor's claim token.
func (e *Executor) Owner() string {
	return e.cfg.Owner
}

// Run drives the claim loop until the context is canceled. Work discovery
// alternates between the poll ticker and the wake channel; correctness
// depends only on the atomic claim, never on wake delivery.
func (e *Executor) Run(ctx context.Context) error {
	channel, err := e.resolveChannel(ctx)
	if err != nil {
		return err
	}

	var wake <-chan struct{}
	if e.hub != nil {
		wake = e.hub.Subscribe(channel)
	}

	if requeued, err := e.sweepStale(ctx); err != nil {
		log.Printf("startup stale sweep: %v", err)
	} else if requeued > 0 {
		log.Printf("requeued %d stale commands", requeued)
	}

	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(e.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		if err := e.drain(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("drain pending commands: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
		case <-wake:
		case <-sweep.C:
			if requeued, err := e.sweepStale(ctx); err != nil {
				log.Printf("stale sweep: %v", err)
			} else if requeued > 0 {
				log.Printf("requeued %d stale commands", requeued)
			}
		}
	}
}

// drain claims and processes batches until no pending work remains.
func (e *Executor) drain(ctx context.Context) error {
	for {
		claimed, err := e.store.ClaimPending(ctx, e.cfg.Owner, e.cfg.ClaimBatch, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("claim pending: %w", err)
		}
		if len(claimed) == 0 {
			return nil
		}
		for _, command := range claimed {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.process(ctx, command)
		}
	}
}

// process runs one claimed command to a terminal state or releases it.
// Errors are captured into the row, never propagated past the worker.
func (e *Executor) process(ctx context.Context, command domain.Command) {
	log.Printf("executing command %d for user %s: %s", command.ID, command.UserID, command.Text)

	argv, err := token.Split(command.Text)
	if err != nil {
		e.complete(ctx, command, domain.StatusFailed, err.Error(), domain.ExitFailure)
		return
	}

	if target, ok := domain.ChangeDirTarget(argv); ok {
		e.changeDirectory(ctx, command, target)
		return
	}

	result, err := e.exec.Run(ctx, backend.Request{
		Argv:           argv,
		Dir:            command.Snapshot.Cwd,
		Env:            command.Snapshot.Env,
		Timeout:        e.cfg.CommandTimeout,
		MaxOutputBytes: e.cfg.MaxOutputBytes,
	})
	if err != nil {
		if errors.Is(err, backend.ErrUnavailable) && !domain.IsPermanent(err) {
			e.release(ctx, command, err)
			return
		}
		e.complete(ctx, command, domain.StatusFailed, err.Error(), domain.ExitFailure)
		return
	}

	status := domain.StatusDone
	if result.ExitCode != 0 {
		status = domain.StatusFailed
	}
	e.complete(ctx, command, status, result.Output, result.ExitCode)
}

// changeDirectory handles the cd builtin: the target resolves against the
// frozen snapshot cwd, but the write lands on the live environment so
// out-of-order executions still converge on a sane final directory.
func (e *Executor) changeDirectory(ctx context.Context, command domain.Command, target string) {
	resolved := domain.ResolveDir(command.Snapshot.Cwd, target)
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		message := fmt.Sprintf("cd: %s: No such file or directory", target)
		e.complete(ctx, command, domain.StatusFailed, message, domain.ExitFailure)
		return
	}

	if err := e.store.ApplyDirectoryChange(ctx, command.UserID, resolved, time.Now().UTC()); err != nil {
		e.complete(ctx, command, domain.StatusFailed, fmt.Sprintf("cd: %v", err), domain.ExitFailure)
		return
	}
	e.complete(ctx, command, domain.StatusDone, "", 0)
}

// release returns the claim to pending for another attempt, unless the row
// has hit its retry ceiling, in which case it goes terminal failed to avoid
// livelocking on a permanently broken command.
func (e *Executor) release(ctx context.Context, command domain.Command, cause error) {
	if command.AttemptCount >= e.cfg.MaxAttempts {
		message := fmt.Sprintf("gave up after %d attempts: %v", command.AttemptCount, cause)
		e.complete(ctx, command, domain.StatusFailed, message, domain.ExitFailure)
		return
	}
	if err := e.store.ReleaseCommand(ctx, command.ID, e.cfg.Owner, cause.Error(), time.Now().UTC()); err != nil {
		log.Printf("release command %d: %v", command.ID, err)
		return
	}
	log.Printf("released command %d after attempt %d: %v", command.ID, command.AttemptCount, cause)
}

func (e *Executor) complete(ctx context.Context, command domain.Command, status domain.Status, output string, exitCode int) {
	err := e.store.CompleteCommand(ctx, command.ID, e.cfg.Owner, status, output, exitCode, time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The claim was lost, most likely to a stale sweep that fired
			// while execution overran. The reclaiming worker owns the row.
			log.Printf("command %d claim lost before completion", command.ID)
			return
		}
		log.Printf("complete command %d: %v", command.ID, err)
		return
	}
	if status == domain.StatusDone {
		log.Printf("command %d for user %s completed", command.ID, command.UserID)
	} else {
		log.Printf("command %d for user %s failed with exit code %d", command.ID, command.UserID, exitCode)
	}
}

func (e *Executor) sweepStale(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	return e.store.RequeueStale(ctx, now.Add(-e.cfg.StaleAfter), now)
}

// resolveChannel resolves the wake channel name: an explicit override is
// persisted to the configuration table; otherwise the stored value (or the
// default) wins.
func (e *Executor) resolveChannel(ctx context.Context) (string, error) {
	if channel := strings.TrimSpace(e.cfg.Channel); channel != "" {
		if err := e.store.SetConfig(ctx, notify.ConfigKey, channel); err != nil {
			return "", fmt.Errorf("persist wake channel: %w", err)
		}
		return channel, nil
	}
	value, err := e.store.GetConfig(ctx, notify.ConfigKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notify.DefaultChannel, nil
		}
		return "", fmt.Errorf("resolve wake channel: %w", err)
	}
	if strings.TrimSpace(value) == "" {
		return notify.DefaultChannel, nil
	}
	return value, nil
}
