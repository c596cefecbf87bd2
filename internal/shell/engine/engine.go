// Package engine exposes the command lifecycle operations: submitting
// commands into the append-only log, reading recent entries, and the
// fork/replay reconstruction of historical environment state.
package engine

import (
	"context"
	"errors"
	"fmt"
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
	defaultListLimit      = 20
	defaultReplayTimeout  = 30 * time.Second
	defaultMaxOutputBytes = 64 * 1024
)

// Store is the persistence surface the engine operates on.
type Store interface {
	storage.UserStore
	storage.EnvironmentStore
	storage.CommandStore
	storage.ReplayStore
	storage.ConfigStore
}

// Config tunes engine behavior.
type Config struct {
	// ListLimit caps how many commands ListRecent returns.
	ListLimit int
	// ReplayTimeout bounds each replayed command's execution.
	ReplayTimeout time.Duration
	// MaxOutputBytes caps replayed command output.
	MaxOutputBytes int
}

func (c Config) normalized() Config {
	if c.ListLimit <= 0 {
		c.ListLimit = defaultListLimit
	}
	if c.ReplayTimeout <= 0 {
		c.ReplayTimeout = defaultReplayTimeout
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = defaultMaxOutputBytes
	}
	return c
}

// Engine implements the command lifecycle operations over a Store.
type Engine struct {
	store    Store
	exec     backend.Backend
	notifier notify.Notifier
	cfg      Config
}

// New returns an engine over the given store. The backend is used only by
// Replay; the notifier fires the best-effort wake after Submit.
func New(store Store, exec backend.Backend, notifier notify.Notifier, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		store:    store,
		exec:     exec,
		notifier: notifier,
		cfg:      cfg.normalized(),
	}, nil
}

// CreateUser registers a new stable identity and returns it.
func (e *Engine) CreateUser(ctx context.Context, name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, fmt.Errorf("user name is required")
	}
	user := domain.User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Submit validates the user, appends a pending command carrying the user's
// current environment as its immutable snapshot, and fires the wake signal.
// Returns the new command id.
func (e *Engine) Submit(ctx context.Context, userID, text string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("command text is required")
	}
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("resolve user: %w", err)
	}

	id, err := e.store.SubmitCommand(ctx, userID, text, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("submit command: %w", err)
	}
	e.notifier.Notify(e.notifyChannel(ctx))
	return id, nil
}

// ListRecent returns the most recent commands for one user with id greater
// than sinceID, newest first, capped at the configured limit. The read is
// side-effect free and never blocks on workers.
func (e *Engine) ListRecent(ctx context.Context, userID string, sinceID int64) ([]domain.Command, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if sinceID < 0 {
		return nil, fmt.Errorf("since id must not be negative")
	}
	commands, err := e.store.ListRecentCommands(ctx, userID, sinceID, e.cfg.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent commands: %w", err)
	}
	return commands, nil
}

// Fork seeds the target user's environment from a historical command's
// pre-execution snapshot, overwriting any prior state. The snapshot is the
// state just before the source command ran.
func (e *Engine) Fork(ctx context.Context, targetUserID string, sourceCommandID int64) (domain.Environment, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return domain.Environment{}, fmt.Errorf("target user id is required")
	}
	if sourceCommandID <= 0 {
		return domain.Environment{}, fmt.Errorf("source command id is required")
	}
	if _, err := e.store.GetUser(ctx, targetUserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Environment{}, fmt.Errorf("target user %s: %w", targetUserID, storage.ErrNotFound)
		}
		return domain.Environment{}, fmt.Errorf("resolve target user: %w", err)
	}

	source, err := e.store.GetCommand(ctx, sourceCommandID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Environment{}, fmt.Errorf("source command %d: %w", sourceCommandID, storage.ErrNotFound)
		}
		return domain.Environment{}, fmt.Errorf("read source command: %w", err)
	}

	env := domain.Environment{
		UserID:    targetUserID,
		Cwd:       source.Snapshot.Cwd,
		Env:       cloneEnv(source.Snapshot.Env),
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.store.SeedEnvironment(ctx, env); err != nil {
		return domain.Environment{}, fmt.Errorf("seed environment: %w", err)
	}
	return env, nil
}

// Replay re-executes a user's commands from startID onward against a
// replay-scoped environment chain seeded from the first command's snapshot.
// Each command sees the environment produced by the previous replayed one,
// never live production state, so the recomputed sequence is deterministic.
// Results land in their own namespace; original rows are untouched.
func (e *Engine) Replay(ctx context.Context, userID string, startID int64) (string, []storage.ReplayResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil, fmt.Errorf("user id is required")
	}
	if startID <= 0 {
		return "", nil, fmt.Errorf("start command id is required")
	}
	if e.exec == nil {
		return "", nil, fmt.Errorf("execution backend is not configured")
	}

	commands, err := e.store.ListCommandsFrom(ctx, userID, startID)
	if err != nil {
		return "", nil, fmt.Errorf("list commands for replay: %w", err)
	}
	if len(commands) == 0 {
		return "", []storage.ReplayResult{}, nil
	}

	replayID := uuid.NewString()
	cwd := commands[0].Snapshot.Cwd
	envVars := cloneEnv(commands[0].Snapshot.Env)

	results := make([]storage.ReplayResult, 0, len(commands))
	for i, command := range commands {
		output, exitCode, nextCwd := e.replayOne(ctx, command.Text, cwd, envVars)
		cwd = nextCwd

		result := storage.ReplayResult{
			ReplayID:        replayID,
			Seq:             i,
			SourceCommandID: command.ID,
			Text:            command.Text,
			Output:          output,
			ExitCode:        exitCode,
			CreatedAt:       time.Now().UTC(),
		}
		if err := e.store.RecordReplayResult(ctx, result); err != nil {
			return replayID, results, fmt.Errorf("record replay result: %w", err)
		}
		results = append(results, result)
	}
	return replayID, results, nil
}

// replayOne executes one replayed command against the chained environment
// and returns its output, exit code, and the cwd the next command sees.
// Directory changes mutate only the replay scope, deterministically and
// without consulting the live filesystem.
func (e *Engine) replayOne(ctx context.Context, text, cwd string, envVars map[string]string) (string, int, string) {
	argv, err := token.Split(text)
	if err != nil {
		return err.Error(), domain.ExitFailure, cwd
	}

	if target, ok := domain.ChangeDirTarget(argv); ok {
		return "", 0, domain.ResolveDir(cwd, target)
	}

	result, err := e.exec.Run(ctx, backend.Request{
		Argv:           argv,
		Dir:            cwd,
		Env:            envVars,
		Timeout:        e.cfg.ReplayTimeout,
		MaxOutputBytes: e.cfg.MaxOutputBytes,
	})
	if err != nil {
		return err.Error(), domain.ExitFailure, cwd
	}
	return result.Output, result.ExitCode, cwd
}

// notifyChannel resolves the wake channel name from the configuration
// table, falling back to the default when unset.
func (e *Engine) notifyChannel(ctx context.Context) string {
	value, err := e.store.GetConfig(ctx, notify.ConfigKey)
	if err != nil || strings.TrimSpace(value) == "" {
		return notify.DefaultChannel
	}
	return value
}

func cloneEnv(env map[string]string) map[string]string {
	clone := make(map[string]string, len(env))
	for key, value := range env {
		clone[key] = value
	}
	return clone
}
