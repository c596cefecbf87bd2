// Package storage defines the persistence contracts for the command
// lifecycle engine. Implementations must express every state transition as
// an atomic conditional write: zero rows affected means the guard failed.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/logshell/logshell/internal/shell/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// UserStore persists stable user identities.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// EnvironmentStore persists the live per-user environment rows.
type EnvironmentStore interface {
	// GetOrCreateEnvironment returns the user's environment, creating the
	// default row atomically if none exists. Concurrent first-time callers
	// must never race on row creation.
	GetOrCreateEnvironment(ctx context.Context, userID string) (domain.Environment, error)

	// ApplyDirectoryChange overwrites cwd and bumps updated_at. The env map
	// is untouched.
	ApplyDirectoryChange(ctx context.Context, userID, cwd string, now time.Time) error

	// SeedEnvironment upserts the full environment state, overwriting any
	// existing row. Last writer wins, no merge.
	SeedEnvironment(ctx context.Context, env domain.Environment) error

	// ResetInactiveEnvironments restores environments untouched since the
	// cutoff back to the default state and returns how many were reset.
	ResetInactiveEnvironments(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)
}

// ClaimedCommand pairs a claimed command with the owner token that guards
// its write-back.
type ClaimedCommand struct {
	Command domain.Command
	Owner   string
}

// UsageStat is one per-user per-day aggregation row over terminal commands.
type UsageStat struct {
	UserID     string
	Day        string
	Count      int64
	AvgSeconds float64
}

// CommandStore persists the append-only command log.
type CommandStore interface {
	// SubmitCommand is the atomic submit unit: it ensures the user's
	// environment row exists, reads its current state, and inserts a
	// pending command carrying that state as its immutable snapshot. It
	// returns the new command id.
	SubmitCommand(ctx context.Context, userID, text string, now time.Time) (int64, error)

	GetCommand(ctx context.Context, id int64) (domain.Command, error)

	// ListRecentCommands returns up to limit commands for one user with id
	// greater than sinceID, in descending id order.
	ListRecentCommands(ctx context.Context, userID string, sinceID int64, limit int) ([]domain.Command, error)

	// ListCommandsFrom returns all of a user's commands with id >= startID
	// in ascending id order, the replay read path.
	ListCommandsFrom(ctx context.Context, userID string, startID int64) ([]domain.Command, error)

	// ClaimPending atomically transitions up to limit of the oldest pending
	// commands to running under the given owner. Rows lost to a concurrent
	// claimer are silently skipped.
	ClaimPending(ctx context.Context, owner string, limit int, now time.Time) ([]domain.Command, error)

	// CompleteCommand writes the terminal status, output, and exit code.
	// The write is guarded by the claim owner; ErrNotFound means the guard
	// failed and nothing was written.
	CompleteCommand(ctx context.Context, id int64, owner string, status domain.Status, output string, exitCode int, now time.Time) error

	// ReleaseCommand moves a running command back to pending, guarded by
	// the claim owner, recording the release reason and counting the
	// attempt.
	ReleaseCommand(ctx context.Context, id int64, owner string, reason string, now time.Time) error

	// RequeueStale moves running commands whose claim age exceeds the
	// threshold back to pending and returns how many were requeued.
	RequeueStale(ctx context.Context, staleBefore time.Time, now time.Time) (int64, error)

	// DeleteTerminalBefore removes done commands submitted before the
	// cutoff and returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// UsageMetrics aggregates per-user per-day counts and average
	// submit-to-complete latency over terminal commands.
	UsageMetrics(ctx context.Context) ([]UsageStat, error)
}

// ReplayResult is one recomputed command outcome in a replay namespace,
// separate from the original log.
type ReplayResult struct {
	ReplayID        string
	Seq             int
	SourceCommandID int64
	Text            string
	Output          string
	ExitCode        int
	CreatedAt       time.Time
}

// ReplayStore persists replay results without ever touching original
// command rows.
type ReplayStore interface {
	RecordReplayResult(ctx context.Context, result ReplayResult) error
	ListReplayResults(ctx context.Context, replayID string) ([]ReplayResult, error)
}

// ConfigStore persists small key-value tunables.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}
