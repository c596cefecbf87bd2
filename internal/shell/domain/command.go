package domain

import "time"

// Status identifies where a command is in its lifecycle.
type Status string

const (
	// StatusPending marks a command submitted but not yet claimed.
	StatusPending Status = "pending"
	// StatusRunning marks a command claimed by exactly one worker.
	StatusRunning Status = "running"
	// StatusDone marks a command that executed to completion.
	StatusDone Status = "done"
	// StatusFailed marks a command that errored, timed out, or was rejected.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// The only backward edge is running back to pending, used for staleness
// recovery and backend-unavailable release.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusDone || next == StatusFailed || next == StatusPending
	default:
		return false
	}
}

// Snapshot is the cwd/env pair captured when a command is submitted. It is
// frozen into the command row and is the deterministic input to both live
// execution and replay; it is never recomputed after insertion.
type Snapshot struct {
	Cwd string
	Env map[string]string
}

// Command is one append-only entry in the command log.
type Command struct {
	ID          int64
	UserID      string
	Text        string
	SubmittedAt time.Time
	Snapshot    Snapshot
	Status      Status
	Output      string
	ExitCode    int
	CompletedAt time.Time

	// Claim bookkeeping, meaningful only while Status is running.
	ClaimedBy    string
	ClaimedAt    time.Time
	AttemptCount int

	// LastError records why a claim was released back to pending.
	LastError string
}

// Exit codes recorded for failures the engine itself produces.
const (
	// ExitFailure is the generic exit code for tokenize errors, missing cd
	// targets, and backend faults that produced no process exit status.
	ExitFailure = 1
	// ExitTimeout is recorded when the backend killed the process at the
	// wall-clock deadline.
	ExitTimeout = 124
)
