// Package cleanup applies retention policy: terminal commands past the
// retention age are deleted and long-inactive environments are reset to the
// default sandbox state. Unexpired rows and non-terminal commands are never
// touched, so the log's write-once invariant holds.
package cleanup

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetention is the age past which terminal commands and inactive
// environments expire.
const DefaultRetention = 90 * 24 * time.Hour

// Store is the persistence surface the retention sweep needs.
type Store interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ResetInactiveEnvironments(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)
}

// Result reports one retention sweep.
type Result struct {
	CommandsDeleted   int64
	EnvironmentsReset int64
}

// Sweep removes expired terminal commands and resets inactive environments.
func Sweep(ctx context.Context, store Store, retention time.Duration) (Result, error) {
	if store == nil {
		return Result{}, fmt.Errorf("store is required")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	now := time.Now().UTC()
	cutoff := now.Add(-retention)

	deleted, err := store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("delete expired commands: %w", err)
	}
	reset, err := store.ResetInactiveEnvironments(ctx, cutoff, now)
	if err != nil {
		return Result{CommandsDeleted: deleted}, fmt.Errorf("reset inactive environments: %w", err)
	}
	return Result{CommandsDeleted: deleted, EnvironmentsReset: reset}, nil
}
