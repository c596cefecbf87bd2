package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/logshell/logshell/internal/shell/domain"
	"github.com/logshell/logshell/internal/shell/storage"
)

// GetOrCreateEnvironment returns the user's environment, creating the
// default row if none exists. The insert-or-ignore plus read runs inside one
// transaction so concurrent first-time submissions never race on creation.
func (s *Store) GetOrCreateEnvironment(ctx context.Context, userID string) (domain.Environment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Environment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Environment{}, fmt.Errorf("storage is not configured")
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Environment{}, fmt.Errorf("user id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("start environment transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	env, err := getOrCreateEnvironmentTx(ctx, tx, userID, time.Now().UTC())
	if err != nil {
		return domain.Environment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Environment{}, fmt.Errorf("commit environment transaction: %w", err)
	}
	return env, nil
}

func getOrCreateEnvironmentTx(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (domain.Environment, error) {
	defaults := domain.NewEnvironment(userID)
	defaultEnvJSON, err := marshalEnv(defaults.Env)
	if err != nil {
		return domain.Environment{}, err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO environments (user_id, cwd, env_json, updated_at)
VALUES (?, ?, ?, ?)
`, userID, defaults.Cwd, defaultEnvJSON, toMillis(now)); err != nil {
		return domain.Environment{}, fmt.Errorf("ensure environment row: %w", err)
	}

	var env domain.Environment
	var envJSON string
	var updatedAt int64
	row := tx.QueryRowContext(ctx, `
SELECT user_id, cwd, env_json, updated_at
FROM environments
WHERE user_id = ?
`, userID)
	if err := row.Scan(&env.UserID, &env.Cwd, &envJSON, &updatedAt); err != nil {
		return domain.Environment{}, fmt.Errorf("read environment: %w", err)
	}
	env.Env, err = unmarshalEnv(envJSON)
	if err != nil {
		return domain.Environment{}, err
	}
	env.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return env, nil
}

// ApplyDirectoryChange overwrites the live cwd for a user and bumps
// updated_at. The env map is untouched.
func (s *Store) ApplyDirectoryChange(ctx context.Context, userID, cwd string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	userID = strings.TrimSpace(userID)
	cwd = strings.TrimSpace(cwd)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if cwd == "" {
		return fmt.Errorf("cwd is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE environments
SET cwd = ?, updated_at = ?
WHERE user_id = ?
`, cwd, toMillis(now), userID)
	if err != nil {
		return fmt.Errorf("apply directory change: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply directory change rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SeedEnvironment upserts the full environment state, overwriting any
// existing row for the user.
func (s *Store) SeedEnvironment(ctx context.Context, env domain.Environment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	env.UserID = strings.TrimSpace(env.UserID)
	env.Cwd = strings.TrimSpace(env.Cwd)
	if env.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if env.Cwd == "" {
		return fmt.Errorf("cwd is required")
	}
	if env.UpdatedAt.IsZero() {
		env.UpdatedAt = time.Now().UTC()
	}
	envJSON, err := marshalEnv(env.Env)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO environments (user_id, cwd, env_json, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	cwd = excluded.cwd,
	env_json = excluded.env_json,
	updated_at = excluded.updated_at
`, env.UserID, env.Cwd, envJSON, toMillis(env.UpdatedAt))
	if err != nil {
		return fmt.Errorf("seed environment: %w", err)
	}
	return nil
}

// ResetInactiveEnvironments restores environments untouched since the cutoff
// back to the default sandbox state.
func (s *Store) ResetInactiveEnvironments(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE environments
SET cwd = ?, env_json = '{}', updated_at = ?
WHERE updated_at < ?
`, domain.SandboxRoot, toMillis(now), toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("reset inactive environments: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset inactive environments rows affected: %w", err)
	}
	return rowsAffected, nil
}
