package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/logshell/logshell/internal/shell/domain"
	"github.com/logshell/logshell/internal/shell/storage"
)

// SubmitCommand atomically ensures the user's environment row, reads its
// current state, and inserts a pending command carrying that state as its
// immutable snapshot. No other mutation can observe a command whose snapshot
// reflects an environment modified mid-read.
func (s *Store) SubmitCommand(ctx context.Context, userID, text string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("command text is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("start submit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	env, err := getOrCreateEnvironmentTx(ctx, tx, userID, now)
	if err != nil {
		return 0, err
	}
	envSnapshot, err := marshalEnv(env.Env)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `
INSERT INTO commands (
	user_id,
	command,
	submitted_at,
	cwd_snapshot,
	env_snapshot,
	status
) VALUES (?, ?, ?, ?, ?, ?)
`, userID, text, toMillis(now), env.Cwd, envSnapshot, domain.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("insert command: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("submit command id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit submit transaction: %w", err)
	}
	return id, nil
}

// GetCommand returns one command by id.
func (s *Store) GetCommand(ctx context.Context, id int64) (domain.Command, error) {
	if err := ctx.Err(); err != nil {
		return domain.Command{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Command{}, fmt.Errorf("storage is not configured")
	}
	if id <= 0 {
		return domain.Command{}, fmt.Errorf("command id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectCommandSQL+`
WHERE id = ?
`, id)
	command, err := scanCommand(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Command{}, storage.ErrNotFound
		}
		return domain.Command{}, fmt.Errorf("get command: %w", err)
	}
	return command, nil
}

// ListRecentCommands returns up to limit commands for one user with id
// greater than sinceID, newest first. The read never blocks on in-flight
// writers.
func (s *Store) ListRecentCommands(ctx context.Context, userID string, sinceID int64, limit int) ([]domain.Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectCommandSQL+`
WHERE user_id = ? AND id > ?
ORDER BY id DESC
LIMIT ?
`, userID, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent commands: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows, limit)
}

// ListCommandsFrom returns all of a user's commands with id >= startID in
// ascending id order.
func (s *Store) ListCommandsFrom(ctx context.Context, userID string, startID int64) ([]domain.Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectCommandSQL+`
WHERE user_id = ? AND id >= ?
ORDER BY id ASC
`, userID, startID)
	if err != nil {
		return nil, fmt.Errorf("list commands from: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows, 0)
}

// ClaimPending atomically transitions up to limit of the oldest pending
// commands to running under the given owner. Each transition is a
// conditional update scoped by row id, so at most one concurrent claimer
// ever observes success for a given command.
func (s *Store) ClaimPending(ctx context.Context, owner string, limit int, now time.Time) ([]domain.Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("claim owner is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start claim transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT id
FROM commands
WHERE status = ?
ORDER BY submitted_at ASC, id ASC
LIMIT ?
`, domain.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}
	candidateIDs := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if scanErr := rows.Scan(&id); scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan claim candidate: %w", scanErr)
		}
		candidateIDs = append(candidateIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate claim candidates: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close claim candidates: %w", err)
	}
	if len(candidateIDs) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit empty claim transaction: %w", err)
		}
		return []domain.Command{}, nil
	}

	claimed := make([]domain.Command, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		result, updateErr := tx.ExecContext(ctx, `
UPDATE commands
SET
	status = ?,
	claimed_by = ?,
	claimed_at = ?,
	attempt_count = attempt_count + 1
WHERE id = ?
AND status = ?
`, domain.StatusRunning, owner, toMillis(now), id, domain.StatusPending)
		if updateErr != nil {
			return nil, fmt.Errorf("claim command %d: %w", id, updateErr)
		}
		rowsAffected, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			return nil, fmt.Errorf("claim rows affected for %d: %w", id, rowsErr)
		}
		if rowsAffected == 0 {
			// Another worker won the row. Not an error.
			continue
		}

		row := tx.QueryRowContext(ctx, selectCommandSQL+`
WHERE id = ?
`, id)
		command, scanErr := scanCommand(row.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan claimed command %d: %w", id, scanErr)
		}
		claimed = append(claimed, command)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}
	return claimed, nil
}

// CompleteCommand writes the terminal status, output, and exit code for a
// command the owner holds. Once written the fields are immutable: the guard
// refuses any row not running under this owner.
func (s *Store) CompleteCommand(ctx context.Context, id int64, owner string, status domain.Status, output string, exitCode int, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	owner = strings.TrimSpace(owner)
	if id <= 0 {
		return fmt.Errorf("command id is required")
	}
	if owner == "" {
		return fmt.Errorf("claim owner is required")
	}
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE commands
SET
	status = ?,
	output = ?,
	exit_code = ?,
	completed_at = ?,
	claimed_by = '',
	claimed_at = NULL,
	last_error = ''
WHERE id = ?
AND status = ?
AND claimed_by = ?
`, status, output, exitCode, toMillis(now), id, domain.StatusRunning, owner)
	if err != nil {
		return fmt.Errorf("complete command: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete command rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ReleaseCommand moves a running command the owner holds back to pending,
// recording the release reason. Used when the execution backend cannot be
// reached at all.
func (s *Store) ReleaseCommand(ctx context.Context, id int64, owner string, reason string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	owner = strings.TrimSpace(owner)
	reason = strings.TrimSpace(reason)
	if id <= 0 {
		return fmt.Errorf("command id is required")
	}
	if owner == "" {
		return fmt.Errorf("claim owner is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE commands
SET
	status = ?,
	claimed_by = '',
	claimed_at = NULL,
	last_error = ?
WHERE id = ?
AND status = ?
AND claimed_by = ?
`, domain.StatusPending, reason, id, domain.StatusRunning, owner)
	if err != nil {
		return fmt.Errorf("release command: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("release command rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RequeueStale moves running commands whose claim age exceeds the threshold
// back to pending. The guard is "still running and still stale" so a
// slow-but-alive worker's own completion write is never raced.
func (s *Store) RequeueStale(ctx context.Context, staleBefore time.Time, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if staleBefore.IsZero() {
		return 0, fmt.Errorf("stale threshold is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE commands
SET
	status = ?,
	claimed_by = '',
	claimed_at = NULL,
	last_error = 'stale claim requeued'
WHERE status = ?
AND claimed_at IS NOT NULL
AND claimed_at <= ?
`, domain.StatusPending, domain.StatusRunning, toMillis(staleBefore))
	if err != nil {
		return 0, fmt.Errorf("requeue stale commands: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue stale rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteTerminalBefore removes done commands submitted before the cutoff.
// Unexpired and non-terminal rows are never touched.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM commands
WHERE status = ?
AND submitted_at < ?
`, domain.StatusDone, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete terminal commands: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete terminal rows affected: %w", err)
	}
	return rowsAffected, nil
}

// UsageMetrics aggregates per-user per-day counts and average
// submit-to-complete latency over terminal commands.
func (s *Store) UsageMetrics(ctx context.Context) ([]storage.UsageStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	user_id,
	date(submitted_at / 1000, 'unixepoch') AS day,
	COUNT(*) AS command_count,
	AVG((completed_at - submitted_at) / 1000.0) AS avg_seconds
FROM commands
WHERE status IN (?, ?)
AND completed_at IS NOT NULL
GROUP BY user_id, day
ORDER BY day ASC, user_id ASC
`, domain.StatusDone, domain.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("usage metrics: %w", err)
	}
	defer rows.Close()

	stats := []storage.UsageStat{}
	for rows.Next() {
		var stat storage.UsageStat
		var avgSeconds sql.NullFloat64
		if err := rows.Scan(&stat.UserID, &stat.Day, &stat.Count, &avgSeconds); err != nil {
			return nil, fmt.Errorf("scan usage stat: %w", err)
		}
		stat.AvgSeconds = avgSeconds.Float64
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage stats: %w", err)
	}
	return stats, nil
}

const selectCommandSQL = `
SELECT
	id,
	user_id,
	command,
	submitted_at,
	cwd_snapshot,
	env_snapshot,
	status,
	output,
	exit_code,
	completed_at,
	claimed_by,
	claimed_at,
	attempt_count,
	last_error
FROM commands
`

type commandScanner func(dest ...any) error

func scanCommand(scan commandScanner) (domain.Command, error) {
	var command domain.Command
	var submittedAt int64
	var envSnapshot string
	var status string
	var exitCode sql.NullInt64
	var completedAt sql.NullInt64
	var claimedAt sql.NullInt64
	if err := scan(
		&command.ID,
		&command.UserID,
		&command.Text,
		&submittedAt,
		&command.Snapshot.Cwd,
		&envSnapshot,
		&status,
		&command.Output,
		&exitCode,
		&completedAt,
		&command.ClaimedBy,
		&claimedAt,
		&command.AttemptCount,
		&command.LastError,
	); err != nil {
		return domain.Command{}, err
	}

	env, err := unmarshalEnv(envSnapshot)
	if err != nil {
		return domain.Command{}, err
	}
	command.Snapshot.Env = env
	command.SubmittedAt = time.UnixMilli(submittedAt).UTC()
	command.Status = domain.Status(status)
	if exitCode.Valid {
		command.ExitCode = int(exitCode.Int64)
	}
	if completedAt.Valid {
		command.CompletedAt = time.UnixMilli(completedAt.Int64).UTC()
	}
	if claimedAt.Valid {
		command.ClaimedAt = time.UnixMilli(claimedAt.Int64).UTC()
	}
	return command, nil
}

func collectCommands(rows *sql.Rows, sizeHint int) ([]domain.Command, error) {
	if sizeHint < 0 {
		sizeHint = 0
	}
	commands := make([]domain.Command, 0, sizeHint)
	for rows.Next() {
		command, err := scanCommand(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		commands = append(commands, command)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return commands, nil
}
