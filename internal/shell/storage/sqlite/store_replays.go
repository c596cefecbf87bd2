package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/logshell/logshell/internal/shell/storage"
)

// RecordReplayResult persists one recomputed command outcome under its
// replay namespace. Original command rows are never written.
func (s *Store) RecordReplayResult(ctx context.Context, result storage.ReplayResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result.ReplayID = strings.TrimSpace(result.ReplayID)
	if result.ReplayID == "" {
		return fmt.Errorf("replay id is required")
	}
	if result.Seq < 0 {
		return fmt.Errorf("replay seq must not be negative")
	}
	if result.SourceCommandID <= 0 {
		return fmt.Errorf("source command id is required")
	}
	if strings.TrimSpace(result.Text) == "" {
		return fmt.Errorf("command text is required")
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO replay_results (
	replay_id,
	seq,
	source_command_id,
	command,
	output,
	exit_code,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		result.ReplayID,
		result.Seq,
		result.SourceCommandID,
		result.Text,
		result.Output,
		result.ExitCode,
		toMillis(result.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record replay result: %w", err)
	}
	return nil
}

// ListReplayResults returns all results for one replay in sequence order.
func (s *Store) ListReplayResults(ctx context.Context, replayID string) ([]storage.ReplayResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	replayID = strings.TrimSpace(replayID)
	if replayID == "" {
		return nil, fmt.Errorf("replay id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	replay_id,
	seq,
	source_command_id,
	command,
	output,
	exit_code,
	created_at
FROM replay_results
WHERE replay_id = ?
ORDER BY seq ASC
`, replayID)
	if err != nil {
		return nil, fmt.Errorf("list replay results: %w", err)
	}
	defer rows.Close()

	results := []storage.ReplayResult{}
	for rows.Next() {
		var result storage.ReplayResult
		var createdAt int64
		if err := rows.Scan(
			&result.ReplayID,
			&result.Seq,
			&result.SourceCommandID,
			&result.Text,
			&result.Output,
			&result.ExitCode,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan replay result: %w", err)
		}
		result.CreatedAt = time.UnixMilli(createdAt).UTC()
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replay results: %w", err)
	}
	return results, nil
}
