// Package sqlite provides the SQLite-backed implementation of the engine's
// storage contracts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/logshell/logshell/internal/platform/storage/sqlitemigrate"
	"github.com/logshell/logshell/internal/shell/domain"
	"github.com/logshell/logshell/internal/shell/storage"
	"github.com/logshell/logshell/internal/shell/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the command lifecycle engine.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the shell SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers; concurrent claimers then
	// contend on the pool instead of on SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateUser inserts a new user identity.
func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	user.ID = strings.TrimSpace(user.ID)
	user.Name = strings.TrimSpace(user.Name)
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if user.Name == "" {
		return fmt.Errorf("user name is required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, name, created_at)
VALUES (?, ?, ?)
`, user.ID, user.Name, toMillis(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.User{}, fmt.Errorf("storage is not configured")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, fmt.Errorf("user id is required")
	}

	var user domain.User
	var createdAt int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, created_at
FROM users
WHERE id = ?
`, id)
	if err := row.Scan(&user.ID, &user.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, storage.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return user, nil
}

// GetConfig returns one configuration value by key.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("config key is required")
	}

	var value string
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT value FROM shell_config WHERE key = ?
`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get config: %w", err)
	}
	return value, nil
}

// SetConfig upserts one configuration value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("config key is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO shell_config (key, value)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, value)
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func marshalEnv(env map[string]string) (string, error) {
	if env == nil {
		env = map[string]string{}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal env: %w", err)
	}
	return string(raw), nil
}

func unmarshalEnv(raw string) (map[string]string, error) {
	env := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return env, nil
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("unmarshal env: %w", err)
	}
	return env, nil
}

var (
	_ storage.UserStore        = (*Store)(nil)
	_ storage.EnvironmentStore = (*Store)(nil)
	_ storage.CommandStore     = (*Store)(nil)
	_ storage.ReplayStore      = (*Store)(nil)
	_ storage.ConfigStore      = (*Store)(nil)
)
