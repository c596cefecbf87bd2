package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/logshell/logshell/internal/shell/domain"
	"github.com/logshell/logshell/internal/shell/storage"
)

func TestCreateAndGetUser(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	if err := store.CreateUser(context.Background(), domain.User{
		ID:        "user-1",
		Name:      "Ada",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	user, err := store.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Name != "Ada" {
		t.Fatalf("name = %q, want %q", user.Name, "Ada")
	}
	if !user.CreatedAt.Equal(now) {
		t.Fatalf("created at = %v, want %v", user.CreatedAt, now)
	}
}

func TestGetUserNotFound(t *testing.T) {
	store := openTempStore(t)

	_, err := store.GetUser(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	store := openTempStore(t)

	if err := store.CreateUser(context.Background(), domain.User{}); err == nil {
		t.Fatal("expected validation error for empty user")
	}
	if err := store.CreateUser(context.Background(), domain.User{ID: "u"}); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	store := openTempStore(t)

	if _, err := store.GetConfig(context.Background(), "notify_channel"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatal("expected ErrNotFound for unset key")
	}

	if err := store.SetConfig(context.Background(), "notify_channel", "new_command"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := store.SetConfig(context.Background(), "notify_channel", "other_channel"); err != nil {
		t.Fatalf("overwrite config: %v", err)
	}

	value, err := store.GetConfig(context.Background(), "notify_channel")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if value != "other_channel" {
		t.Fatalf("value = %q, want %q", value, "other_channel")
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logshell.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func seedUser(t *testing.T, store *Store, id string) {
	t.Helper()
	if err := store.CreateUser(context.Background(), domain.User{
		ID:        id,
		Name:      id,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}
