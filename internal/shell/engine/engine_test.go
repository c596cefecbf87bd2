package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/logshell/logshell/internal/shell/backend"
	"github.com/logshell/logshell/internal/shell/domain"
	"github.com/logshell/logshell/internal/shell/notify"
	"github.com/logshell/logshell/internal/shell/storage"
	"github.com/logshell/logshell/internal/shell/storage/sqlite"
)

// fakeBackend records every request and answers with a scripted function.
type fakeBackend struct {
	requests []backend.Request
	run      func(req backend.Request) (backend.Result, error)
}

func (f *fakeBackend) Run(_ context.Context, req backend.Request) (backend.Result, error) {
	f.requests = append(f.requests, req)
	if f.run == nil {
		return backend.Result{ExitCode: 0, Output: "ok\n"}, nil
	}
	return f.run(req)
}

func TestCreateUser(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)

	user, err := eng.CreateUser(context.Background(), "Ada")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == "" {
		t.Fatal("empty user id")
	}

	stored, err := store.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.Name != "Ada" {
		t.Fatalf("name = %q", stored.Name)
	}
}

func TestCreateUserEmptyName(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)

	if _, err := eng.CreateUser(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestSubmit(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)
	user := mustCreateUser(t, eng)

	id, err := eng.Submit(context.Background(), user.ID, "ls -la")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	cmd, err := store.GetCommand(context.Background(), id)
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if cmd.Status != domain.StatusPending {
		t.Fatalf("status = %q", cmd.Status)
	}
	if cmd.Snapshot.Cwd != domain.SandboxRoot {
		t.Fatalf("snapshot cwd = %q", cmd.Snapshot.Cwd)
	}
}

func TestSubmitUnknownUser(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)

	_, err := eng.Submit(context.Background(), "ghost", "ls")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitEmptyText(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	user := mustCreateUser(t, eng)

	if _, err := eng.Submit(context.Background(), user.ID, "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSubmitFiresWake(t *testing.T) {
	hub := notify.NewHub()
	eng, _ := newTestEngine(t, nil, hub)
	user := mustCreateUser(t, eng)

	wake := hub.Subscribe(notify.DefaultChannel)
	if _, err := eng.Submit(context.Background(), user.ID, "ls"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("wake signal never arrived")
	}
}

func TestSubmitUsesConfiguredChannel(t *testing.T) {
	hub := notify.NewHub()
	eng, store := newTestEngine(t, nil, hub)
	user := mustCreateUser(t, eng)

	if err := store.SetConfig(context.Background(), notify.ConfigKey, "custom_channel"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	wake := hub.Subscribe("custom_channel")
	stale := hub.Subscribe(notify.DefaultChannel)

	if _, err := eng.Submit(context.Background(), user.ID, "ls"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("wake signal never arrived on configured channel")
	}
	select {
	case <-stale:
		t.Fatal("wake leaked to the default channel")
	default:
	}
}

func TestListRecentCapped(t *testing.T) {
	eng, _ := newTestEngineWithConfig(t, nil, nil, Config{ListLimit: 2})
	user := mustCreateUser(t, eng)

	var last int64
	for i := 0; i < 5; i++ {
		id, err := eng.Submit(context.Background(), user.ID, fmt.Sprintf("echo %d", i))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		last = id
	}

	commands, err := eng.ListRecent(context.Background(), user.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(commands) != 2 {
		t.Fatalf("len = %d, want 2", len(commands))
	}
	if commands[0].ID != last {
		t.Fatalf("first id = %d, want newest %d", commands[0].ID, last)
	}
}

func TestForkSeedsTargetEnvironment(t *testing.T) {
	eng, store := newTestEngine(t, nil, nil)
	source := mustCreateUser(t, eng)
	target := mustCreateUser(t, eng)

	// Give the source user a non-default environment, then submit so the
	// command freezes it.
	if err := store.SeedEnvironment(context.Background(), domain.Environment{
		UserID:    source.ID,
		Cwd:       "/home/sandbox/project",
		Env:       map[string]string{"MODE": "dev"},
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	id, err := eng.Submit(context.Background(), source.ID, "make build")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Target has prior state that must be fully overwritten.
	if err := store.SeedEnvironment(context.Background(), domain.Environment{
		UserID:    target.ID,
		Cwd:       "/home/sandbox/elsewhere",
		Env:       map[string]string{"OLD": "gone"},
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	env, err := eng.Fork(context.Background(), target.ID, id)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if env.Cwd != "/home/sandbox/project" {
		t.Fatalf("cwd = %q", env.Cwd)
	}

	stored, err := store.GetOrCreateEnvironment(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("get target env: %v", err)
	}
	if stored.Cwd != "/home/sandbox/project" || stored.Env["MODE"] != "dev" {
		t.Fatalf("target env = %+v", stored)
	}
	if _, ok := stored.Env["OLD"]; ok {
		t.Fatal("prior target state survived the fork")
	}
}

func TestForkMissingSourceCommand(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	target := mustCreateUser(t, eng)

	_, err := eng.Fork(context.Background(), target.ID, 999)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForkMissingTargetUser(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)

	_, err := eng.Fork(context.Background(), "ghost", 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplayEmptyRange(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeBackend{}, nil)
	user := mustCreateUser(t, eng)

	replayID, results, err := eng.Replay(context.Background(), user.ID, 1)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayID != "" || len(results) != 0 {
		t.Fatalf("replayID=%q results=%d, want empty", replayID, len(results))
	}
}

func TestReplayChainsDirectoryChanges(t *testing.T) {
	exec := &fakeBackend{}
	eng, store := newTestEngine(t, exec, nil)
	user := mustCreateUser(t, eng)

	first, err := eng.Submit(context.Background(), user.ID, "ls")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := eng.Submit(context.Background(), user.ID, "cd src"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := eng.Submit(context.Background(), user.ID, "ls"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	replayID, results, err := eng.Replay(context.Background(), user.ID, first)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	// The directory change executes logically, not through the backend.
	if len(exec.requests) != 2 {
		t.Fatalf("backend calls = %d, want 2", len(exec.requests))
	}
	if exec.requests[0].Dir != domain.SandboxRoot {
		t.Fatalf("first dir = %q", exec.requests[0].Dir)
	}
	want := filepath.Join(domain.SandboxRoot, "src")
	if exec.requests[1].Dir != want {
		t.Fatalf("second dir = %q, want %q", exec.requests[1].Dir, want)
	}
	if results[1].ExitCode != 0 || results[1].Output != "" {
		t.Fatalf("cd result = %+v", results[1])
	}

	persisted, err := store.ListReplayResults(context.Background(), replayID)
	if err != nil {
		t.Fatalf("list replay results: %v", err)
	}
	if len(persisted) != 3 {
		t.Fatalf("persisted = %d, want 3", len(persisted))
	}
	if persisted[0].SourceCommandID != first {
		t.Fatalf("seq 0 source = %d, want %d", persisted[0].SourceCommandID, first)
	}
}

func TestReplaySeedsFromFirstSnapshot(t *testing.T) {
	exec := &fakeBackend{}
	eng, store := newTestEngine(t, exec, nil)
	user := mustCreateUser(t, eng)

	if err := store.SeedEnvironment(context.Background(), domain.Environment{
		UserID:    user.ID,
		Cwd:       "/home/sandbox/deep",
		Env:       map[string]string{"TOKEN": "abc"},
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	id, err := eng.Submit(context.Background(), user.ID, "env")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, _, err := eng.Replay(context.Background(), user.ID, id); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(exec.requests) != 1 {
		t.Fatalf("backend calls = %d", len(exec.requests))
	}
	if exec.requests[0].Dir != "/home/sandbox/deep" {
		t.Fatalf("dir = %q", exec.requests[0].Dir)
	}
	if exec.requests[0].Env["TOKEN"] != "abc" {
		t.Fatalf("env = %v", exec.requests[0].Env)
	}
}

func TestReplayTokenizeFailure(t *testing.T) {
	exec := &fakeBackend{}
	eng, _ := newTestEngine(t, exec, nil)
	user := mustCreateUser(t, eng)

	id, err := eng.Submit(context.Background(), user.ID, `echo "unterminated`)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, results, err := eng.Replay(context.Background(), user.ID, id)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].ExitCode != domain.ExitFailure {
		t.Fatalf("exit = %d, want %d", results[0].ExitCode, domain.ExitFailure)
	}
	if len(exec.requests) != 0 {
		t.Fatal("backend must not run an untokenizable command")
	}
}

func TestReplayBackendFailurePropagatesExit(t *testing.T) {
	exec := &fakeBackend{run: func(req backend.Request) (backend.Result, error) {
		return backend.Result{ExitCode: 124, Output: "Timed out after 30s\n", TimedOut: true}, nil
	}}
	eng, _ := newTestEngine(t, exec, nil)
	user := mustCreateUser(t, eng)

	id, err := eng.Submit(context.Background(), user.ID, "sleep 999")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, results, err := eng.Replay(context.Background(), user.ID, id)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if results[0].ExitCode != domain.ExitTimeout {
		t.Fatalf("exit = %d", results[0].ExitCode)
	}
}

func newTestEngine(t *testing.T, exec backend.Backend, notifier notify.Notifier) (*Engine, *sqlite.Store) {
	return newTestEngineWithConfig(t, exec, notifier, Config{})
}

func newTestEngineWithConfig(t *testing.T, exec backend.Backend, notifier notify.Notifier, cfg Config) (*Engine, *sqlite.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logshell.db")
	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	eng, err := New(store, exec, notifier, cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, store
}

func mustCreateUser(t *testing.T, eng *Engine) domain.User {
	t.Helper()
	user, err := eng.CreateUser(context.Background(), "tester")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
