package domain

import (
	"path/filepath"
	"time"
)

// SandboxRoot is the default working directory for a freshly created
// environment.
const SandboxRoot = "/home/sandbox"

// Environment is the live per-user state: at most one row per user, always
// reflecting the cumulative effect of that user's executed commands up to the
// most recently completed one.
type Environment struct {
	UserID    string
	Cwd       string
	Env       map[string]string
	UpdatedAt time.Time
}

// NewEnvironment returns the default environment for a user: sandbox root
// cwd and an empty variable map.
func NewEnvironment(userID string) Environment {
	return Environment{
		UserID: userID,
		Cwd:    SandboxRoot,
		Env:    map[string]string{},
	}
}

// ChangeDirTarget reports whether argv is a directory-change operation and
// returns its target path. Only the two-token "cd <path>" form is
// recognized; a bare "cd" is executed like any other command and fails in
// the backend.
func ChangeDirTarget(argv []string) (string, bool) {
	if len(argv) == 2 && argv[0] == "cd" {
		return argv[1], true
	}
	return "", false
}

// ResolveDir resolves a cd target against a base directory. Absolute targets
// are cleaned; relative targets are joined to base.
func ResolveDir(base, target string) string {
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(base, target)
}
