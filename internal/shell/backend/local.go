package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxOutputBytes = 64 * 1024
	truncationSuffix      = "...[truncated]"
	killWaitDelay         = 2 * time.Second
)

// Local executes commands as native subprocesses via os/exec.
type Local struct{}

// NewLocal returns a native process execution backend.
func NewLocal() *Local {
	return &Local{}
}

// Run launches the argument vector as a subprocess in the requested
// directory with the requested environment overlay, bounded by the
// wall-clock timeout. Stdout and stderr are captured combined, truncated at
// the output ceiling.
func (l *Local) Run(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(req.Argv) == 0 {
		return Result{}, fmt.Errorf("argv is required")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxOutput := req.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutputBytes
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = mergedEnv(req.Env)
	cmd.WaitDelay = killWaitDelay

	output := newCappedBuffer(maxOutput)
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}

	waitErr := cmd.Wait()
	timedOut := runCtx.Err() == context.DeadlineExceeded

	text := output.String()
	if timedOut {
		return Result{
			ExitCode: 124,
			Output:   fmt.Sprintf("Timed out after %s\n", timeout) + text,
			TimedOut: true,
		}, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Output: text}, nil
		}
		return Result{}, fmt.Errorf("wait for command: %w", waitErr)
	}
	return Result{ExitCode: 0, Output: text}, nil
}

// mergedEnv overlays the snapshot variables on the process environment, the
// snapshot winning on conflicts. Keys are emitted sorted so executions are
// reproducible.
func mergedEnv(overlay map[string]string) []string {
	merged := map[string]string{}
	for _, entry := range os.Environ() {
		for i := 0; i < len(entry); i++ {
			if entry[i] == '=' {
				merged[entry[:i]] = entry[i+1:]
				break
			}
		}
	}
	for key, value := range overlay {
		merged[key] = value
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+merged[key])
	}
	return env
}

// cappedBuffer collects combined output up to a byte ceiling. Stdout and
// stderr write concurrently, so writes are serialized.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - len(b.buf)
	if remaining <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return string(b.buf) + truncationSuffix
	}
	return string(b.buf)
}

var _ Backend = (*Local)(nil)
