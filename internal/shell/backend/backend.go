// Package backend defines the execution capability: running one argument
// vector against a given cwd/env pair and returning its exit status and
// captured output. Implementations are pluggable; isolation beyond
// timeout and output limits is the backend's concern, never the engine's.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable signals the execution capability cannot be reached at all.
// The worker releases the claim back to pending so another attempt can run.
var ErrUnavailable = errors.New("execution backend unavailable")

// Request carries everything a backend needs to run one command: the
// argument vector and the frozen snapshot state.
type Request struct {
	Argv           []string
	Dir            string
	Env            map[string]string
	Timeout        time.Duration
	MaxOutputBytes int
}

// Result is one finished execution.
type Result struct {
	ExitCode int
	Output   string
	TimedOut bool
}

// Backend runs one command against a given cwd/env pair.
type Backend interface {
	Run(ctx context.Context, req Request) (Result, error)
}
