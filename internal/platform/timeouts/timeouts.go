// Package timeouts defines shared timeout constants used across processes.
// Centralizing these values prevents drift between process boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// Command caps the wall-clock execution time of one shell command unless a
// process overrides it.
const Command = 30 * time.Second

// StaleClaim is the claim age beyond which a running command with no
// terminal write is considered abandoned and requeued.
const StaleClaim = 5 * time.Minute

// Shutdown limits how long a long-running process waits for in-flight work
// during graceful shutdown.
const Shutdown = 5 * time.Second
