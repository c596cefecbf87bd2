// Package domain defines the command lifecycle engine's core types: users,
// per-user environments, the append-only command log entry and its status
// state machine, and the snapshot captured at submission time.
package domain
