package domain

import "time"

// User is a stable identity owning environments and commands. Created once,
// immutable thereafter.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
