package interfaces

import (
	"context"

	"oi-tracker/internal/types"
)

// SessionProvider owns the upstream browser-like session.
type SessionProvider interface {
	Acquire(ctx context.Context) bool
	EnsureValid(ctx context.Context) bool
	Invalidate()
	UserAgent() string
	Status() types.SessionStatus
	Restore(ctx context.Context) bool
}
