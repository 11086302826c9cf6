package sessionobs

import (
	"context"
	"time"

	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/trace"
	"oi-tracker/internal/types"
)

type observableSession struct {
	session interfaces.SessionProvider
}

var _ interfaces.SessionProvider = (*observableSession)(nil)

func Wrap(session interfaces.SessionProvider) interfaces.SessionProvider {
	return &observableSession{
		session: session,
	}
}

func (o *observableSession) Acquire(ctx context.Context) bool {
	ctx, span := trace.StartSpan(ctx, "session.Acquire")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Establishing new NSE session")

	ok := o.session.Acquire(ctx)
	if !ok {
		logger.WarnSkip(ctx, 1, "NSE session acquisition failed",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return false
	}

	logger.InfoSkip(ctx, 1, "NSE session established",
		"session_id", o.session.Status().ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true
}

// EnsureValid only opens a span; the fast path is too frequent to log.
func (o *observableSession) EnsureValid(ctx context.Context) bool {
	ctx, span := trace.StartSpan(ctx, "session.EnsureValid")
	defer span.End()

	ok := o.session.EnsureValid(ctx)
	if !ok {
		logger.WarnSkip(ctx, 1, "No valid NSE session available")
	}
	return ok
}

func (o *observableSession) Invalidate() {
	logger.DebugSkip(context.Background(), 1, "Invalidating NSE session",
		"session_id", o.session.Status().ID,
	)
	o.session.Invalidate()
}

func (o *observableSession) UserAgent() string {
	return o.session.UserAgent()
}

func (o *observableSession) Status() types.SessionStatus {
	return o.session.Status()
}

func (o *observableSession) Restore(ctx context.Context) bool {
	ctx, span := trace.StartSpan(ctx, "session.Restore")
	defer span.End()

	ok := o.session.Restore(ctx)
	logger.InfoSkip(ctx, 1, "Persisted session restore finished",
		"valid", ok,
	)
	return ok
}
