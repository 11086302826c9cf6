package interfaces

import (
	"context"

	"oi-tracker/internal/types"
)

// Tracker is the surface the read API and the boundary scheduler drive.
type Tracker interface {
	RefreshAll(ctx context.Context) types.RefreshReport
	RenewSession(ctx context.Context) bool
	StartTradingWindow(ctx context.Context)
	StopTradingWindow(ctx context.Context)
	Startup(ctx context.Context) bool
	Status() types.TrackerStatus

	Current(symbol string) (types.Snapshot, bool)
	History(symbol string) ([]types.Snapshot, bool)
	All() map[string]*types.Snapshot
	Symbols() []string
}
