package interfaces

import (
	"context"

	"oi-tracker/internal/types"
)

// ChainFetcher retrieves one instrument's raw option chain.
type ChainFetcher interface {
	Fetch(ctx context.Context, inst types.Instrument) (*types.RawChain, error)
}
