package chainobs

import (
	"context"

	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/types"
)

type observableFetcher struct {
	fetcher interfaces.ChainFetcher
}

var _ interfaces.ChainFetcher = (*observableFetcher)(nil)

func Wrap(fetcher interfaces.ChainFetcher) interfaces.ChainFetcher {
	return &observableFetcher{
		fetcher: fetcher,
	}
}

func (of *observableFetcher) Fetch(ctx context.Context, inst types.Instrument) (*types.RawChain, error) {
	op := logger.StartOperation(ctx, "chain.Fetch",
		"symbol", inst.Symbol,
		"kind", string(inst.Kind),
	)

	raw, err := of.fetcher.Fetch(op.GetContext(), inst)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}

	strikes := 0
	if raw.Filtered != nil {
		strikes = len(raw.Filtered.Data)
	}
	var timestamp string
	if raw.Records != nil {
		timestamp = raw.Records.Timestamp
	}
	op.End("timestamp", timestamp, "strikes", strikes)

	logger.DebugSkip(ctx, 1, "Option chain fetched",
		"symbol", inst.Symbol,
		"strikes", strikes,
	)
	return raw, nil
}
