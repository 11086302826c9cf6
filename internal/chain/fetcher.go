package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"oi-tracker/internal/api"
	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/types"
)

// ErrNoData is returned by Fetch once every attempt has failed.
var ErrNoData = errors.New("no option-chain data")

var errSessionUnavailable = errors.New("failed to establish valid NSE session")

// Fetcher retrieves raw option chains through the shared session.
type Fetcher struct {
	client  *api.Client
	session interfaces.SessionProvider
	baseURL string
	policy  api.RetryPolicy
}

var _ interfaces.ChainFetcher = (*Fetcher)(nil)

// NewFetcher builds a fetcher. client must share the session's cookie jar.
func NewFetcher(client *api.Client, session interfaces.SessionProvider, policy api.RetryPolicy) *Fetcher {
	return &Fetcher{
		client:  client,
		session: session,
		baseURL: client.BaseURL(),
		policy:  policy,
	}
}

// Endpoint returns the option-chain path for inst.
func Endpoint(inst types.Instrument) string {
	q := url.Values{"symbol": {inst.Symbol}}.Encode()
	if inst.IsIndex() {
		return "/api/option-chain-indices?" + q
	}
	return "/api/option-chain-equities?" + q
}

// Fetch runs up to policy.MaxAttempts attempts. After a failed attempt the
// session is invalidated and re-acquired before the backoff.
func (f *Fetcher) Fetch(ctx context.Context, inst types.Instrument) (*types.RawChain, error) {
	endpoint := Endpoint(inst)
	logger.Debug(ctx, "Fetching option chain", "symbol", inst.Symbol, "endpoint", endpoint)

	var raw *types.RawChain
	err := f.policy.Run(ctx, func(ctx context.Context, attempt int) error {
		chain, err := f.attempt(ctx, endpoint)
		if err != nil {
			logger.Warn(ctx, "Error fetching option chain",
				"symbol", inst.Symbol, "attempt", attempt, "error", err)
			return err
		}
		raw = chain
		return nil
	}, func(ctx context.Context, attempt int, err error) {
		logger.Info(ctx, "Retrying fetch with a new session", "symbol", inst.Symbol, "attempt", attempt)
		f.session.Invalidate()
		f.session.Acquire(ctx)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w for %s: %w", ErrNoData, inst.Symbol, ctxErr)
		}
		logger.Error(ctx, "Max retries reached", "symbol", inst.Symbol)
		return nil, fmt.Errorf("%w for %s: %w", ErrNoData, inst.Symbol, err)
	}
	return raw, nil
}

func (f *Fetcher) attempt(ctx context.Context, endpoint string) (*types.RawChain, error) {
	if !f.session.EnsureValid(ctx) {
		return nil, errSessionUnavailable
	}

	resp, err := f.client.GET(ctx, endpoint, api.NSEDataHeaders(f.session.UserAgent(), f.baseURL))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invalid response: status %d", resp.StatusCode)
	}
	return Decode(resp.Body)
}

// Decode parses an option-chain body. Empty bodies and JSON null are rejected.
func Decode(body []byte) (*types.RawChain, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, errors.New("empty response body")
	}

	var raw types.RawChain
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse option chain: %w", err)
	}
	return &raw, nil
}
