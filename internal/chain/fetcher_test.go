package chain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"oi-tracker/internal/api"
	"oi-tracker/internal/types"
)

type fakeSession struct {
	valid       bool
	ensureOK    bool
	ensures     int
	acquires    int
	invalidates int
}

func (s *fakeSession) Acquire(ctx context.Context) bool {
	s.acquires++
	s.valid = true
	return true
}

func (s *fakeSession) EnsureValid(ctx context.Context) bool {
	s.ensures++
	return s.ensureOK
}

func (s *fakeSession) Invalidate()                      { s.invalidates++; s.valid = false }
func (s *fakeSession) UserAgent() string                { return "test-agent" }
func (s *fakeSession) Status() types.SessionStatus      { return types.SessionStatus{Valid: s.valid} }
func (s *fakeSession) Restore(ctx context.Context) bool { return false }

const sampleChain = `{"records":{"timestamp":"12-May-2025 10:15:00","underlyingValue":3540.65},"filtered":{"data":[],"CE":{"totOI":2},"PE":{"totOI":3}}}`

func newTestFetcher(srv *httptest.Server, s *fakeSession) *Fetcher {
	client := api.NewClient(api.WithBaseURL(srv.URL))
	return NewFetcher(client, s, api.RetryPolicy{MaxAttempts: 3, Backoff: api.LinearBackoff(0)})
}

func TestEndpoint(t *testing.T) {
	if got := Endpoint(types.Instrument{Symbol: "NIFTY", Kind: types.KindIndex}); got != "/api/option-chain-indices?symbol=NIFTY" {
		t.Errorf("Unexpected index endpoint %s", got)
	}
	if got := Endpoint(types.Instrument{Symbol: "M&M", Kind: types.KindEquity}); got != "/api/option-chain-equities?symbol=M%26M" {
		t.Errorf("Unexpected equity endpoint %s", got)
	}
}

func TestFetchSuccess(t *testing.T) {
	var gotPath, gotUA, gotReferer, gotOrigin string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		gotOrigin = r.Header.Get("Origin")
		w.Write([]byte(sampleChain))
	}))
	defer srv.Close()

	s := &fakeSession{ensureOK: true}
	raw, err := newTestFetcher(srv, s).Fetch(context.Background(), types.Instrument{Symbol: "TCS", Kind: types.KindEquity})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if raw.Records.Timestamp != "12-May-2025 10:15:00" {
		t.Errorf("Unexpected timestamp %s", raw.Records.Timestamp)
	}
	if gotPath != "/api/option-chain-equities?symbol=TCS" {
		t.Errorf("Unexpected path %s", gotPath)
	}
	if gotUA != "test-agent" {
		t.Errorf("Expected session user agent, got %s", gotUA)
	}
	if gotReferer != srv.URL+"/option-chain" || gotOrigin != srv.URL {
		t.Errorf("Unexpected referer/origin %s %s", gotReferer, gotOrigin)
	}
	if s.invalidates != 0 || s.acquires != 0 {
		t.Errorf("Expected no renewal on success, got invalidates=%d acquires=%d", s.invalidates, s.acquires)
	}
}

func TestFetchRetriesWithRenewal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(sampleChain))
	}))
	defer srv.Close()

	s := &fakeSession{ensureOK: true}
	if _, err := newTestFetcher(srv, s).Fetch(context.Background(), types.Instrument{Symbol: "NIFTY", Kind: types.KindIndex}); err != nil {
		t.Fatalf("Expected third attempt to succeed, got %v", err)
	}
	if s.invalidates != 2 || s.acquires != 2 {
		t.Errorf("Expected 2 invalidate/acquire pairs, got %d/%d", s.invalidates, s.acquires)
	}
	if s.ensures != 3 {
		t.Errorf("Expected EnsureValid per attempt, got %d", s.ensures)
	}
}

func TestFetchExhaustedReturnsNoData(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// 200 with an empty body is not a success.
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &fakeSession{ensureOK: true}
	raw, err := newTestFetcher(srv, s).Fetch(context.Background(), types.Instrument{Symbol: "RELIANCE", Kind: types.KindEquity})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Expected ErrNoData, got %v", err)
	}
	if raw != nil {
		t.Error("Expected nil chain on failure")
	}
	if hits.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits.Load())
	}
}

func TestFetchSessionUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s := &fakeSession{ensureOK: false}
	if _, err := newTestFetcher(srv, s).Fetch(context.Background(), types.Instrument{Symbol: "TCS", Kind: types.KindEquity}); !errors.Is(err, ErrNoData) {
		t.Fatalf("Expected ErrNoData, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no data request without a session, got %d", hits.Load())
	}
}

func TestFetchBackoffGrowsLinearly(t *testing.T) {
	const unit = 25 * time.Millisecond
	var mu sync.Mutex
	var hits []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &fakeSession{ensureOK: true}
	client := api.NewClient(api.WithBaseURL(srv.URL))
	f := NewFetcher(client, s, api.RetryPolicy{MaxAttempts: 3, Backoff: api.LinearBackoff(unit)})
	if _, err := f.Fetch(context.Background(), types.Instrument{Symbol: "NIFTY", Kind: types.KindIndex}); !errors.Is(err, ErrNoData) {
		t.Fatalf("Expected ErrNoData, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", len(hits))
	}
	if gap := hits[1].Sub(hits[0]); gap < unit {
		t.Errorf("Expected at least %v before the second attempt, got %v", unit, gap)
	}
	if gap := hits[2].Sub(hits[1]); gap < 2*unit {
		t.Errorf("Expected at least %v before the third attempt, got %v", 2*unit, gap)
	}
}
