package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"oi-tracker/internal/types"
)

type fakeTracker struct {
	mu       sync.Mutex
	current  map[string]types.Snapshot
	history  map[string][]types.Snapshot
	symbols  []string
	renewOK  bool
	refresh  int
	starts   int
	stops    int
	status   types.TrackerStatus
	startCtx context.Context
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		current: map[string]types.Snapshot{
			"NIFTY": {Symbol: "NIFTY", Timestamp: "12-May-2025 10:15:00", PutCallRatio: 1.5},
		},
		history: map[string][]types.Snapshot{
			"NIFTY": {{Symbol: "NIFTY", Timestamp: "12-May-2025 10:15:00"}},
			"TCS":   {},
		},
		symbols: []string{"NIFTY", "TCS"},
	}
}

func (f *fakeTracker) RefreshAll(ctx context.Context) types.RefreshReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
	return types.RefreshReport{SessionValid: true, Results: []types.InstrumentResult{{Symbol: "NIFTY", Outcome: types.OutcomeUpdated}}}
}

func (f *fakeTracker) RenewSession(ctx context.Context) bool { return f.renewOK }

func (f *fakeTracker) StartTradingWindow(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.startCtx = ctx
}

func (f *fakeTracker) StopTradingWindow(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeTracker) Startup(ctx context.Context) bool { return false }
func (f *fakeTracker) Status() types.TrackerStatus       { return f.status }

func (f *fakeTracker) Current(symbol string) (types.Snapshot, bool) {
	s, ok := f.current[symbol]
	return s, ok
}

func (f *fakeTracker) History(symbol string) ([]types.Snapshot, bool) {
	h, ok := f.history[symbol]
	return h, ok
}

func (f *fakeTracker) All() map[string]*types.Snapshot {
	out := make(map[string]*types.Snapshot)
	for _, sym := range f.symbols {
		if s, ok := f.current[sym]; ok {
			out[sym] = &s
		} else {
			out[sym] = nil
		}
	}
	return out
}

func (f *fakeTracker) Symbols() []string { return f.symbols }

type fakeSchedule struct{ next time.Time }

func (s fakeSchedule) Running() bool        { return true }
func (s fakeSchedule) Describe() string     { return "09:15:30-15:35:00 IST (1-5)" }
func (s fakeSchedule) NextStart() time.Time { return s.next }
func (s fakeSchedule) NextEnd() time.Time   { return s.next.Add(6 * time.Hour) }

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestCurrentRoute(t *testing.T) {
	h := NewServer(newFakeTracker(), nil, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/nifty")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var snap types.Snapshot
	decode(t, rec, &snap)
	if snap.Symbol != "NIFTY" || snap.PutCallRatio != 1.5 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS header, got %q", got)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/tcs")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != "TCS data not available yet" {
		t.Errorf("Unexpected error body %v", body)
	}
}

func TestHistoryRoute(t *testing.T) {
	h := NewServer(newFakeTracker(), nil, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/history/nifty")
	var hist []types.Snapshot
	decode(t, rec, &hist)
	if rec.Code != http.StatusOK || len(hist) != 1 {
		t.Errorf("Expected one NIFTY entry, got %d %v", rec.Code, hist)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/history/TCS")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected empty array for known symbol, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/history/infy")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown symbol, got %d", rec.Code)
	}
}

func TestAllRoute(t *testing.T) {
	h := NewServer(newFakeTracker(), nil, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/all")
	var all map[string]*types.Snapshot
	decode(t, rec, &all)
	if len(all) != 2 || all["NIFTY"] == nil || all["TCS"] != nil {
		t.Errorf("Unexpected all payload %s", rec.Body.String())
	}
}

func TestManualTriggers(t *testing.T) {
	tr := newFakeTracker()
	h := NewServer(tr, nil, nil).Handler()

	var resp actionResponse
	rec := doRequest(t, h, http.MethodPost, "/api/update")
	decode(t, rec, &resp)
	if !resp.Success || resp.Message != "Manual update completed" || resp.Report == nil {
		t.Errorf("Unexpected update response %+v", resp)
	}
	if tr.refresh != 1 {
		t.Errorf("Expected one refresh, got %d", tr.refresh)
	}

	resp = actionResponse{}
	rec = doRequest(t, h, http.MethodPost, "/api/refresh-session")
	decode(t, rec, &resp)
	if resp.Success || resp.Message != "Failed to refresh session" {
		t.Errorf("Unexpected refresh response %+v", resp)
	}

	tr.renewOK = true
	resp = actionResponse{}
	rec = doRequest(t, h, http.MethodPost, "/api/refresh-session")
	decode(t, rec, &resp)
	if !resp.Success || resp.Message != "Session refreshed" {
		t.Errorf("Unexpected refresh response %+v", resp)
	}

	doRequest(t, h, http.MethodGet, "/api/start-trading")
	doRequest(t, h, http.MethodGet, "/api/end-trading")
	if tr.starts != 1 || tr.stops != 1 {
		t.Errorf("Expected one start and one stop, got %d/%d", tr.starts, tr.stops)
	}
	if tr.startCtx.Done() != nil {
		t.Error("Expected manual start to run with a detached context")
	}

	rec = doRequest(t, h, http.MethodGet, "/api/update")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected GET /api/update to fall through to the symbol route, got %d", rec.Code)
	}
}

func TestHealthRoute(t *testing.T) {
	tr := newFakeTracker()
	expiry := time.Date(2025, 5, 12, 10, 23, 0, 0, time.UTC)
	tr.status = types.TrackerStatus{
		Session:        types.SessionStatus{Valid: true, Expiry: &expiry},
		UpdatesRunning: true,
		DataStatus:     map[string]string{"NIFTY": "available", "TCS": "unavailable"},
		LastUpdated:    map[string]string{"NIFTY": "12-May-2025 10:15:00", "TCS": ""},
	}
	next := time.Date(2025, 5, 13, 3, 45, 30, 0, time.UTC)
	h := NewServer(tr, nil, fakeSchedule{next: next}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/health")
	var body map[string]any
	decode(t, rec, &body)

	if body["status"] != "ok" || body["sessionValid"] != true || body["updatesRunning"] != true {
		t.Errorf("Unexpected health body %v", body)
	}
	if body["sessionExpiry"] != "2025-05-12T10:23:00Z" {
		t.Errorf("Unexpected session expiry %v", body["sessionExpiry"])
	}
	last := body["lastUpdated"].(map[string]any)
	if last["NIFTY"] != "12-May-2025 10:15:00" || last["TCS"] != nil {
		t.Errorf("Unexpected lastUpdated %v", last)
	}
	sched := body["schedulesActive"].(map[string]any)
	if sched["morningSchedule"] != true || sched["eveningSchedule"] != true {
		t.Errorf("Unexpected schedules %v", sched)
	}
	if body["nextStart"] != "2025-05-13T03:45:30Z" {
		t.Errorf("Unexpected next start %v", body["nextStart"])
	}
}

func TestIndexAndPreflight(t *testing.T) {
	h := NewServer(newFakeTracker(), nil, fakeSchedule{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/")
	var idx indexResponse
	decode(t, rec, &idx)
	if len(idx.Symbols) != 2 || idx.Schedule == "" || idx.Endpoints["history"] == "" {
		t.Errorf("Unexpected index %+v", idx)
	}

	rec = doRequest(t, h, http.MethodOptions, "/api/update")
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Expected allow-methods header")
	}
}

func TestStreamDeliversSnapshots(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer(newFakeTracker(), hub, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var greet struct {
		Type string                     `json:"type"`
		Data map[string]*types.Snapshot `json:"data"`
	}
	if err := conn.ReadJSON(&greet); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if greet.Type != "current" || greet.Data["NIFTY"] == nil {
		t.Errorf("Unexpected greeting %+v", greet)
	}

	// The greeting is written after registration, so the client is live.
	hub.Publish(types.Snapshot{Symbol: "TCS", Timestamp: "12-May-2025 10:18:00"})

	var msg struct {
		Type string         `json:"type"`
		Data types.Snapshot `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != "snapshot" || msg.Data.Symbol != "TCS" {
		t.Errorf("Unexpected stream message %+v", msg)
	}
	if hub.Clients() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.Clients())
	}
}
