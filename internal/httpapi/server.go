package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/types"
)

// Schedule is the boundary scheduler as seen by the health and index routes.
type Schedule interface {
	Running() bool
	Describe() string
	NextStart() time.Time
	NextEnd() time.Time
}

// Server serves read access to the tracked snapshots plus the manual
// lifecycle triggers.
type Server struct {
	tracker  interfaces.Tracker
	hub      *Hub
	schedule Schedule
}

// NewServer creates the API server. hub and schedule may be nil.
func NewServer(tracker interfaces.Tracker, hub *Hub, schedule Schedule) *Server {
	return &Server{tracker: tracker, hub: hub, schedule: schedule}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/all", s.handleAll)
	mux.HandleFunc("GET /api/history/{symbol}", s.handleHistory)
	mux.HandleFunc("GET /api/{symbol}", s.handleCurrent)
	mux.HandleFunc("POST /api/update", s.handleUpdate)
	mux.HandleFunc("POST /api/refresh-session", s.handleRefreshSession)
	mux.HandleFunc("GET /api/start-trading", s.handleStartTrading)
	mux.HandleFunc("GET /api/end-trading", s.handleEndTrading)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS(s.tracker.All))
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorWithErr(context.Background(), "Encoding JSON response failed", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type indexResponse struct {
	Message   string            `json:"message"`
	Symbols   []string          `json:"symbols"`
	Endpoints map[string]string `json:"endpoints"`
	Schedule  string            `json:"schedule,omitempty"`
}

type schedulesActive struct {
	MorningSchedule bool `json:"morningSchedule"`
	EveningSchedule bool `json:"eveningSchedule"`
}

type healthResponse struct {
	Status                string               `json:"status"`
	SessionValid          bool                 `json:"sessionValid"`
	SessionExpiry         *time.Time           `json:"sessionExpiry"`
	SessionAcquiredAt     *time.Time           `json:"sessionAcquiredAt,omitempty"`
	UpdatesRunning        bool                 `json:"updatesRunning"`
	SessionRefreshRunning bool                 `json:"sessionRefreshRunning"`
	InTradingWindow       bool                 `json:"inTradingWindow"`
	SchedulesActive       schedulesActive      `json:"schedulesActive"`
	NextStart             *time.Time           `json:"nextStart,omitempty"`
	NextEnd               *time.Time           `json:"nextEnd,omitempty"`
	DataStatus            map[string]string    `json:"dataStatus"`
	LastUpdated           map[string]*string   `json:"lastUpdated"`
	LastRefresh           *types.RefreshReport `json:"lastRefresh,omitempty"`
}

// actionResponse is the result of a manual trigger.
type actionResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Report  *types.RefreshReport `json:"report,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := indexResponse{
		Message: "NSE Option Chain OI API",
		Symbols: s.tracker.Symbols(),
		Endpoints: map[string]string{
			"individual":     "/api/{symbol}",
			"history":        "/api/history/{symbol}",
			"all":            "/api/all",
			"health":         "/health",
			"stream":         "/ws",
			"update":         "POST /api/update",
			"refreshSession": "POST /api/refresh-session",
			"startTrading":   "GET /api/start-trading",
			"endTrading":     "GET /api/end-trading",
		},
	}
	if s.schedule != nil {
		resp.Schedule = s.schedule.Describe()
	}
	writeJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Status()
	resp := healthResponse{
		Status:                "ok",
		SessionValid:          st.Session.Valid,
		SessionExpiry:         st.Session.Expiry,
		SessionAcquiredAt:     st.Session.AcquiredAt,
		UpdatesRunning:        st.UpdatesRunning,
		SessionRefreshRunning: st.SessionRefreshRunning,
		InTradingWindow:       st.InWindow,
		DataStatus:            st.DataStatus,
		LastUpdated:           make(map[string]*string, len(st.LastUpdated)),
		LastRefresh:           st.LastRefresh,
	}
	for sym, ts := range st.LastUpdated {
		if ts == "" {
			resp.LastUpdated[sym] = nil
			continue
		}
		v := ts
		resp.LastUpdated[sym] = &v
	}
	if s.schedule != nil && s.schedule.Running() {
		resp.SchedulesActive = schedulesActive{MorningSchedule: true, EveningSchedule: true}
		if next := s.schedule.NextStart(); !next.IsZero() {
			resp.NextStart = &next
		}
		if next := s.schedule.NextEnd(); !next.IsZero() {
			resp.NextEnd = &next
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.tracker.All())
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	snap, ok := s.tracker.Current(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s data not available yet", symbol))
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	hist, known := s.tracker.History(symbol)
	if !known {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s history not available", symbol))
		return
	}
	writeJSON(w, hist)
}

// Manual triggers run detached from the request context.

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	logger.Info(ctx, "Manual update requested")
	report := s.tracker.RefreshAll(ctx)
	writeJSON(w, actionResponse{Success: true, Message: "Manual update completed", Report: &report})
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	logger.Info(ctx, "Manual session refresh requested")
	if !s.tracker.RenewSession(ctx) {
		writeJSON(w, actionResponse{Success: false, Message: "Failed to refresh session"})
		return
	}
	writeJSON(w, actionResponse{Success: true, Message: "Session refreshed"})
}

func (s *Server) handleStartTrading(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	logger.Info(ctx, "Manual trading day start requested")
	s.tracker.StartTradingWindow(ctx)
	writeJSON(w, actionResponse{Success: true, Message: "Trading day started manually"})
}

func (s *Server) handleEndTrading(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	logger.Info(ctx, "Manual trading day end requested")
	s.tracker.StopTradingWindow(ctx)
	writeJSON(w, actionResponse{Success: true, Message: "Trading day ended manually"})
}
