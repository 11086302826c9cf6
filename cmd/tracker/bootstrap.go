package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"oi-tracker/internal/api"
	"oi-tracker/internal/chain"
	"oi-tracker/internal/chain/chainobs"
	"oi-tracker/internal/eod"
	"oi-tracker/internal/eod/eodobs"
	"oi-tracker/internal/history"
	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/orchestrator"
	"oi-tracker/internal/session"
	"oi-tracker/internal/session/sessionobs"
	"oi-tracker/internal/store"
	"oi-tracker/internal/trace"
	"oi-tracker/internal/types"
)

// initializeSystem initializes environment and logger
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initializeTracing starts the tracer with this deployment's upstream,
// instruments and trading timezone as resource attributes. Tracing failures
// are logged and never fatal.
func initializeTracing(ctx context.Context, cfg *store.Config) {
	svc := trace.Service{
		Upstream: cfg.Upstream.BaseURL,
		Timezone: cfg.Location().String(),
	}
	for _, inst := range instrumentsFromConfig(cfg) {
		svc.Instruments = append(svc.Instruments, inst.Symbol)
	}
	if err := trace.Init(svc); err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize tracer", err)
	}
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

func instrumentsFromConfig(cfg *store.Config) []types.Instrument {
	out := make([]types.Instrument, 0, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		out = append(out, types.Instrument{
			Symbol: ic.Symbol,
			Kind:   types.Kind(ic.Kind),
		})
	}
	return out
}

// resolveDataPath places relative paths under the data directory.
func resolveDataPath(cfg *store.Config, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}

// initializeSessionStore opens the configured persistence backend. The
// returned close func is never nil.
func initializeSessionStore(ctx context.Context, cfg *store.Config) (session.Store, func(), error) {
	switch cfg.Session.Persistence {
	case "SQLITE":
		path := resolveDataPath(cfg, cfg.Session.SQLitePath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create session dir: %w", err)
		}
		st, err := session.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info(ctx, "Session persistence: SQLite", "path", path)
		return st, func() { st.Close() }, nil
	case "NONE":
		logger.Warn(ctx, "Session persistence disabled")
		return session.NopStore{}, func() {}, nil
	default:
		path := resolveDataPath(cfg, cfg.Session.File)
		logger.Info(ctx, "Session persistence: file", "path", path)
		return session.NewFileStore(path), func() {}, nil
	}
}

// initializeSession builds the session manager with observability. The raw
// manager is returned too because the API client shares its cookie jar.
func initializeSession(cfg *store.Config, limiter *rate.Limiter, st session.Store) (*session.Manager, interfaces.SessionProvider, error) {
	mgr, err := session.NewManager(session.Options{
		BaseURL:        cfg.Upstream.BaseURL,
		UserAgents:     cfg.Session.UserAgents,
		BlockedTitles:  cfg.Session.BlockedTitles,
		TTL:            cfg.Session.TTL,
		StepDelay:      cfg.Session.StepDelay,
		RedirectDelay:  cfg.Session.RedirectDelay,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		AcquirePolicy: api.RetryPolicy{
			MaxAttempts: cfg.Session.AcquireAttempts,
			Backoff:     api.ExponentialBackoff(cfg.Session.StepDelay, cfg.Session.TTL/4),
		},
		Limiter: limiter,
		Store:   st,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	return mgr, sessionobs.Wrap(mgr), nil
}

// initializeFetcher builds the option-chain fetcher with observability
func initializeFetcher(cfg *store.Config, mgr *session.Manager, provider interfaces.SessionProvider, limiter *rate.Limiter) interfaces.ChainFetcher {
	client := api.NewClient(
		api.WithBaseURL(cfg.Upstream.BaseURL),
		api.WithTimeout(cfg.Upstream.RequestTimeout),
		api.WithCookieJar(mgr.Jar()),
		api.WithRateLimiter(limiter),
		api.WithLogging(logger.IsDebugEnabled()),
	)
	policy := api.RetryPolicy{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		Backoff:     api.LinearBackoff(cfg.Fetch.RetryUnit),
	}
	return chainobs.Wrap(chain.NewFetcher(client, provider, policy))
}

// initializeExporter returns the EOD exporter, or nil when disabled
func initializeExporter(ctx context.Context, cfg *store.Config) interfaces.EodExporter {
	if !cfg.EOD.Enabled {
		logger.Info(ctx, "End-of-day export disabled")
		return nil
	}
	return eodobs.Wrap(eod.NewExporter(cfg.DataDir, cfg.Location()))
}

// initializeOrchestrator wires the tracker and its trading calendar
func initializeOrchestrator(ctx context.Context, cfg *store.Config, provider interfaces.SessionProvider, fetcher interfaces.ChainFetcher) (*orchestrator.Orchestrator, *orchestrator.TradingCalendar, error) {
	cal, err := orchestrator.NewTradingCalendar(cfg.Location(), cfg.Window.Start, cfg.Window.End, cfg.Window.Weekdays)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid trading window: %w", err)
	}

	instruments := instrumentsFromConfig(cfg)
	symbols := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		symbols = append(symbols, inst.Symbol)
	}

	orch := orchestrator.New(provider, fetcher, history.New(cfg.Refresh.HistoryCapacity, symbols...), orchestrator.Options{
		Instruments:          instruments,
		RefreshInterval:      cfg.Refresh.Interval,
		RenewalInterval:      cfg.Refresh.SessionRenewal,
		PostSessionDelay:     cfg.Refresh.PostSessionDelay,
		InterInstrumentDelay: cfg.Refresh.InterInstrumentDelay,
		Calendar:             cal,
		Exporter:             initializeExporter(ctx, cfg),
	})

	logger.Info(ctx, "Tracker configured",
		"instruments", symbols,
		"window", cal.Describe(),
		"refresh_interval", cfg.Refresh.Interval.String(),
		"session_renewal", cfg.Refresh.SessionRenewal.String())
	return orch, cal, nil
}
