package orchestrator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"oi-tracker/internal/api"
	"oi-tracker/internal/chain"
	"oi-tracker/internal/history"
	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/trace"
	"oi-tracker/internal/types"
)

// Options holds the cycle timing and the instrument list, in refresh order.
type Options struct {
	Instruments          []types.Instrument
	RefreshInterval      time.Duration
	RenewalInterval      time.Duration
	PostSessionDelay     time.Duration
	InterInstrumentDelay time.Duration
	Calendar             *TradingCalendar
	Exporter             interfaces.EodExporter
}

// Orchestrator owns the session, fetcher and history store and coordinates
// every mutation of them.
type Orchestrator struct {
	session interfaces.SessionProvider
	fetcher interfaces.ChainFetcher
	history *history.Store
	opts    Options

	refreshCycle *Cycle
	renewalCycle *Cycle

	// refreshMu serializes refresh runs from cycles and manual triggers.
	refreshMu  sync.Mutex
	mu         sync.RWMutex
	lastReport *types.RefreshReport
	listeners  []func(types.Snapshot)

	now func() time.Time
}

var _ interfaces.Tracker = (*Orchestrator)(nil)

func New(session interfaces.SessionProvider, fetcher interfaces.ChainFetcher, store *history.Store, opts Options) *Orchestrator {
	o := &Orchestrator{
		session: session,
		fetcher: fetcher,
		history: store,
		opts:    opts,
		now:     time.Now,
	}
	o.refreshCycle = NewCycle("refresh", opts.RefreshInterval, func(ctx context.Context) {
		o.RefreshAll(ctx)
	})
	o.renewalCycle = NewCycle("session-renewal", opts.RenewalInterval, func(ctx context.Context) {
		o.RenewSession(ctx)
	})
	return o
}

// OnSnapshot registers fn to receive every newly recorded snapshot.
func (o *Orchestrator) OnSnapshot(fn func(types.Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// RefreshAll ensures the session once, then fetches, reduces and records
// every instrument in order. Per-instrument failures are reported, never
// propagated.
func (o *Orchestrator) RefreshAll(ctx context.Context) types.RefreshReport {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	start := o.now()
	logger.Info(ctx, "Updating all instrument data", "instruments", len(o.opts.Instruments))

	report := types.RefreshReport{StartedAt: start.UnixMilli()}
	report.SessionValid = o.session.EnsureValid(ctx)
	if !report.SessionValid {
		logger.Warn(ctx, "Proceeding without a valid session; fetches will retry acquisition")
	}

	pauseErr := api.Sleep(ctx, o.opts.PostSessionDelay)
	for i, inst := range o.opts.Instruments {
		if pauseErr == nil && i > 0 {
			pauseErr = api.Sleep(ctx, o.opts.InterInstrumentDelay)
		}
		if pauseErr != nil {
			report.Results = append(report.Results, types.InstrumentResult{
				Symbol: inst.Symbol, Outcome: types.OutcomeNoData, Error: pauseErr.Error(),
			})
			continue
		}
		report.Results = append(report.Results, o.refreshInstrument(ctx, inst))
	}

	report.DurationMS = o.now().Sub(start).Milliseconds()
	o.mu.Lock()
	o.lastReport = &report
	o.mu.Unlock()

	logger.Info(ctx, "All instrument data update completed",
		"updated", report.Updated(),
		"duration_ms", report.DurationMS)
	return report
}

func (o *Orchestrator) refreshInstrument(ctx context.Context, inst types.Instrument) types.InstrumentResult {
	ctx, span := trace.StartSpan(ctx, "orchestrator.refreshInstrument", trace.SymbolAttr(inst.Symbol))
	defer span.End()

	res := types.InstrumentResult{Symbol: inst.Symbol}

	raw, err := o.fetcher.Fetch(ctx, inst)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch instrument data", err, "symbol", inst.Symbol)
		res.Outcome = types.OutcomeNoData
		res.Error = err.Error()
		return res
	}

	snap, err := chain.Reduce(raw, inst.Symbol)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, chain.ErrMissingTimestamp) {
			reason = "missing_timestamp"
		}
		logger.Warn(ctx, "Invalid data format received", "symbol", inst.Symbol, "reason", reason)
		res.Outcome = types.OutcomeInvalid
		res.Error = err.Error()
		return res
	}

	if !o.history.RecordIfNew(inst.Symbol, snap) {
		logger.Info(ctx, "Duplicate data detected, skipping", "symbol", inst.Symbol, "timestamp", snap.Timestamp)
		res.Outcome = types.OutcomeDuplicate
		return res
	}

	logger.Snapshot(ctx, snap.Symbol, snap.Timestamp, snap.UnderlyingValue, snap.PutCallRatio)
	o.notify(snap)
	res.Outcome = types.OutcomeUpdated
	return res
}

func (o *Orchestrator) notify(snap types.Snapshot) {
	o.mu.RLock()
	listeners := slices.Clone(o.listeners)
	o.mu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// RenewSession forces a fresh handshake.
func (o *Orchestrator) RenewSession(ctx context.Context) bool {
	return o.session.Acquire(ctx)
}

// StartTradingWindow clears history, acquires a fresh session, runs one
// refresh and starts both periodic cycles if they are not running.
func (o *Orchestrator) StartTradingWindow(ctx context.Context) {
	logger.Info(ctx, "Starting trading day data collection")

	o.history.ClearAll()
	logger.Info(ctx, "All instrument data cleared")

	o.session.Acquire(ctx)
	o.RefreshAll(ctx)

	o.refreshCycle.Start(ctx)
	o.renewalCycle.Start(ctx)

	logger.Info(ctx, "Trading day data collection started")
}

// StopTradingWindow cancels both cycles and writes the end-of-day export.
// In-flight runs are not interrupted.
func (o *Orchestrator) StopTradingWindow(ctx context.Context) {
	logger.Info(ctx, "Ending trading day data collection")

	o.refreshCycle.Stop()
	o.renewalCycle.Stop()

	if o.opts.Exporter != nil {
		if _, err := o.opts.Exporter.ExportDay(o.now(), o.history.Day()); err != nil {
			logger.ErrorWithErr(ctx, "End-of-day export failed", err)
		}
	}

	logger.Info(ctx, "Trading day data collection ended")
}

// Startup restores the persisted session and starts the trading window
// immediately when now already falls inside it.
func (o *Orchestrator) Startup(ctx context.Context) bool {
	o.session.Restore(ctx)

	if o.opts.Calendar == nil || !o.opts.Calendar.InWindow(o.now()) {
		logger.Info(ctx, "Current time is outside trading hours, no data collection started")
		return false
	}
	logger.Info(ctx, "Current time is within trading hours, starting data collection")
	o.StartTradingWindow(ctx)
	return true
}

// Shutdown stops both cycles without exporting.
func (o *Orchestrator) Shutdown() {
	o.refreshCycle.Stop()
	o.renewalCycle.Stop()
}

func (o *Orchestrator) Status() types.TrackerStatus {
	st := types.TrackerStatus{
		Session:               o.session.Status(),
		UpdatesRunning:        o.refreshCycle.Running(),
		SessionRefreshRunning: o.renewalCycle.Running(),
		DataStatus:            make(map[string]string),
		LastUpdated:           make(map[string]string),
	}
	if o.opts.Calendar != nil {
		st.InWindow = o.opts.Calendar.InWindow(o.now())
	}
	for _, sym := range o.history.Symbols() {
		st.DataStatus[sym] = "unavailable"
		if _, ok := o.history.Current(sym); ok {
			st.DataStatus[sym] = "available"
		}
		ts, _ := o.history.LastUpdated(sym)
		st.LastUpdated[sym] = ts
	}

	o.mu.RLock()
	if o.lastReport != nil {
		r := *o.lastReport
		st.LastRefresh = &r
	}
	o.mu.RUnlock()
	return st
}

func (o *Orchestrator) Current(symbol string) (types.Snapshot, bool) {
	return o.history.Current(symbol)
}

func (o *Orchestrator) History(symbol string) ([]types.Snapshot, bool) {
	return o.history.History(symbol)
}

func (o *Orchestrator) All() map[string]*types.Snapshot {
	return o.history.All()
}

func (o *Orchestrator) Symbols() []string {
	return o.history.Symbols()
}
