package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
)

// Boundary fires the trading-window start and stop transitions on a cron
// schedule derived from a TradingCalendar.
type Boundary struct {
	cal     *TradingCalendar
	cron    *cron.Cron
	startID cron.EntryID
	endID   cron.EntryID
	running atomic.Bool
}

// NewBoundary registers the start and end jobs against tracker. The
// scheduler is not running until Start.
func NewBoundary(ctx context.Context, cal *TradingCalendar, tracker interfaces.Tracker) (*Boundary, error) {
	log := cronLogger{ctx: ctx}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cal.Location),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	startID, err := c.AddFunc(cal.StartSpec(), func() {
		tracker.StartTradingWindow(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule window start %q: %w", cal.StartSpec(), err)
	}
	endID, err := c.AddFunc(cal.EndSpec(), func() {
		tracker.StopTradingWindow(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule window end %q: %w", cal.EndSpec(), err)
	}

	return &Boundary{cal: cal, cron: c, startID: startID, endID: endID}, nil
}

func (b *Boundary) Start() {
	b.cron.Start()
	b.running.Store(true)
	logger.Info(context.Background(), "Trading window scheduler started",
		"window", b.cal.Describe(),
		"next_start", b.NextStart().Format(time.RFC3339),
		"next_end", b.NextEnd().Format(time.RFC3339))
}

// Stop halts the scheduler and waits for running jobs to return.
func (b *Boundary) Stop() {
	b.running.Store(false)
	<-b.cron.Stop().Done()
}

// Running reports whether the start and end triggers are armed.
func (b *Boundary) Running() bool {
	return b.running.Load()
}

func (b *Boundary) Describe() string {
	return b.cal.Describe()
}

// NextStart is the next scheduled window start, zero before Start.
func (b *Boundary) NextStart() time.Time {
	return b.cron.Entry(b.startID).Next
}

func (b *Boundary) NextEnd() time.Time {
	return b.cron.Entry(b.endID).Next
}

// cronLogger routes scheduler logs into the structured logger.
type cronLogger struct {
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug(l.ctx, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.ErrorWithErr(l.ctx, "cron: "+msg, err, keysAndValues...)
}
