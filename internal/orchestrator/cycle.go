package orchestrator

import (
	"context"
	"sync"
	"time"

	"oi-tracker/internal/logger"
)

// Cycle runs fn every interval until stopped. Start and Stop are
// idempotent. Stop prevents future runs only; a run already in progress
// completes with a context that is not cancelled by Stop.
type Cycle struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCycle(name string, interval time.Duration, fn func(ctx context.Context)) *Cycle {
	return &Cycle{name: name, interval: interval, fn: fn}
}

// Start launches the loop. It reports false if the cycle was already running.
// The loop is detached from ctx cancellation but keeps its values.
func (c *Cycle) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return false
	}
	if c.interval <= 0 {
		logger.Warn(ctx, "Periodic cycle has no interval, not starting", "cycle", c.name)
		return false
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.loop(loopCtx, done)

	logger.Info(ctx, "Periodic cycle started", "cycle", c.name, "interval", c.interval.String())
	return true
}

// Stop cancels future runs. It reports false if the cycle was not running.
func (c *Cycle) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil

	logger.Info(context.Background(), "Periodic cycle stopped", "cycle", c.name)
	return true
}

// Running reports whether the loop is scheduled.
func (c *Cycle) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Wait blocks until the most recently started loop has exited.
func (c *Cycle) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Cycle) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop racing with the tick wins.
			if ctx.Err() != nil {
				return
			}
			c.fn(context.WithoutCancel(ctx))
		}
	}
}
