package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/YouMeAI/YouMeCare/core/logger"
)

// Janitor periodically evicts idle sessions from a Store.
type Janitor struct {
	store    Store
	ttl      time.Duration
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewJanitor builds a janitor. A zero ttl makes Start a no-op.
func NewJanitor(store Store, ttl, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{store: store, ttl: ttl, interval: interval}
}

// Start launches the sweep loop until ctx is done or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	if j == nil || j.store == nil || j.ttl <= 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true

	logger.Info(ctx, "sessions", "janitor.start",
		slog.Duration("ttl", j.ttl),
		slog.Duration("interval", j.interval),
	)
	go j.loop(loopCtx, j.done)
}

// Stop cancels the loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j == nil {
		return
	}
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	cancel, done := j.cancel, j.done
	j.running = false
	j.mu.Unlock()

	cancel()
	<-done
}

func (j *Janitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) int {
	removed := j.store.SweepIdle(j.ttl)
	if removed > 0 {
		logger.Info(ctx, "sessions", "janitor.sweep",
			slog.Int("count", removed),
			slog.Int("sessions", j.store.Len()),
		)
	}
	return removed
}
