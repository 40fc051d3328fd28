package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/YouMeAI/YouMeCare/core/logger"
	"github.com/YouMeAI/YouMeCare/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// execute runs j until it succeeds, fails permanently, runs out of
// attempts or hits its deadline.
func (d *Dispatcher) execute(j job) error {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	limit := d.opts.MaxDuration
	if j.timeout > 0 && j.timeout < limit {
		limit = j.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = call(runCtx, j); err == nil {
			d.logOK(ctx, j, attempt, start)
			return nil
		}
		if attempt == attempts || runCtx.Err() != nil || !netutil.ShouldRetry(err) {
			break
		}

		wait := d.backoff(err, attempt)
		logger.Debug(ctx, "tg.sender", "send.retry",
			slog.String("action", j.action),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", wait),
			slog.String("err_code", classifyError(err)),
		)
		if !sleep(runCtx, wait) {
			err = errors.Join(err, runCtx.Err())
			break
		}
	}

	d.failures.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail",
		slog.String("status", "fail"),
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
		slog.String("err", redact(err)),
		slog.String("err_code", classifyError(err)),
		slog.Duration("duration", time.Since(start)),
	)
	return err
}

// call runs one attempt. A detached job stops waiting when ctx ends; the
// abandoned call finishes on its own goroutine and its result is dropped.
func call(ctx context.Context, j job) error {
	if !j.detached {
		return j.run()
	}
	done := make(chan error, 1)
	go func() { done <- j.run() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s abandoned: %w", j.endpoint, ctx.Err())
	}
}

// backoff grows linearly with the attempt number. Flood control replies
// carry their own wait, which wins.
func (d *Dispatcher) backoff(err error, attempt int) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return d.opts.RetryBackoff * time.Duration(attempt)
}

func (d *Dispatcher) logOK(ctx context.Context, j job, attempt int, start time.Time) {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
		slog.Duration("duration", time.Since(start)),
	}
	if attempt > 1 {
		attrs = append(attrs, slog.Int("attempts", attempt))
		logger.Info(ctx, "tg.sender", "send.ok", attrs...)
		return
	}
	logger.Debug(ctx, "tg.sender", "send.ok", attrs...)
}

// sleep waits for d or until ctx ends; it reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
