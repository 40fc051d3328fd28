package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueClosed is returned once the dispatcher has been closed.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when the job buffer is saturated.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilRun = errors.New("telegram sender: nil run function")
)

// Options controls retries and the background worker pool.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on one call including retries.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// job is one outbound Bot API call. action names what the bot is doing
// (send.text, callback.ack), endpoint the Bot API method.
type job struct {
	ctx      context.Context
	action   string
	endpoint string
	timeout  time.Duration
	run      func() error
	// detached jobs are abandoned at their deadline even while a call is
	// in flight. Awaited replies are not, so their order is kept.
	detached bool
}

// Dispatcher runs outbound Telegram calls under one retry policy. Replies
// use Do so a dialog turn keeps its message order and sees failures;
// acknowledgements use Enqueue and never hold up the turn.
type Dispatcher struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	failures atomic.Uint64
}

// NewDispatcher starts the worker pool.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, jobs: make(chan job, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				_ = d.execute(j)
			}
		}()
	}
	return d
}

// Do runs the call on the caller's goroutine and returns the final error.
func (d *Dispatcher) Do(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilRun
	}
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}
	return d.execute(job{ctx: ctx, action: action, endpoint: endpoint, run: run})
}

// EnqueueTimeout hands the call to the worker pool. The job gets timeout,
// or MaxDuration when timeout is zero or larger; at that point the worker
// gives up on it, even mid-call, and takes the next job. run may be
// invoked more than once, so it must be safe to repeat. EnqueueTimeout
// never blocks: a full buffer yields ErrQueueFull.
func (d *Dispatcher) EnqueueTimeout(ctx context.Context, action, endpoint string, timeout time.Duration, run func() error) error {
	if run == nil {
		return errNilRun
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, timeout: timeout, run: run, detached: true}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns how many calls failed after all retries.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failures.Load()
}

// Close rejects new work, lets queued jobs finish and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
