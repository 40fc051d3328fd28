package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestDoReturnsNilOnSuccess(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	defer d.Close()

	calls := 0
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, d.ErrorCount())
}

func TestDoRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer d.Close()

	calls := 0
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return timeoutErr{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReportsPermanentFailure(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	defer d.Close()

	boom := errors.New("chat not found")
	calls := 0
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "non-retryable errors are not retried")
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDoAfterCloseFails(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Error(t, d.Do(context.Background(), "x", "y", nil))
}

func TestEnqueueRunsAsynchronously(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2})

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, d.EnqueueTimeout(context.Background(), "callback.ack", "answerCallbackQuery", 0, func() error {
			ran.Add(1)
			return nil
		}))
	}
	d.Close()
	assert.Equal(t, int32(5), ran.Load())
	assert.ErrorIs(t, d.EnqueueTimeout(context.Background(), "a", "b", 0, func() error { return nil }), ErrQueueClosed)
}

func TestEnqueueTimeoutCapsRetries(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 50, RetryBackoff: 20 * time.Millisecond, MaxDuration: time.Minute})

	var calls atomic.Int32
	start := time.Now()
	require.NoError(t, d.EnqueueTimeout(context.Background(), "callback.ack", "answerCallbackQuery", 50*time.Millisecond, func() error {
		calls.Add(1)
		return timeoutErr{}
	}))
	d.Close()

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Less(t, calls.Load(), int32(50))
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestEnqueueTimeoutAbandonsSlowCall(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, MaxDuration: time.Minute})

	release := make(chan struct{})
	defer close(release)
	var second atomic.Bool
	start := time.Now()
	require.NoError(t, d.EnqueueTimeout(context.Background(), "callback.ack", "answerCallbackQuery", 50*time.Millisecond, func() error {
		<-release
		return nil
	}))
	require.NoError(t, d.EnqueueTimeout(context.Background(), "callback.ack", "answerCallbackQuery", 50*time.Millisecond, func() error {
		second.Store(true)
		return nil
	}))
	d.Close()

	assert.Less(t, time.Since(start), 2*time.Second, "worker waited for the stuck call")
	assert.True(t, second.Load())
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDoWaitsForSlowCall(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxDuration: 20 * time.Millisecond})
	defer d.Close()

	require.NoError(t, d.Do(context.Background(), "send.text", "sendMessage", func() error {
		time.Sleep(60 * time.Millisecond)
		return nil
	}))
}

func TestRedactRemovesToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AA-bb_cc/sendMessage": EOF`)
	msg := redact(err)
	assert.NotContains(t, msg, "123456:AA-bb_cc")
	assert.Contains(t, msg, "bot<redacted>")
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "timeout", classifyError(timeoutErr{}))
	assert.Equal(t, "http_4xx", classifyError(&tele.Error{Code: 403, Description: "blocked"}))
	assert.Equal(t, "http_5xx", classifyError(errors.New("telegram: internal error (502)")))
	assert.Equal(t, "unknown", classifyError(errors.New("weird")))
	assert.Equal(t, "cancelled", classifyError(context.Canceled))
	assert.Equal(t, "flood", classifyError(tele.FloodError{RetryAfter: 3}))
	assert.Empty(t, classifyError(nil))
	assert.Empty(t, redact(nil))
}

func TestBackoffPrefersFloodWait(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, RetryBackoff: 100 * time.Millisecond})
	defer d.Close()

	assert.Equal(t, 100*time.Millisecond, d.backoff(timeoutErr{}, 1))
	assert.Equal(t, 300*time.Millisecond, d.backoff(timeoutErr{}, 3))
	assert.Equal(t, 4*time.Second, d.backoff(tele.FloodError{RetryAfter: 4}, 1))
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	block := func() error {
		close(started)
		<-release
		return nil
	}
	require.NoError(t, d.EnqueueTimeout(context.Background(), "callback.ack", "answerCallbackQuery", 0, block))
	<-started
	require.NoError(t, d.EnqueueTimeout(context.Background(), "callback.ack", "answerCallbackQuery", 0, func() error { return nil }))
	assert.ErrorIs(t, d.EnqueueTimeout(context.Background(), "callback.ack", "answerCallbackQuery", 0, func() error { return nil }), ErrQueueFull)

	close(release)
	d.Close()
}
