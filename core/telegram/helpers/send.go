package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/YouMeAI/YouMeCare/core/logger"
	"github.com/YouMeAI/YouMeCare/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var (
	globalDispatcher atomic.Pointer[sender.Dispatcher]
	ackTimeout       atomic.Int64
)

// SetDispatcher wires the sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// SetAckTimeout bounds how long a queued callback acknowledgement may take.
func SetAckTimeout(d time.Duration) {
	ackTimeout.Store(int64(d))
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// sendAwait runs the call through the dispatcher retry policy and waits for it.
func sendAwait(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}
	err := disp.Do(BuildContext(c), action, endpoint, run)
	if errors.Is(err, sender.ErrQueueClosed) {
		return run()
	}
	return err
}

// sendQueued hands a best-effort call to the dispatcher workers. It never
// runs the call on the handler goroutine: with the queue full or closed
// the call is dropped.
func sendQueued(c tele.Context, action, endpoint string, timeout time.Duration, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		go func() { _ = run() }()
		return nil
	}

	ctx := BuildContext(c)
	err := disp.EnqueueTimeout(ctx, action, endpoint, timeout, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.drop",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return err
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	return sendAwait(c, "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
}

// SendWithMarkup sends raw text with an attached keyboard.
func SendWithMarkup(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if markup == nil {
		return SendText(c, text)
	}
	return SendText(c, text, &tele.SendOptions{ReplyMarkup: markup})
}

// Typing shows the "typing" chat action for the current chat.
func Typing(c tele.Context) error {
	return sendAwait(c, "send.typing", "sendChatAction", func() error {
		return c.Notify(tele.Typing)
	})
}

// Ack answers the current callback query without blocking the handler.
func Ack(c tele.Context) error {
	if c.Callback() == nil {
		return nil
	}
	return sendQueued(c, "callback.ack", "answerCallbackQuery", time.Duration(ackTimeout.Load()), func() error {
		return c.Respond()
	})
}
