// Package middleware holds the bot-wide handler wrappers: panic recovery,
// update receipt logging and reply counting.
package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"unicode/utf8"

	"github.com/YouMeAI/YouMeCare/core/logger"
	"github.com/YouMeAI/YouMeCare/core/telegram/callbacks"
	tghelpers "github.com/YouMeAI/YouMeCare/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ErrPanic wraps a value recovered from a handler.
type ErrPanic struct{ Value any }

func (e ErrPanic) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Recover turns a handler panic into an error so one bad update does not
// take the poller down.
func Recover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err = ErrPanic{Value: r}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("err", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}()
		return next(c)
	}
}

// Receive builds the update context and writes a sampled debug line with
// the update's shape. Message text is private: only its length is logged.
func Receive(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.Begin(c)
		if logger.ShouldSampleDebug() {
			attrs := make([]slog.Attr, 0, 4)
			if ch := c.Chat(); ch != nil {
				attrs = append(attrs, slog.String("chat_type", string(ch.Type)))
			}
			if u := c.Sender(); u != nil && u.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", u.LanguageCode))
			}
			if cb := c.Callback(); cb != nil {
				key, _ := callbacks.ParseCallbackData(cb)
				attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 64)))
			} else if text := c.Text(); text != "" {
				attrs = append(attrs, slog.Int("text_len", utf8.RuneCountInString(text)))
			}
			logger.Debug(ctx, "tg", "update.received", attrs...)
		}
		return next(c)
	}
}

// Chain applies the wrappers in the order the bot installs them.
func Chain() []tele.MiddlewareFunc {
	return []tele.MiddlewareFunc{Recover, Receive, Count}
}
