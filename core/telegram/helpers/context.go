package helpers

import (
	"context"
	"time"

	"github.com/YouMeAI/YouMeCare/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Keys under which per-update values live in tele.Context.
const (
	keyCtx      = "yc.ctx"
	keyReceived = "yc.received"
)

// IDs returns the update, user and chat identifiers of c. Missing parts are zero.
func IDs(c tele.Context) (updateID int, userID, chatID int64) {
	updateID = c.Update().ID
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}
	return updateID, userID, chatID
}

// Begin stamps the receipt time and builds the logging context for the
// update. Later calls return the stored context.
func Begin(c tele.Context) context.Context {
	if ctx, ok := c.Get(keyCtx).(context.Context); ok {
		return ctx
	}
	updateID, userID, chatID := IDs(c)
	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.TG)
	c.Set(keyCtx, ctx)
	c.Set(keyReceived, time.Now())
	return ctx
}

// BuildContext returns the logging context of the current update.
func BuildContext(c tele.Context) context.Context {
	return Begin(c)
}

// Received is when Begin first saw the update.
func Received(c tele.Context) time.Time {
	if t, ok := c.Get(keyReceived).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithHandler tags the update context with the handler serving it.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(Begin(c), handler)
	c.Set(keyCtx, ctx)
	return ctx
}
