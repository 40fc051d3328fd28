package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/YouMeAI/YouMeCare/core/logger"
	tghelpers "github.com/YouMeAI/YouMeCare/core/telegram/helpers"
	"github.com/YouMeAI/YouMeCare/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// run tags the update with label, calls h and logs the summary.
func run(c tele.Context, label string, h tele.HandlerFunc, extras ...slog.Attr) error {
	tghelpers.WithHandler(c, label)
	err := h(c)
	finish(c, label, err, false, extras...)
	return err
}

// finish writes the handler.handled line. skipped marks updates nothing handled.
func finish(c tele.Context, label string, err error, skipped bool, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, label)
	n := middleware.Read(c)

	status, outcome := "ok", "ok"
	switch {
	case err != nil:
		status, outcome = "fail", "fail"
	case skipped:
		status = "skip"
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", n.Messages),
		slog.Bool("kb", n.Keyboard),
		slog.Duration("duration", logger.RoundMS(time.Since(tghelpers.Received(c)))),
	}
	if n.Actions > 0 {
		attrs = append(attrs, slog.Int("actions", n.Actions))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errCode(err)),
		)
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", append(attrs, extras...)...)
}

// errCode names an error for grouping in logs.
func errCode(err error) string {
	var (
		apiErr *tele.Error
		panicV middleware.ErrPanic
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	case errors.As(err, &panicV):
		return "PANIC"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("TG_%d", apiErr.Code)
	}
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToUpper(strings.TrimLeft(name, "*"))
}
