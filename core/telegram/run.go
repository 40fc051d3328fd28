package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/YouMeAI/YouMeCare/core/config"
	"github.com/YouMeAI/YouMeCare/core/logger"
	tghelpers "github.com/YouMeAI/YouMeCare/core/telegram/helpers"
	tgsender "github.com/YouMeAI/YouMeCare/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Route binds a handler to a telebot endpoint such as "/start" or tele.OnText.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// Dispatcher is built from Config.Sender when nil.
	Dispatcher *tgsender.Dispatcher

	Middlewares []tele.MiddlewareFunc
	Routes      []Route

	// KeepWebhook skips the deleteWebhook call made before long polling.
	KeepWebhook bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to see of the running bot.
type Runtime struct {
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// SenderOptions converts the sender config section into dispatcher options.
func SenderOptions(cfg coreconfig.SenderConfig) tgsender.Options {
	return tgsender.Options{
		QueueSize:    cfg.QueueSize,
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		MaxDuration:  time.Duration(cfg.MaxDurationMS) * time.Millisecond,
	}
}

// RunTelegram connects the bot, serves updates until ctx ends and then
// drains outbound sends. A cancelled ctx is a clean stop.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	poller := newPoller(cfg)
	started := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: newHTTPClient(pollTimeout(poller)),
		OnError: func(err error, c tele.Context) {
			lctx := context.Background()
			if c != nil {
				lctx = tghelpers.BuildContext(c)
			}
			logger.Error(lctx, "tg", "bot.error", slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: connect: %w", err)
	}
	announce(ctx, bot, poller, time.Since(started), !opts.KeepWebhook)

	disp := opts.Dispatcher
	if disp == nil {
		disp = tgsender.NewDispatcher(SenderOptions(cfg.Sender))
	}
	tghelpers.SetDispatcher(disp)
	tghelpers.SetAckTimeout(cfg.Sender.AckTimeout())
	rt := Runtime{Dispatcher: disp, Registry: reg}
	release := func() {
		disp.Close()
		tghelpers.SetDispatcher(nil)
	}

	bot.Use(opts.Middlewares...)
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	publishCommands(bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	serve(ctx, bot)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	release()
	logger.TG.Info("", slog.String("event", "stopped"), slog.Uint64("count", disp.ErrorCount()))

	if stopErr != nil {
		return stopErr
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serve blocks until ctx ends or the poller stops by itself.
func serve(ctx context.Context, bot *tele.Bot) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}
}

func pollTimeout(p tele.Poller) time.Duration {
	if lp, ok := p.(*tele.LongPoller); ok {
		return lp.Timeout
	}
	return 0
}

// announce logs the update mode. A webhook left over from an earlier
// deployment blocks getUpdates, so long polling removes it first.
func announce(ctx context.Context, bot *tele.Bot, p tele.Poller, took time.Duration, clearHook bool) {
	switch p := p.(type) {
	case *tele.Webhook:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	case *tele.LongPoller:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", "polling"),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		if !clearHook {
			return
		}
		if err := bot.RemoveWebhook(false); err != nil {
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "webhook.delete",
				slog.String("status", "fail"),
				slog.String("err", strings.ReplaceAll(err.Error(), bot.Token, "<redacted>")),
			)
		}
	}
}
