package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/YouMeAI/YouMeCare/core/config"
	"github.com/YouMeAI/YouMeCare/core/logger"
	coretelegram "github.com/YouMeAI/YouMeCare/core/telegram"
	"github.com/YouMeAI/YouMeCare/core/telegram/middleware"
	"github.com/YouMeAI/YouMeCare/core/telegram/router"
	"github.com/YouMeAI/YouMeCare/core/telegram/state"
	"github.com/YouMeAI/YouMeCare/internal/bot"
	"github.com/YouMeAI/YouMeCare/internal/completion"
	"github.com/YouMeAI/YouMeCare/internal/dialog"
	"github.com/YouMeAI/YouMeCare/internal/ops"
)

// Completer is what the app needs from a completion client.
type Completer interface {
	dialog.Completer
	Provider() string
	Model() string
	Close() error
}

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit   func(*coreconfig.Config) error
	NewCompleter func(ctx context.Context, cfg coreconfig.CompletionConfig) (Completer, error)
	Store        state.Store
}

// App holds everything wired by Run.
type App struct {
	Config     *coreconfig.Config
	Store      state.Store
	Completer  Completer
	Controller *dialog.Controller
	Bot        *bot.Bot
	Registry   *coretelegram.Registry
	Janitor    *state.Janitor
	Ops        *ops.Server
}

// Run initializes the logger, the completion client, the session store and
// the dialog controller, then registers the bot handlers.
func Run(ctx context.Context, opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	newCompleter := opts.NewCompleter
	if newCompleter == nil {
		newCompleter = func(ctx context.Context, c coreconfig.CompletionConfig) (Completer, error) {
			return completion.New(ctx, c)
		}
	}
	completer, err := newCompleter(ctx, cfg.Completion)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: completion client failed: %w", err)
	}

	store := opts.Store
	if store == nil {
		store = state.NewMemoryStore()
	}

	ctrl := dialog.New(store, completer, dialog.OptionsFromConfig(cfg))
	b := bot.New(ctrl)
	reg := coretelegram.NewRegistry()
	if err := b.Register(reg); err != nil {
		_ = completer.Close()
		return nil, fmt.Errorf("bootstrap: handler registration failed: %w", err)
	}

	app := &App{
		Config:     cfg,
		Store:      store,
		Completer:  completer,
		Controller: ctrl,
		Bot:        b,
		Registry:   reg,
		Janitor:    state.NewJanitor(store, cfg.Sessions.IdleTTL(), cfg.Sessions.SweepInterval()),
	}
	if cfg.Ops.Listen != "" {
		app.Ops = ops.New(ops.Sources{
			Store:    store,
			Provider: completer.Provider(),
			Model:    completer.Model(),
		})
	}

	logger.Info(ctx, "app", "bootstrap.ok",
		slog.String("provider", completer.Provider()),
		slog.String("model", completer.Model()),
		slog.Int("max_turns", cfg.Dialog.MaxTurns),
		slog.Duration("idle_ttl", cfg.Sessions.IdleTTL()),
		slog.Bool("ops", app.Ops != nil),
	)
	return app, nil
}

// TelegramRunOptions builds the runtime options for the Telegram adapter.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if a == nil || a.Config == nil {
		return coretelegram.RunOptions{}, fmt.Errorf("bootstrap: app is not initialized")
	}

	return coretelegram.RunOptions{
		Config:      a.Config,
		Registry:    a.Registry,
		Middlewares: middleware.Chain(),
		Routes:      router.Routes(a.Registry),
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt coretelegram.Runtime) error {
	a.Janitor.Start(ctx)
	if a.Ops == nil {
		return nil
	}
	if rt.Dispatcher != nil {
		a.Ops.SetSendErrors(rt.Dispatcher.ErrorCount)
	}
	if _, err := a.Ops.Start(ctx, a.Config.Ops.Listen); err != nil {
		a.Janitor.Stop()
		return fmt.Errorf("bootstrap: ops listen failed: %w", err)
	}
	return nil
}

func (a *App) onStop(_ context.Context, _ coretelegram.Runtime) error {
	a.Janitor.Stop()

	var firstErr error
	if a.Ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.Ops.Shutdown(shutdownCtx); err != nil {
			firstErr = fmt.Errorf("bootstrap: ops shutdown: %w", err)
		}
		cancel()
	}
	if err := a.Completer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("bootstrap: completion close: %w", err)
	}
	return firstErr
}
