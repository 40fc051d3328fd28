package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/YouMeAI/YouMeCare/core/buildinfo"
	coreconfig "github.com/YouMeAI/YouMeCare/core/config"
)

var (
	// L is the base logger; prefer the context-first helpers below.
	L *slog.Logger

	// TG logs Telegram transport events.
	TG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
)

var (
	mu       sync.Mutex
	started  bool
	stopped  bool
	out      *sink
	files    []io.Closer
	level    slog.LevelVar
	debugs   sampler
	traceAll bool
)

// Until InitLogger runs, component loggers drop records.
func init() {
	setBase(slog.New(slog.NewTextHandler(io.Discard, nil)))
	debugs.set(1, 50)
}

func setBase(l *slog.Logger) {
	L = l
	TG = l.With("component", "tg")
	TWire = l.With("component", "tg.wire")
}

// settings is the logging section reduced to what the handler needs.
type settings struct {
	format  logFormat
	level   slog.Level
	order   []string
	num     int
	den     int
	file    string
	profile string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{format: formatJSON, level: slog.LevelInfo, order: defaultKeyOrder, num: 1, den: 50, profile: "prod"}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}
	if lc.DebugSample != "" {
		if num, den, ok := parseRatio(lc.DebugSample); ok {
			s.num, s.den = num, den
		}
	}
	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

// InitLogger installs the structured logger. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}

	s := settingsFrom(cfg)
	outputs := []io.Writer{os.Stdout}
	if s.file != "" {
		if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
			return fmt.Errorf("logger: create log dir: %w", err)
		}
		f, err := os.OpenFile(s.file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("logger: open log file: %w", err)
		}
		outputs = append(outputs, f)
		files = append(files, f)
	}

	level.Set(s.level)
	debugs.set(s.num, s.den)
	traceAll = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))
	out = newSink(outputs, 1024)

	base := slog.New(newEventHandler(out, s.format, &level, s.order))
	slog.SetDefault(base)
	setBase(base)
	started = true

	build := buildinfo.Read()
	attrs := []slog.Attr{
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", build.Version),
		slog.String("build_commit", build.Commit),
		slog.String("build_time", build.Date),
		slog.String("cfg_profile", s.profile),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("provider", cfg.Completion.Provider),
			slog.String("model", cfg.Completion.Model),
			slog.String("mode", cfg.Telegram.RunMode),
		)
	}
	base.With("component", "app").LogAttrs(context.Background(), slog.LevelInfo, "", attrs...)
	return nil
}

// Shutdown flushes pending lines and closes log files. It is idempotent.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if stopped || !started {
		return nil
	}
	stopped = true

	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
	}
	for _, c := range files {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return traceAll || debugs.allow()
}
