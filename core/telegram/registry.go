package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/YouMeAI/YouMeCare/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command shown in the bot menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
}

// Registry maps commands and callback keys to handlers. It is filled during
// bootstrap and read by the routers for every update.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]tele.HandlerFunc

	unknownCallback tele.HandlerFunc
	text            tele.HandlerFunc
}

// NewRegistry returns an empty registry. Unknown callbacks are logged and
// otherwise ignored until SetCallbackNotFound replaces that.
func NewRegistry() *Registry {
	return &Registry{
		commands:  map[string]Command{},
		callbacks: map[string]tele.HandlerFunc{},
		unknownCallback: func(c tele.Context) error {
			key := ""
			if cb := c.Callback(); cb != nil {
				key = cb.Unique
			}
			logger.LogEvent(context.Background(), logger.TWire, slog.LevelWarn, "callback.unknown", slog.String("cb_key", key))
			return nil
		},
	}
}

func slash(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// RegisterCommand adds name, with or without the leading slash.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	name = slash(name)
	if name == "" || cmd.Handler == nil || cmd.Description == "" {
		return fmt.Errorf("telegram: invalid command %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[name]; ok {
		return fmt.Errorf("telegram: command %s already registered", name)
	}
	r.commands[name] = cmd
	logger.LogEvent(context.Background(), logger.TWire, slog.LevelDebug, "register.command", slog.String("op", name))
	return nil
}

// LookupCommand resolves name to its canonical slash form.
func (r *Registry) LookupCommand(name string) (string, Command, bool) {
	name = slash(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	if !ok {
		return "", Command{}, false
	}
	return name, cmd, true
}

// Commands returns a copy of the registered commands keyed by name.
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// MenuCommands lists commands sorted by name, as sent to setMyCommands.
func (r *Registry) MenuCommands() []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// RegisterCallback binds an inline button key to h.
func (r *Registry) RegisterCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return fmt.Errorf("telegram: invalid callback %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.callbacks[key]; ok {
		return fmt.Errorf("telegram: callback %s already registered", key)
	}
	r.callbacks[key] = h
	return nil
}

// Callback returns the handler bound to key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// CallbackKeys returns the registered keys sorted.
func (r *Registry) CallbackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetCallbackNotFound handles presses whose key is not registered.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.unknownCallback = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unknownCallback
}

// SetTextFallback handles text that is not a known command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.text = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.text
}

// publishCommands pushes the commands to the Telegram menu.
func publishCommands(bot *tele.Bot, reg *Registry) {
	cmds := reg.MenuCommands()
	if err := bot.SetCommands(cmds); err != nil {
		logger.LogEvent(context.Background(), logger.TWire, slog.LevelError, "register.commands.fail",
			slog.String("err", err.Error()),
			slog.Int("count", len(cmds)),
		)
		return
	}
	logger.LogEvent(context.Background(), logger.TWire, slog.LevelInfo, "register.commands", slog.Int("count", len(cmds)))
}
