// Package router turns the registry into telebot routes. Every route ends
// with one handler.handled line summarizing the update.
package router

import (
	"log/slog"
	"strings"

	"github.com/YouMeAI/YouMeCare/core/logger"
	tg "github.com/YouMeAI/YouMeCare/core/telegram"
	"github.com/YouMeAI/YouMeCare/core/telegram/callbacks"
	tghelpers "github.com/YouMeAI/YouMeCare/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// mediaEndpoints are the non-text message kinds that get a summary line
// and no reply.
var mediaEndpoints = []string{tele.OnPhoto, tele.OnDocument, tele.OnSticker, tele.OnVoice}

// Routes builds every route of the bot from reg.
func Routes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds)+2+len(mediaEndpoints))
	for name, cmd := range cmds {
		routes = append(routes, tg.Route{Endpoint: name, Handler: command(name, cmd.Handler)})
	}
	routes = append(routes,
		tg.Route{Endpoint: tele.OnCallback, Handler: callback(reg)},
		tg.Route{Endpoint: tele.OnText, Handler: text(reg)},
	)
	for _, ep := range mediaEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: media})
	}

	logger.TWire.Info("",
		slog.String("event", "routes.ready"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.CallbackKeys())),
		slog.Int("count", len(routes)),
	)
	return routes
}

func command(name string, h tele.HandlerFunc) tele.HandlerFunc {
	label := "command." + handlerName(name)
	return func(c tele.Context) error {
		return run(c, label, h)
	}
}

// callback acknowledges the press before dispatch so the client spinner
// stops even when the handler sends nothing.
func callback(reg *tg.Registry) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, _ := callbacks.ParseCallbackData(c.Callback())
		_ = tghelpers.Ack(c)

		label := "callback." + handlerName(key)
		keyAttr := slog.String("cb_key", key)
		if h, ok := reg.Callback(key); ok {
			return run(c, label, h, keyAttr)
		}
		fallback := reg.CallbackNotFound()
		if fallback == nil {
			finish(c, label, nil, true, keyAttr, slog.String("reason", "not_found"))
			return nil
		}
		return run(c, label, fallback, keyAttr, slog.String("reason", "not_found"))
	}
}

// text routes "/cmd args" typed as plain text to the command, the rest to
// the registry text fallback.
func text(reg *tg.Registry) tele.HandlerFunc {
	return func(c tele.Context) error {
		msg := strings.TrimSpace(c.Text())
		if strings.HasPrefix(msg, "/") {
			if name, cmd, ok := reg.LookupCommand(strings.Fields(msg)[0]); ok {
				return run(c, "command."+handlerName(name), cmd.Handler)
			}
		}
		if fb := reg.TextFallback(); fb != nil {
			return run(c, "text", fb)
		}
		finish(c, "text", nil, true)
		return nil
	}
}

func media(c tele.Context) error {
	finish(c, "media", nil, true)
	return nil
}

func handlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}
