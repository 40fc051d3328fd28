// Package bot binds the dialog controller to Telegram updates.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/YouMeAI/YouMeCare/core/logger"
	tg "github.com/YouMeAI/YouMeCare/core/telegram"
	"github.com/YouMeAI/YouMeCare/core/telegram/callbacks"
	tghelpers "github.com/YouMeAI/YouMeCare/core/telegram/helpers"
	"github.com/YouMeAI/YouMeCare/core/telegram/keyboard"
	"github.com/YouMeAI/YouMeCare/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// maxMessageRunes is Telegram's limit for a single text message.
const maxMessageRunes = 4096

// Handler is the part of the dialog controller the bot needs.
type Handler interface {
	Handle(ctx context.Context, ev dialog.Event, out dialog.Replier) error
}

// Bot turns Telegram updates into dialog events.
type Bot struct {
	h Handler
}

// New wraps a dialog handler.
func New(h Handler) *Bot {
	return &Bot{h: h}
}

// Register installs /start, the button callbacks and the text fallback.
func (b *Bot) Register(reg *tg.Registry) error {
	if err := reg.RegisterCommand("/start", tg.Command{
		Handler:     b.OnStart,
		Description: "Start over",
	}); err != nil {
		return err
	}
	for _, payload := range dialog.Payloads {
		if err := reg.RegisterCallback(payload, b.OnButton); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(b.OnButton)
	reg.SetTextFallback(b.OnText)
	return nil
}

// OnStart handles the /start command.
func (b *Bot) OnStart(c tele.Context) error {
	return b.dispatch(c, dialog.Event{Kind: dialog.EventStart})
}

// OnButton handles any inline button press, known or not.
func (b *Bot) OnButton(c tele.Context) error {
	return b.dispatch(c, dialog.Event{Kind: dialog.EventButton, Payload: callbacks.CallbackKey(c)})
}

// OnText handles free text.
func (b *Bot) OnText(c tele.Context) error {
	return b.dispatch(c, dialog.Event{Kind: dialog.EventText, Text: c.Text()})
}

func (b *Bot) dispatch(c tele.Context, ev dialog.Event) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ev.UserID = sender.ID
	ctx := tghelpers.BuildContext(c)
	return b.h.Handle(ctx, ev, replier{c: c})
}

// replier sends dialog replies back to the chat of the current update.
type replier struct {
	c tele.Context
}

func (r replier) Typing(context.Context) error {
	return tghelpers.Typing(r.c)
}

func (r replier) Send(ctx context.Context, rep dialog.Reply) error {
	chunks := splitText(rep.Text, maxMessageRunes)
	if len(chunks) > 1 {
		logger.Debug(ctx, "tg", "send.split", slog.Int("count", len(chunks)))
	}
	for i, chunk := range chunks {
		var markup *tele.ReplyMarkup
		if i == len(chunks)-1 {
			markup = Markup(rep.Buttons)
		}
		if err := tghelpers.SendWithMarkup(r.c, chunk, markup); err != nil {
			return err
		}
	}
	return nil
}

// Markup converts dialog button rows to an inline keyboard. Payloads become
// the callback unique key so the router can look them up directly.
func Markup(rows [][]dialog.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]keyboard.Button, 0, len(rows))
	for _, row := range rows {
		r := make([]keyboard.Button, 0, len(row))
		for _, btn := range row {
			r = append(r, keyboard.Button{Label: btn.Label, Key: btn.Payload})
		}
		kb = append(kb, r)
	}
	return keyboard.Inline(kb...)
}

// splitText cuts text into pieces of at most limit runes, preferring line breaks.
func splitText(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		if nl := lastIndexRune(runes[:limit], '\n'); nl > limit/2 {
			cut = nl + 1
		}
		out = append(out, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
