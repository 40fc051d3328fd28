// Package dialog implements the per-user conversational script:
// menu, dialog with the completion service, feedback and upsell.
package dialog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	coreconfig "github.com/YouMeAI/YouMeCare/core/config"
	"github.com/YouMeAI/YouMeCare/core/logger"
	"github.com/YouMeAI/YouMeCare/core/telegram/state"
	"github.com/YouMeAI/YouMeCare/internal/completion"
)

// EventKind classifies inbound events.
type EventKind int

const (
	// EventStart is the /start command.
	EventStart EventKind = iota + 1
	// EventButton is an inline button press carrying a payload.
	EventButton
	// EventText is a free-text message.
	EventText
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventButton:
		return "button"
	case EventText:
		return "text"
	}
	return "unknown"
}

// Event is one inbound user action.
type Event struct {
	UserID  int64
	Kind    EventKind
	Payload string
	Text    string
}

// Button is an inline button: a label shown to the user and the payload sent back.
type Button struct {
	Label   string
	Payload string
}

// Reply is one outbound message with optional button rows.
type Reply struct {
	Text    string
	Buttons [][]Button
}

// Replier delivers outbound effects for the user that produced the event.
// Both calls block until the transport has accepted or rejected the request.
type Replier interface {
	Typing(ctx context.Context) error
	Send(ctx context.Context, r Reply) error
}

// Completer produces an assistant reply for the conversation so far.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (string, error)
}

// Options tunes the controller. Zero values fall back to defaults.
type Options struct {
	MaxTurns     int
	HistoryLimit int
	Timeout      time.Duration
	SystemPrompt string

	Now   func() time.Time
	NewID func() string
}

// OptionsFromConfig maps configuration sections onto controller options.
func OptionsFromConfig(cfg *coreconfig.Config) Options {
	return Options{
		MaxTurns:     cfg.Dialog.MaxTurns,
		HistoryLimit: cfg.Dialog.HistoryLimit,
		Timeout:      cfg.Completion.CompletionTimeout(),
		SystemPrompt: cfg.Completion.SystemPrompt,
	}
}

// Controller maps (session, event) to the next session and outbound replies.
type Controller struct {
	store     state.Store
	completer Completer
	opts      Options
}

// New builds a controller over the given session store and completer.
func New(store state.Store, completer Completer, opts Options) *Controller {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 3
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = coreconfig.DefaultSystemPrompt
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{store: store, completer: completer, opts: opts}
}

// turn carries one event through the state machine.
type turn struct {
	ctx     context.Context
	out     Replier
	sess    state.Session
	sendErr error
	sent    int
}

func (t *turn) send(text string, buttons [][]Button) {
	if err := t.out.Send(t.ctx, Reply{Text: text, Buttons: buttons}); err != nil {
		t.sendErr = errors.Join(t.sendErr, err)
		return
	}
	t.sent++
}

// Handle processes a single event for ev.UserID. Events of one user are
// serialized; the session is stored once after all replies were attempted.
// The returned error only reports transport failures; the state change
// is kept either way.
func (c *Controller) Handle(ctx context.Context, ev Event, out Replier) error {
	unlock := c.store.Lock(ev.UserID)
	defer unlock()

	t := &turn{
		ctx:  ctx,
		out:  out,
		sess: c.store.GetOrCreate(ev.UserID),
	}
	prev := t.sess.State
	start := time.Now()

	switch ev.Kind {
	case EventStart:
		c.onStart(t)
	case EventButton:
		if !c.onButton(t, ev.Payload) {
			return nil
		}
	case EventText:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			logger.Debug(ctx, "dialog", "text.empty", slog.String("state", string(prev)))
			return nil
		}
		c.onText(t, text)
	default:
		logger.Warn(ctx, "dialog", "event.unknown", slog.Int("kind", int(ev.Kind)))
		return nil
	}

	c.store.Put(t.sess)

	status := "ok"
	if t.sendErr != nil {
		status = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("op", ev.Kind.String()),
		slog.String("prev_state", string(prev)),
		slog.String("state", string(t.sess.State)),
		slog.Int("turn", t.sess.TurnCount),
		slog.String("tier", string(t.sess.Tier)),
		slog.Int("history_len", len(t.sess.History)),
		slog.Int("messages", t.sent),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if ev.Kind == EventButton {
		attrs = append(attrs, slog.String("cb_key", ev.Payload))
	}
	logger.Info(ctx, "dialog", "transition", attrs...)
	return t.sendErr
}

func (c *Controller) onStart(t *turn) {
	t.sess.State = state.StateMenu
	t.sess.TurnCount = 0
	t.sess.History = nil
	t.send(TextWelcome, menuButtons)
}

// onButton applies a button press. It reports false when the press is
// ignored and the session must stay untouched.
func (c *Controller) onButton(t *turn, payload string) bool {
	s := &t.sess
	switch {
	case payload == PayloadStartDialog && s.State == state.StateMenu:
		s.State = state.StateDialog
		t.send(TextOpeningPrompt, nil)
	case payload == PayloadStartDiary && s.State == state.StateMenu:
		t.send(TextDiaryUnavailable, nil)
	case payload == PayloadHelped && s.State == state.StateFeedback:
		t.send(TextUpsell, subscribeButtons)
	case payload == PayloadNotHelped && s.State == state.StateFeedback:
		s.State = state.StateDialog
		s.TurnCount = 0
		t.send(TextNotHelped, nil)
	case payload == PayloadPartiallyHelped && s.State == state.StateFeedback:
		s.State = state.StateDialog
		s.TurnCount = 0
		t.send(TextPartiallyHelped, nil)
	case payload == PayloadSubscribe && s.State == state.StateFeedback:
		s.Tier = state.TierSubscribed
		t.send(TextSubscribed, nil)
	case isKnownPayload(payload):
		logger.Debug(t.ctx, "dialog", "button.stale",
			slog.String("cb_key", payload),
			slog.String("state", string(s.State)),
		)
		return false
	default:
		logger.Error(t.ctx, "dialog", "button.unknown",
			slog.String("cb_key", logger.SanitizeLimit(payload, 64)),
			slog.String("state", string(s.State)),
		)
		return false
	}
	return true
}

func (c *Controller) onText(t *turn, text string) {
	s := &t.sess
	switch s.State {
	case state.StateMenu:
		t.send(TextMenuHint, menuButtons)
	case state.StateFeedback:
		t.send(TextFeedbackHint, feedbackButtons)
	case state.StateDialog:
		if s.TurnCount >= c.opts.MaxTurns {
			s.State = state.StateFeedback
			t.send(TextCoping, feedbackButtons)
			return
		}
		c.converse(t, text)
	}
}

// converse forwards one user message to the completer and sends the reply.
// A failed call sends the apology and leaves History as it was.
func (c *Controller) converse(t *turn, text string) {
	s := &t.sess
	turnID := c.opts.NewID()
	ctx := logger.WithTrace(t.ctx, turnID, "")

	if err := t.out.Typing(ctx); err != nil {
		logger.Debug(ctx, "dialog", "typing.fail", slog.String("err", err.Error()))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	reply, err := c.completer.Complete(callCtx, completion.Request{
		System:  c.opts.SystemPrompt,
		History: historyTail(s.History, c.opts.HistoryLimit),
		Text:    text,
	})
	cancel()

	s.TurnCount++
	if err != nil {
		logger.Warn(ctx, "dialog", "completion.fallback",
			slog.String("status", "fallback"),
			slog.Int("turn", s.TurnCount),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		t.send(TextApology, nil)
		return
	}

	now := c.opts.Now()
	s.History = append(s.History,
		state.Message{ID: turnID, Role: state.RoleUser, Text: text, At: now},
		state.Message{ID: c.opts.NewID(), Role: state.RoleAssistant, Text: reply, At: now},
	)
	t.send(reply, nil)
}

// historyTail returns at most limit trailing entries, starting on a user message.
func historyTail(history []state.Message, limit int) []state.Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	for len(history) > 0 && history[0].Role != state.RoleUser {
		history = history[1:]
	}
	return history
}

func isKnownPayload(p string) bool {
	for _, known := range Payloads {
		if p == known {
			return true
		}
	}
	return false
}
