package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/YouMeAI/YouMeCare/core/telegram"
	"github.com/YouMeAI/YouMeCare/internal/dialog"
)

// fakeContext implements the parts of tele.Context the bot touches.
type fakeContext struct {
	tele.Context

	mu       sync.Mutex
	user     *tele.User
	text     string
	callback *tele.Callback
	store    map[string]any
	sent     []sentMessage
	actions  []tele.ChatAction
}

type sentMessage struct {
	text   string
	markup *tele.ReplyMarkup
}

func newFakeContext(userID int64) *fakeContext {
	return &fakeContext{user: &tele.User{ID: userID}, store: map[string]any{}}
}

func (f *fakeContext) Sender() *tele.User            { return f.user }
func (f *fakeContext) Chat() *tele.Chat              { return &tele.Chat{ID: f.user.ID, Type: tele.ChatPrivate} }
func (f *fakeContext) Update() tele.Update           { return tele.Update{ID: 7} }
func (f *fakeContext) Text() string                  { return f.text }
func (f *fakeContext) Callback() *tele.Callback      { return f.callback }
func (f *fakeContext) Get(key string) interface{}    { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) { f.store[key] = v }

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := sentMessage{text: what.(string)}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			msg.markup = so.ReplyMarkup
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeContext) Notify(action tele.ChatAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

// echoHandler records events and answers each with one reply.
type echoHandler struct {
	events []dialog.Event
	reply  dialog.Reply
	typing bool
}

func (h *echoHandler) Handle(ctx context.Context, ev dialog.Event, out dialog.Replier) error {
	h.events = append(h.events, ev)
	if h.typing {
		if err := out.Typing(ctx); err != nil {
			return err
		}
	}
	return out.Send(ctx, h.reply)
}

func TestRegisterWiresAllEntryPoints(t *testing.T) {
	reg := tg.NewRegistry()
	h := &echoHandler{reply: dialog.Reply{Text: "ok"}}
	require.NoError(t, New(h).Register(reg))

	_, cmd, ok := reg.LookupCommand("/start")
	require.True(t, ok)
	require.NotNil(t, cmd.Handler)

	assert.ElementsMatch(t, dialog.Payloads, reg.CallbackKeys())
	require.NotNil(t, reg.TextFallback())

	c := newFakeContext(42)
	require.NoError(t, cmd.Handler(c))
	require.Len(t, h.events, 1)
	assert.Equal(t, dialog.Event{UserID: 42, Kind: dialog.EventStart}, h.events[0])
}

func TestButtonEventCarriesPayload(t *testing.T) {
	reg := tg.NewRegistry()
	h := &echoHandler{reply: dialog.Reply{Text: "ok"}}
	require.NoError(t, New(h).Register(reg))

	c := newFakeContext(5)
	c.callback = &tele.Callback{Unique: dialog.PayloadHelped}
	handler, ok := reg.Callback(dialog.PayloadHelped)
	require.True(t, ok)
	require.NoError(t, handler(c))

	c2 := newFakeContext(5)
	c2.callback = &tele.Callback{Data: "\fbogus"}
	require.NoError(t, reg.CallbackNotFound()(c2))

	require.Len(t, h.events, 2)
	assert.Equal(t, dialog.PayloadHelped, h.events[0].Payload)
	assert.Equal(t, dialog.EventButton, h.events[1].Kind)
	assert.Equal(t, "bogus", h.events[1].Payload)
}

func TestTextReplyCarriesKeyboardAndTyping(t *testing.T) {
	h := &echoHandler{
		typing: true,
		reply: dialog.Reply{
			Text: "Did it help?",
			Buttons: [][]dialog.Button{
				{{Label: "yes", Payload: dialog.PayloadHelped}},
				{{Label: "no", Payload: dialog.PayloadNotHelped}},
			},
		},
	}
	b := New(h)
	c := newFakeContext(9)
	c.text = "I feel anxious"

	require.NoError(t, b.OnText(c))

	require.Len(t, h.events, 1)
	assert.Equal(t, "I feel anxious", h.events[0].Text)
	assert.Equal(t, []tele.ChatAction{tele.Typing}, c.actions)
	require.Len(t, c.sent, 1)
	assert.Equal(t, "Did it help?", c.sent[0].text)
	require.NotNil(t, c.sent[0].markup)
	require.Len(t, c.sent[0].markup.InlineKeyboard, 2)
	assert.Equal(t, dialog.PayloadNotHelped, c.sent[0].markup.InlineKeyboard[1][0].Unique)
}

func TestLongReplyIsSplitAndKeyboardGoesLast(t *testing.T) {
	long := strings.Repeat("a", maxMessageRunes) + "\n" + strings.Repeat("b", 10)
	h := &echoHandler{reply: dialog.Reply{
		Text:    long,
		Buttons: [][]dialog.Button{{{Label: "x", Payload: dialog.PayloadSubscribe}}},
	}}
	c := newFakeContext(1)
	c.text = "hi"
	require.NoError(t, New(h).OnText(c))

	require.Len(t, c.sent, 2)
	assert.Nil(t, c.sent[0].markup)
	assert.NotNil(t, c.sent[1].markup)
}

func TestMissingSenderIsIgnored(t *testing.T) {
	h := &echoHandler{}
	c := newFakeContext(1)
	c.user = nil
	require.NoError(t, New(h).OnText(c))
	assert.Empty(t, h.events)
}

func TestMarkupEmpty(t *testing.T) {
	assert.Nil(t, Markup(nil))
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	parts := splitText("hello world, how are you", 10)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 10)
	}
	assert.Equal(t, "hello world, how are you", strings.Join(parts, ""))

	parts = splitText("line one\nline two", 12)
	assert.Equal(t, []string{"line one", "line two"}, parts)

	cyr := strings.Repeat("ж", 15)
	parts = splitText(cyr, 10)
	require.Len(t, parts, 2)
	assert.Equal(t, 10, len([]rune(parts[0])))
}
