package middleware

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/YouMeAI/YouMeCare/core/logger"
	tghelpers "github.com/YouMeAI/YouMeCare/core/telegram/helpers"
)

type fakeContext struct {
	tele.Context
	store map[string]any
	text  string
	sends int
}

func newFake() *fakeContext { return &fakeContext{store: map[string]any{}, text: "hi"} }

func (f *fakeContext) Sender() *tele.User           { return &tele.User{ID: 5} }
func (f *fakeContext) Chat() *tele.Chat             { return &tele.Chat{ID: 6, Type: tele.ChatPrivate} }
func (f *fakeContext) Update() tele.Update          { return tele.Update{ID: 4} }
func (f *fakeContext) Text() string                 { return f.text }
func (f *fakeContext) Callback() *tele.Callback     { return nil }
func (f *fakeContext) Get(key string) any           { return f.store[key] }
func (f *fakeContext) Set(key string, v any)        { f.store[key] = v }
func (f *fakeContext) Notify(tele.ChatAction) error { return nil }
func (f *fakeContext) Send(any, ...any) error {
	f.sends++
	return nil
}

func apply(h tele.HandlerFunc) tele.HandlerFunc {
	chain := Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func TestRecoverReturnsPanicAsError(t *testing.T) {
	err := apply(func(tele.Context) error { panic("boom") })(newFake())
	var p ErrPanic
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "boom", p.Value)
}

func TestReceiveBuildsUpdateContext(t *testing.T) {
	f := newFake()
	require.NoError(t, apply(func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		assert.Equal(t, "4:6:5", logger.RIDFrom(ctx))
		assert.Equal(t, int64(5), logger.UserIDFrom(ctx))
		assert.Equal(t, int64(6), logger.ChatIDFrom(ctx))
		return nil
	})(f))
	assert.False(t, tghelpers.Received(f).IsZero())
}

func TestCountTracksRepliesAndKeyboards(t *testing.T) {
	f := newFake()
	var seen tele.Context
	require.NoError(t, apply(func(c tele.Context) error {
		seen = c
		require.NoError(t, c.Notify(tele.Typing))
		require.NoError(t, c.Send("plain"))
		return c.Send("menu", &tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{}})
	})(f))

	assert.Equal(t, 2, f.sends)
	got := Read(seen)
	assert.Equal(t, Counters{Messages: 2, Keyboard: true, Actions: 1}, got)
	assert.Equal(t, Counters{}, Read(newFake()))
}

func TestReceiveLogsTextLengthOnly(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.L
	logger.L = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { logger.L = prev })

	// Receipts are sampled; enough updates guarantee at least one line.
	for i := 0; i < 60; i++ {
		f := newFake()
		f.text = "I feel lonely tonight"
		require.NoError(t, Receive(func(tele.Context) error { return nil })(f))
	}
	require.Contains(t, buf.String(), `"text_len":21`)
	assert.NotContains(t, buf.String(), "lonely")
}
