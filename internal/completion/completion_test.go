package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/YouMeAI/YouMeCare/core/config"
	"github.com/YouMeAI/YouMeCare/core/telegram/state"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeOpenAI(t *testing.T, handler func(w http.ResponseWriter, req chatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeChoice(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func TestOpenAISendsSystemHistoryAndText(t *testing.T) {
	var got chatRequest
	srv := fakeOpenAI(t, func(w http.ResponseWriter, req chatRequest) {
		got = req
		writeChoice(w, "Tell me more")
	})

	client := NewOpenAI(OpenAIOptions{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Timeout: 5 * time.Second})
	reply, err := client.Complete(context.Background(), Request{
		System: "be kind",
		History: []state.Message{
			{Role: state.RoleUser, Text: "hello"},
			{Role: state.RoleAssistant, Text: "hi, how are you?"},
		},
		Text: "I feel anxious",
	})
	require.NoError(t, err)
	assert.Equal(t, "Tell me more", reply)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 4)
	roles := []string{got.Messages[0].Role, got.Messages[1].Role, got.Messages[2].Role, got.Messages[3].Role}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.Equal(t, "be kind", got.Messages[0].Content)
	assert.Equal(t, "I feel anxious", got.Messages[3].Content)
}

func TestOpenAIServerErrorIsReturned(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, _ chatRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	client := NewOpenAI(OpenAIOptions{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	_, err := client.Complete(context.Background(), Request{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai")
}

func TestClientRejectsBlankReply(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, _ chatRequest) {
		writeChoice(w, "   ")
	})

	c := NewClient("openai", "gpt-4o-mini",
		NewOpenAI(OpenAIOptions{APIKey: "test-key", BaseURL: srv.URL + "/v1"}), Limits{})
	_, err := c.Complete(context.Background(), Request{Text: "hi"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

type providerFunc func(ctx context.Context, req Request) (string, error)

func (f providerFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

func TestClientTrimsReply(t *testing.T) {
	c := NewClient("fake", "m", providerFunc(func(context.Context, Request) (string, error) {
		return "  ok \n", nil
	}), Limits{})
	reply, err := c.Complete(context.Background(), Request{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestClientPropagatesProviderError(t *testing.T) {
	boom := errors.New("boom")
	c := NewClient("fake", "m", providerFunc(func(context.Context, Request) (string, error) {
		return "", boom
	}), Limits{})
	_, err := c.Complete(context.Background(), Request{Text: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestClientCapsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	c := NewClient("fake", "m", providerFunc(func(context.Context, Request) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}), Limits{Concurrency: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Complete(context.Background(), Request{Text: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestClientGivesUpWhenContextEndsWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	c := NewClient("fake", "m", providerFunc(func(context.Context, Request) (string, error) {
		<-release
		return "ok", nil
	}), Limits{Concurrency: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Complete(context.Background(), Request{Text: "first"})
	}()
	require.Eventually(t, func() bool { return len(c.sem) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, Request{Text: "second"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestClientRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := NewClient("fake", "m", providerFunc(func(context.Context, Request) (string, error) {
		calls.Add(1)
		return "ok", nil
	}), Limits{RequestsPerSecond: 1, Burst: 1})

	_, err := c.Complete(context.Background(), Request{Text: "a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, Request{Text: "b"})
	assert.Error(t, err, "second call within the same second must wait past the deadline")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(context.Background(), coreconfig.CompletionConfig{
		Provider: "OpenAI",
		Model:    "gpt-4o-mini",
		APIKey:   "k",
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Provider())
	assert.Equal(t, "gpt-4o-mini", c.Model())
	assert.NoError(t, c.Close())

	_, err = New(context.Background(), coreconfig.CompletionConfig{Provider: "llama", APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestGeminiHistoryRoles(t *testing.T) {
	out := geminiHistory([]state.Message{
		{Role: state.RoleUser, Text: "a"},
		{Role: state.RoleAssistant, Text: "b"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "user", out[0].Role)
	assert.Equal(t, "model", out[1].Role)
}
