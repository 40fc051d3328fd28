// Package completion turns a conversation history plus a new user message
// into a single assistant reply using a hosted LLM provider.
package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	coreconfig "github.com/YouMeAI/YouMeCare/core/config"
	"github.com/YouMeAI/YouMeCare/core/logger"
	"github.com/YouMeAI/YouMeCare/core/telegram/state"
)

var (
	// ErrEmptyResponse is returned when the provider answers without any text.
	ErrEmptyResponse = errors.New("completion: empty response")
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("completion: unknown provider")
)

// Request is one completion call: system instruction, prior turns and the new message.
type Request struct {
	System  string
	History []state.Message
	Text    string
}

// Provider is a single LLM backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client paces calls to a Provider and logs every call under the llm component.
type Client struct {
	provider string
	model    string
	backend  Provider

	limiter *rate.Limiter
	sem     chan struct{}
}

// Limits bounds outbound provider traffic across all users.
type Limits struct {
	RequestsPerSecond float64
	Burst             int
	Concurrency       int
}

// NewClient wraps a provider with pacing. Zero limits disable the corresponding guard.
func NewClient(provider, model string, backend Provider, limits Limits) *Client {
	c := &Client{
		provider: provider,
		model:    model,
		backend:  backend,
	}
	if limits.RequestsPerSecond > 0 {
		burst := limits.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), burst)
	}
	if limits.Concurrency > 0 {
		c.sem = make(chan struct{}, limits.Concurrency)
	}
	return c
}

// New builds the client for the configured provider.
func New(ctx context.Context, cfg coreconfig.CompletionConfig) (*Client, error) {
	limits := Limits{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Concurrency:       cfg.Concurrency,
	}

	var (
		backend Provider
		err     error
	)
	switch strings.ToLower(cfg.Provider) {
	case coreconfig.ProviderOpenAI:
		backend = NewOpenAI(OpenAIOptions{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.CompletionTimeout(),
		})
	case coreconfig.ProviderGemini:
		backend, err = NewGemini(ctx, GeminiOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	return NewClient(strings.ToLower(cfg.Provider), cfg.Model, backend, limits), nil
}

// Provider reports the backend name, e.g. "openai".
func (c *Client) Provider() string { return c.provider }

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

// Complete waits for a pacing slot and forwards the request to the provider.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	attrs := []slog.Attr{
		slog.String("provider", c.provider),
		slog.String("model", c.model),
		slog.Int("history_len", len(req.History)),
	}

	release, err := c.acquire(ctx)
	if err != nil {
		logger.Warn(ctx, "llm", "complete.throttled",
			append(attrs, slog.String("err", err.Error()))...)
		return "", fmt.Errorf("completion: waiting for slot: %w", err)
	}
	defer release()

	reply, err := c.backend.Complete(ctx, req)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyResponse
	}
	attrs = append(attrs, slog.Int64("duration_ms", logger.Took(start).Milliseconds()))
	if err != nil {
		logger.Warn(ctx, "llm", "complete.fail",
			append(attrs,
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)...)
		return "", err
	}

	logger.Info(ctx, "llm", "complete.ok",
		append(attrs,
			slog.String("status", "ok"),
			slog.Int("reply_len", len(reply)),
		)...)
	return strings.TrimSpace(reply), nil
}

// Close releases provider resources when the backend holds any.
func (c *Client) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
