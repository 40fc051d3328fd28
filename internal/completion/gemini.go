package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/YouMeAI/YouMeCare/core/telegram/state"
)

// GeminiOptions configures the Google Gemini backend.
type GeminiOptions struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Gemini calls the Gemini generateContent API through a chat session.
type Gemini struct {
	client *genai.Client
	opts   GeminiOptions
}

// NewGemini opens a Gemini client authenticated with an API key.
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, opts: opts}, nil
}

// Complete replays the history into a fresh chat session and sends the new message.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	// GenerativeModel is not safe for concurrent mutation, so build one per call.
	model := g.client.GenerativeModel(g.opts.Model)
	if g.opts.Temperature > 0 {
		model.SetTemperature(g.opts.Temperature)
	}
	if g.opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.opts.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	cs := model.StartChat()
	cs.History = geminiHistory(req.History)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Text))
	if err != nil {
		return "", fmt.Errorf("gemini: send message: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	return geminiText(resp), nil
}

// Close releases the underlying gRPC connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func geminiHistory(history []state.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == state.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Text)}})
	}
	return out
}

func geminiText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// One candidate is requested; stop at the first with content.
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}
