package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiSource generates replies with a Gemini model.
type GeminiSource struct {
	model   string
	system  string
	timeout time.Duration

	generate func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error)
}

// GeminiOptions configures NewGeminiSource.
type GeminiOptions struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// NewGeminiSource creates a client for the Gemini API.
func NewGeminiSource(ctx context.Context, opts GeminiOptions) (*GeminiSource, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g := newGemini(opts)
	g.generate = func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
		res, err := client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return "", err
		}
		return res.Text(), nil
	}
	return g, nil
}

func newGemini(opts GeminiOptions) *GeminiSource {
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiSource{
		model:   model,
		system:  opts.SystemPrompt,
		timeout: opts.Timeout,
	}
}

// Reply implements Source.
func (g *GeminiSource) Reply(ctx context.Context, text string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{}
	if g.system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(g.system, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	out, err := g.generate(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return out, nil
}
