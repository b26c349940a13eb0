package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini implements Provider via the Gemini API.
type Gemini struct {
	cfg Config
}

// NewGemini creates a Gemini-backed provider. The SDK client is built per
// request because its constructor takes a context.
func NewGemini(cfg Config) *Gemini {
	return &Gemini{cfg: cfg}
}

// Name returns the provider identifier.
func (g *Gemini) Name() string {
	return string(KindGemini)
}

// Validate checks that key and model are present.
func (g *Gemini) Validate() error {
	return g.cfg.Validate()
}

// Generate sends the prompt and returns the reply text.
func (g *Gemini) Generate(ctx context.Context,
	prompt string) (string, error) {

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	resp, err := client.Models.GenerateContent(
		ctx, g.cfg.Model, genai.Text(prompt), nil,
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}

	return text, nil
}

// Credentials returns the endpoint/key fingerprint.
func (g *Gemini) Credentials() string {
	return Fingerprint(g.cfg.BaseURL, g.cfg.APIKey)
}
