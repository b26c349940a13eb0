package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic implements Provider for Claude models via the Messages API.
type Anthropic struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropic creates an Anthropic-backed provider.
func NewAnthropic(cfg Config) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}
}

// Name returns the provider identifier.
func (a *Anthropic) Name() string {
	return string(KindAnthropic)
}

// Validate checks that key and model are present.
func (a *Anthropic) Validate() error {
	return a.cfg.Validate()
}

// Generate sends the prompt as a single user message and returns the
// concatenated text blocks of the reply.
func (a *Anthropic) Generate(ctx context.Context,
	prompt string) (string, error) {

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: int64(a.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyReply
	}

	return text.String(), nil
}

// Credentials returns the endpoint/key fingerprint.
func (a *Anthropic) Credentials() string {
	return Fingerprint(a.cfg.BaseURL, a.cfg.APIKey)
}
