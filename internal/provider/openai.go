package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements Provider via the chat completions API. The BaseURL
// override makes this adapter serve OpenAI-compatible endpoints as well.
type OpenAI struct {
	client openai.Client
	cfg    Config
}

// NewOpenAI creates an OpenAI-backed provider.
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

// Name returns the provider identifier.
func (o *OpenAI) Name() string {
	return string(KindOpenAI)
}

// Validate checks that key and model are present.
func (o *OpenAI) Validate() error {
	return o.cfg.Validate()
}

// Generate sends the prompt as a single user message and returns the first
// choice's content.
func (o *OpenAI) Generate(ctx context.Context,
	prompt string) (string, error) {

	resp, err := o.client.Chat.Completions.New(
		ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(o.cfg.Model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			MaxTokens: openai.Int(int64(o.cfg.MaxTokens)),
		},
	)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyReply
	}

	return content, nil
}

// Credentials returns the endpoint/key fingerprint.
func (o *OpenAI) Credentials() string {
	return Fingerprint(o.cfg.BaseURL, o.cfg.APIKey)
}
