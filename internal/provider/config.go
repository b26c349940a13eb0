package provider

import "fmt"

// Kind selects which SDK adapter backs a configured provider.
type Kind string

const (
	// KindAnthropic backs the provider with the Anthropic Messages API.
	KindAnthropic Kind = "anthropic"

	// KindOpenAI backs the provider with OpenAI chat completions.
	KindOpenAI Kind = "openai"

	// KindGemini backs the provider with the Gemini API.
	KindGemini Kind = "gemini"
)

const (
	// DefaultMaxTokens is the reply token cap used when none is
	// configured.
	DefaultMaxTokens = 2048
)

// Config holds the settings for one configured provider. The chat companion
// and the summarizer may point at the same Config or at two different ones;
// when they differ, their calls may proceed concurrently.
type Config struct {
	// Kind selects the SDK adapter.
	Kind Kind `yaml:"kind"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Model is the model identifier to request.
	Model string `yaml:"model"`

	// MaxTokens caps the reply length.
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// Validate checks that the config names a usable provider.
func (c Config) Validate() error {
	switch c.Kind {
	case KindAnthropic, KindOpenAI, KindGemini:
	case "":
		return fmt.Errorf("%w: provider kind missing", ErrInvalidConfig)
	default:
		return fmt.Errorf(
			"%w: unknown provider kind %q", ErrInvalidConfig, c.Kind,
		)
	}

	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Model == "" {
		return ErrMissingModel
	}

	return nil
}

// New builds the adapter named by the config. The returned provider is not
// validated; callers run Validate at session start so configuration failures
// surface as typed results rather than constructor errors.
func New(cfg Config) (Provider, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch cfg.Kind {
	case KindAnthropic:
		return NewAnthropic(cfg), nil
	case KindOpenAI:
		return NewOpenAI(cfg), nil
	case KindGemini:
		return NewGemini(cfg), nil
	default:
		return nil, fmt.Errorf(
			"%w: unknown provider kind %q", ErrInvalidConfig, cfg.Kind,
		)
	}
}
