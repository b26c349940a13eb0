package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is the root sentinel for configuration problems.
	// Sessions fail fast on it without contending for the generation
	// mutex, and it is never retried automatically.
	ErrInvalidConfig = errors.New("provider configuration invalid")

	// ErrMissingAPIKey indicates the provider has no API key configured.
	ErrMissingAPIKey = fmt.Errorf("%w: api key missing", ErrInvalidConfig)

	// ErrMissingModel indicates the provider has no model configured.
	ErrMissingModel = fmt.Errorf("%w: model missing", ErrInvalidConfig)

	// ErrEmptyReply indicates the model returned nothing usable. It is
	// treated like any other provider failure by callers.
	ErrEmptyReply = errors.New("provider returned empty reply")
)

// IsConfigError reports whether err stems from invalid provider
// configuration, as opposed to a transport or model failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// Provider is the opaque "generate(prompt) -> text" capability the core
// calls into. Implementations wrap one concrete AI SDK and normalize its
// response shape to plain text at this boundary, so no core logic ever sees
// a provider-specific body.
type Provider interface {
	// Name returns the provider identifier for logging.
	Name() string

	// Validate checks that endpoint, key, and model are present. It must
	// not perform network I/O.
	Validate() error

	// Generate sends the prompt and returns the reply text. The context
	// carries cancellation; implementations must stop reading the
	// response once it is cancelled.
	Generate(ctx context.Context, prompt string) (string, error)

	// Credentials returns a fingerprint of the endpoint/key pair. Two
	// providers with equal fingerprints share rate limits, so callers
	// avoid issuing concurrent calls against them.
	Credentials() string
}

// Fingerprint derives a stable credentials fingerprint from an endpoint and
// API key pair.
func Fingerprint(baseURL, apiKey string) string {
	sum := sha256.Sum256([]byte(baseURL + "\x00" + apiKey))
	return hex.EncodeToString(sum[:8])
}

// Func adapts a plain function to the Provider interface. Used by tests and
// by callers that already hold a generate capability.
type Func struct {
	// ProviderName is returned by Name.
	ProviderName string

	// CredentialsKey is returned by Credentials.
	CredentialsKey string

	// GenerateFunc produces the reply text.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
}

// Name returns the provider identifier.
func (f Func) Name() string {
	if f.ProviderName == "" {
		return "func"
	}
	return f.ProviderName
}

// Validate always succeeds; a Func is configured by construction.
func (f Func) Validate() error {
	if f.GenerateFunc == nil {
		return fmt.Errorf("%w: generate func is nil", ErrInvalidConfig)
	}
	return nil
}

// Generate invokes the wrapped function.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	if f.GenerateFunc == nil {
		return "", fmt.Errorf("%w: generate func is nil", ErrInvalidConfig)
	}
	return f.GenerateFunc(ctx, prompt)
}

// Credentials returns the configured fingerprint.
func (f Func) Credentials() string {
	return f.CredentialsKey
}
