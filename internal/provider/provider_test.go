package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConfigValidate covers the config error taxonomy.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Kind:   KindAnthropic,
		APIKey: "key",
		Model:  "claude-sonnet-4-5",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing kind",
			mutate:  func(c *Config) { c.Kind = "" },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown kind",
			mutate:  func(c *Config) { c.Kind = "cohere" },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.APIKey = "" },
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "missing model",
			mutate:  func(c *Config) { c.Model = "" },
			wantErr: ErrMissingModel,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)

			// Every validation failure is a config error the UI can
			// route to settings.
			require.True(t, IsConfigError(err))
		})
	}
}

// TestNew verifies the factory dispatches on kind.
func TestNew(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{KindAnthropic, KindOpenAI, KindGemini} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()

			p, err := New(Config{
				Kind: kind, APIKey: "key", Model: "m",
			})
			require.NoError(t, err)
			require.Equal(t, string(kind), p.Name())
			require.NotEmpty(t, p.Credentials())
		})
	}

	_, err := New(Config{Kind: "cohere"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

// TestFingerprint verifies fingerprints depend on endpoint and key but leak
// neither.
func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := Fingerprint("https://api.example.com", "secret-key")
	require.Equal(t, a, Fingerprint("https://api.example.com", "secret-key"))
	require.NotContains(t, a, "secret-key")

	require.NotEqual(t, a, Fingerprint("https://api.example.com", "other"))
	require.NotEqual(t, a, Fingerprint("https://api.other.com", "secret-key"))

	// Two adapters on the same credentials collide on purpose: that is
	// what the scheduler's contention deferral keys on.
	anthropic, err := New(Config{
		Kind: KindAnthropic, APIKey: "shared", Model: "m1",
	})
	require.NoError(t, err)
	openai, err := New(Config{
		Kind: KindOpenAI, APIKey: "shared", Model: "m2",
	})
	require.NoError(t, err)
	require.Equal(t, anthropic.Credentials(), openai.Credentials())
}

// TestFuncProvider verifies the adapter used throughout the tests behaves.
func TestFuncProvider(t *testing.T) {
	t.Parallel()

	var broken Func
	require.ErrorIs(t, broken.Validate(), ErrInvalidConfig)

	f := Func{
		ProviderName:   "stub",
		CredentialsKey: "creds",
		GenerateFunc: func(_ context.Context,
			prompt string) (string, error) {

			return "echo: " + prompt, nil
		},
	}
	require.NoError(t, f.Validate())
	require.Equal(t, "stub", f.Name())
	require.Equal(t, "creds", f.Credentials())

	reply, err := f.Generate(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "echo: hi", reply)
}
