// Package config loads the daemon's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lectern-ai/lectern/internal/provider"
)

const (
	// DefaultChatThreshold is the message count between automatic chat
	// summaries.
	DefaultChatThreshold = 100

	// DefaultBookThreshold is the character-offset distance between
	// automatic book summaries.
	DefaultBookThreshold = 5000
)

// Duration wraps time.Duration so config files can carry values like
// "500ms" or "3s".
type Duration time.Duration

// UnmarshalYAML parses either a duration string or an integer nanosecond
// count.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var ns int64
	if err := unmarshal(&ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SchedulerConfig tunes the summary scheduler.
type SchedulerConfig struct {
	// TickInterval is the scheduler loop period.
	TickInterval Duration `yaml:"tick_interval,omitempty"`

	// DebounceWindow suppresses repeat automatic enqueues.
	DebounceWindow Duration `yaml:"debounce_window,omitempty"`

	// ChatThreshold is the message count between automatic chat
	// summaries.
	ChatThreshold int `yaml:"chat_threshold,omitempty"`

	// BookThreshold is the character-offset distance between automatic
	// book summaries.
	BookThreshold int `yaml:"book_threshold,omitempty"`
}

// BubbleConfig bounds reply bubble counts.
type BubbleConfig struct {
	Min int `yaml:"min,omitempty"`
	Max int `yaml:"max,omitempty"`
}

// Config is the daemon configuration.
type Config struct {
	// DBPath is the SQLite database path. Empty takes the default under
	// the home directory.
	DBPath string `yaml:"db_path,omitempty"`

	// Chat is the provider chat replies go to.
	Chat provider.Config `yaml:"chat"`

	// Summary is the provider summarization calls go to. When unset,
	// summaries share the chat provider (and therefore defer to active
	// chat generations).
	Summary provider.Config `yaml:"summary,omitempty"`

	// Scheduler tunes the summary scheduler.
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`

	// Bubbles bounds the reply bubble count.
	Bubbles BubbleConfig `yaml:"bubbles,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults and no providers
// configured.
func DefaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			ChatThreshold: DefaultChatThreshold,
			BookThreshold: DefaultBookThreshold,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".lectern", "config.yaml"), nil
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(&cfg)

	return cfg, nil
}

// SummaryProvider returns the config summarization calls use: the dedicated
// one when configured, the chat provider otherwise.
func (c Config) SummaryProvider() provider.Config {
	if c.Summary.Kind != "" {
		return c.Summary
	}
	return c.Chat
}

// applyDefaults fills zero-valued tuning fields.
func applyDefaults(cfg *Config) {
	if cfg.Scheduler.ChatThreshold <= 0 {
		cfg.Scheduler.ChatThreshold = DefaultChatThreshold
	}
	if cfg.Scheduler.BookThreshold <= 0 {
		cfg.Scheduler.BookThreshold = DefaultBookThreshold
	}
}
