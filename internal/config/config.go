package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/RichardoC/docchat/internal/llm"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the environment driven configuration for the server and CLI.
type Config struct {
	Port            int           `env:"PORT" envDefault:"5000"`
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"docchat.db"`
	Provider        string        `env:"LLM_PROVIDER" envDefault:"googleai"`
	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL"`
	Models          []string      `env:"LLM_MODELS" envSeparator:"," envDefault:"gemini-2.5-flash,gemini-1.5-flash,gemini-1.5-pro,gemini-pro"`
	ModelTimeout    time.Duration `env:"LLM_MODEL_TIMEOUT" envDefault:"30s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	switch c.Provider {
	case llm.ProviderGoogleAI:
		if strings.TrimSpace(c.GeminiAPIKey) == "" {
			return errors.New("GEMINI_API_KEY is required when LLM_PROVIDER is googleai")
		}
	case llm.ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return errors.New("OPENAI_API_KEY is required when LLM_PROVIDER is openai")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider)
	}

	if len(c.ModelNames()) == 0 {
		return errors.New("LLM_MODELS must list at least one model")
	}
	if c.ModelTimeout <= 0 {
		return errors.New("LLM_MODEL_TIMEOUT must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// ModelNames returns the configured models with blanks removed.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		if m = strings.TrimSpace(m); m != "" {
			names = append(names, m)
		}
	}
	return names
}

// Variants returns the fallback chain in configured order.
func (c *Config) Variants() []llm.Variant {
	names := c.ModelNames()
	variants := make([]llm.Variant, 0, len(names))
	for _, name := range names {
		variants = append(variants, llm.Variant{Model: name, Timeout: c.ModelTimeout})
	}
	return variants
}

func (c *Config) ProviderConfig() llm.ProviderConfig {
	pc := llm.ProviderConfig{Provider: c.Provider}
	switch c.Provider {
	case llm.ProviderGoogleAI:
		pc.APIKey = c.GeminiAPIKey
	case llm.ProviderOpenAI:
		pc.APIKey = c.OpenAIAPIKey
		pc.BaseURL = c.OpenAIBaseURL
	}
	if names := c.ModelNames(); len(names) > 0 {
		pc.DefaultModel = names[0]
	}
	return pc
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
