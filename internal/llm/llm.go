// Package llm provides the language-model providers that turn a prompt into
// raw SQL text, and a Client that bounds each call in time and retries once.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider defines the interface for LLM integrations.
type Provider interface {
	// Generate sends the prompt and returns the model's raw text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Name returns the provider name for logging and metrics.
	Name() string
}

// GenerateRequest is one generation call.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error: status %d", e.Provider, e.Code)
}

// Transient reports whether the request may succeed if repeated.
func (e *StatusError) Transient() bool {
	return e.Code >= 500
}

// Config holds LLM provider configuration.
type Config struct {
	Provider    string        `env:"PROVIDER" envDefault:"openai"` // openai, anthropic, huggingface, completion
	APIKey      string        `env:"API_KEY"`
	Model       string        `env:"MODEL"`
	BaseURL     string        `env:"BASE_URL"` // OpenRouter, proxies, a self-hosted endpoint
	MaxTokens   int           `env:"MAX_TOKENS" envDefault:"256"`
	Temperature float64       `env:"TEMPERATURE" envDefault:"0.1"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// NewProvider creates an LLM provider based on configuration.
func NewProvider(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "openai"
	}

	if cfg.APIKey == "" && name != "completion" {
		return nil, fmt.Errorf("LLM_API_KEY is required for provider %q", name)
	}

	switch name {
	case "openai":
		if cfg.Model == "" {
			cfg.Model = "gpt-4o"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "anthropic":
		if cfg.Model == "" {
			cfg.Model = "claude-sonnet-4-20250514"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.anthropic.com/v1"
		}
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "huggingface", "hf":
		if cfg.Model == "" {
			cfg.Model = "mistralai/Mistral-7B-Instruct-v0.2"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api-inference.huggingface.co"
		}
		return NewHuggingFaceProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "completion":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("LLM_BASE_URL is required for provider %q", name)
		}
		return NewCompletionProvider(cfg.APIKey, cfg.BaseURL), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, anthropic, huggingface, completion)", cfg.Provider)
	}
}

// ParseMissing reports whether the model declined to answer with the
// "MISSING: <reason>" form the prompt asks for, and returns the reason.
func ParseMissing(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < len("MISSING:") || !strings.EqualFold(trimmed[:len("MISSING:")], "MISSING:") {
		return "", false
	}
	return strings.TrimSpace(trimmed[len("MISSING:"):]), true
}
