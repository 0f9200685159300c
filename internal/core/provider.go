// Package core holds the assistant, chat and expression services behind the dashboard.
package core

import (
	"context"
	"errors"
	"fmt"

	"bloom.ai/plant-dashboard/internal/config"
	"bloom.ai/plant-dashboard/internal/logger"
)

// ErrMalformedResponse is returned when a completion API answers with a
// response that carries no choice or candidate to read.
var ErrMalformedResponse = errors.New("malformed completion response")

// CompletionRequest is a single-turn completion: a system prompt, the user
// text and optionally an image the model should look at.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	ImageURL    string
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// Provider defines the interface for completion services.
type Provider interface {
	// Complete returns the text of the first choice. An empty string with a
	// nil error means the model answered with no content.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name returns the provider name ("groq", "gemini")
	Name() string

	Close() error
}

// NewProvider creates the provider selected in cfg.
func NewProvider(ctx context.Context, cfg config.LLMConfig, log *logger.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("groq API key is required")
		}
		return NewGroqProvider(cfg.GroqAPIKey, cfg.GroqBaseURL, log), nil
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, log)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}
