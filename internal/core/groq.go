package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"bloom.ai/plant-dashboard/internal/logger"
)

// GroqProvider talks to Groq's OpenAI-compatible chat completions API.
type GroqProvider struct {
	client *openai.Client
	log    *logger.Logger
}

func NewGroqProvider(apiKey, baseURL string, log *logger.Logger) *GroqProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &GroqProvider{
		client: openai.NewClientWithConfig(cfg),
		log:    log.WithComponent("groq"),
	}
}

func (p *GroqProvider) Name() string { return "groq" }

func (p *GroqProvider) Close() error { return nil }

func (p *GroqProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.ImageURL == "" {
		user.Content = req.Prompt
	} else {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: req.ImageURL}},
		}
	}
	messages = append(messages, user)

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		p.log.Error().Err(err).Str("model", req.Model).Dur("latency", time.Since(start)).Msg("Completion request failed")
		if isDecodeError(err) {
			return "", fmt.Errorf("groq response could not be decoded: %v: %w", err, ErrMalformedResponse)
		}
		return "", fmt.Errorf("groq completion failed: %w", err)
	}

	p.log.Debug().
		Str("model", req.Model).
		Dur("latency", time.Since(start)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Completion finished")

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices: %w", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// isDecodeError reports whether err came from decoding a successful
// response body. Transport failures and API error replies are excluded.
func isDecodeError(err error) bool {
	var (
		urlErr *url.Error
		reqErr *openai.RequestError
		apiErr *openai.APIError
	)
	if errors.As(err, &urlErr) || errors.As(err, &reqErr) || errors.As(err, &apiErr) {
		return false
	}
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}
