package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"bloom.ai/plant-dashboard/internal/logger"
)

const maxImageBytes = 10 << 20

// GeminiProvider serves completions from Google's Gemini models. Images are
// downloaded and sent inline since the API does not fetch remote URLs.
type GeminiProvider struct {
	client     *genai.Client
	httpClient *http.Client
	log        *logger.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey string, log *logger.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.WithComponent("gemini"),
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("error closing GenAI client: %w", err)
	}
	p.log.Info().Msg("GenAI client closed")
	return nil
}

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := p.client.GenerativeModel(req.Model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	temp := req.Temperature
	topP := req.TopP
	maxTokens := int32(req.MaxTokens)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: &maxTokens,
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.ImageURL != "" {
		blob, err := p.fetchImage(ctx, req.ImageURL)
		if err != nil {
			return "", err
		}
		parts = append(parts, blob)
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates: %w", ErrMalformedResponse)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			p.log.Debug().Str("part_type", fmt.Sprintf("%T", part)).Msg("Skipping non-text response part")
		}
	}
	return responseText.String(), nil
}

func (p *GeminiProvider) fetchImage(ctx context.Context, url string) (genai.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return genai.Blob{}, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return genai.Blob{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return genai.Blob{}, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return genai.Blob{}, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	return genai.Blob{MIMEType: mimeType, Data: data}, nil
}
