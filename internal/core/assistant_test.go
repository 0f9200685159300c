package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bloom.ai/plant-dashboard/internal/config"
	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/sentiment"
	"bloom.ai/plant-dashboard/internal/store"
)

type fakeProvider struct {
	content  string
	err      error
	requests []CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.content, f.err
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

type fakeImages struct {
	img *store.PlantImage
	err error
}

func (f fakeImages) LatestPlantImage(context.Context) (*store.PlantImage, error) { return f.img, f.err }

var testLLMConfig = config.LLMConfig{
	Provider:    config.ProviderGroq,
	ChatModel:   "llama-3.1-70b-versatile",
	VisionModel: "llama-3.2-90b-vision-preview",
}

func TestAssistant_Respond(t *testing.T) {
	tests := []struct {
		name          string
		provider      *fakeProvider
		wantContent   string
		wantSentiment string
	}{
		{"answer", &fakeProvider{content: "Water it weekly."}, "Water it weekly.", sentiment.Positive},
		{"empty completion", &fakeProvider{content: ""}, emptyReply, sentiment.Positive},
		{"malformed", &fakeProvider{err: fmt.Errorf("wrapped: %w", ErrMalformedResponse)}, emptyReply, sentiment.Positive},
		{"upstream failure", &fakeProvider{err: errors.New("503 service unavailable")}, errorReply, sentiment.Negative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssistant(tt.provider, testLLMConfig, nil, logger.Nop())
			got := a.Respond(context.Background(), "How often should I water my fern?")
			if got.Content != tt.wantContent || got.Sentiment != tt.wantSentiment {
				t.Errorf("Respond() = %+v, want {%q %q}", got, tt.wantContent, tt.wantSentiment)
			}
		})
	}
}

func TestAssistant_RespondRequestShape(t *testing.T) {
	p := &fakeProvider{content: "ok"}
	NewAssistant(p, testLLMConfig, nil, logger.Nop()).Respond(context.Background(), "hello")

	if len(p.requests) != 1 {
		t.Fatalf("got %d requests", len(p.requests))
	}
	req := p.requests[0]
	if req.Model != "llama-3.1-70b-versatile" || req.Temperature != 0.5 || req.MaxTokens != 1024 || req.TopP != 1 {
		t.Errorf("unexpected request parameters %+v", req)
	}
	if req.System != chatSystemInstruction || req.Prompt != "hello" || req.ImageURL != "" {
		t.Errorf("unexpected request content %+v", req)
	}
}

func TestAssistant_DescribeImage(t *testing.T) {
	p := &fakeProvider{content: "A healthy monstera."}
	a := NewAssistant(p, testLLMConfig, nil, logger.Nop())

	got, err := a.DescribeImage(context.Background(), "https://img.example/plant.jpg")
	if err != nil {
		t.Fatalf("DescribeImage: %v", err)
	}
	if got.ImageURL != "https://img.example/plant.jpg" || got.Description != "A healthy monstera." {
		t.Errorf("DescribeImage() = %+v", got)
	}
	req := p.requests[0]
	if req.Model != "llama-3.2-90b-vision-preview" || req.Temperature != 1 || req.ImageURL != "https://img.example/plant.jpg" {
		t.Errorf("unexpected vision request %+v", req)
	}
}

func TestAssistant_DescribeImageFallbacks(t *testing.T) {
	ctx := context.Background()

	cfg := testLLMConfig
	cfg.PlantImageURL = "https://img.example/configured.jpg"
	got, err := NewAssistant(&fakeProvider{content: "x"}, cfg, fakeImages{img: &store.PlantImage{URL: "https://img.example/captured.jpg"}}, logger.Nop()).DescribeImage(ctx, "")
	if err != nil || got.ImageURL != cfg.PlantImageURL {
		t.Errorf("configured image: got %+v, %v", got, err)
	}

	got, err = NewAssistant(&fakeProvider{content: "x"}, testLLMConfig, fakeImages{img: &store.PlantImage{URL: "https://img.example/captured.jpg"}}, logger.Nop()).DescribeImage(ctx, "")
	if err != nil || got.ImageURL != "https://img.example/captured.jpg" {
		t.Errorf("captured image: got %+v, %v", got, err)
	}

	_, err = NewAssistant(&fakeProvider{content: "x"}, testLLMConfig, fakeImages{}, logger.Nop()).DescribeImage(ctx, "")
	if !errors.Is(err, ErrNoImage) {
		t.Errorf("no image: err = %v, want ErrNoImage", err)
	}

	got, err = NewAssistant(&fakeProvider{err: errors.New("boom")}, testLLMConfig, nil, logger.Nop()).DescribeImage(ctx, "https://img.example/p.jpg")
	if err != nil || got.Description != errorReply {
		t.Errorf("upstream failure: got %+v, %v", got, err)
	}
}
