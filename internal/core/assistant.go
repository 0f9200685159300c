package core

import (
	"context"
	"errors"

	"bloom.ai/plant-dashboard/internal/config"
	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/sentiment"
	"bloom.ai/plant-dashboard/internal/store"
)

const (
	chatSystemInstruction = "You are Bloom AI, an assistant specializing in plant care and mindfulness. " +
		"You should respond with a short answer to the user's question in a friendly tone."

	visionSystemInstruction = "You are an expert in plant biology. You are given an image of a plant and you need to " +
		"describe the plant in detail. You should describe the plant in a way that is easy to understand for a layman."

	visionPrompt = "Describe the plant condition in the image completely. Include the plant's condition analysis, " +
		"scientific classification, health status, growth indicators, environment factors, lighting and temperature " +
		"conditions, and any other relevant details. Make your response concise and to the point."

	errorReply = "I'm sorry, there was an error processing your request."
	emptyReply = "I'm sorry, I couldn't process that request."
)

// ErrNoImage is returned when no image URL is given, configured or captured.
var ErrNoImage = errors.New("no plant image available")

// Reply is the assistant's answer to one user turn.
type Reply struct {
	Content   string `json:"content"`
	Sentiment string `json:"sentiment"`
}

type ImageDescription struct {
	ImageURL    string `json:"imageUrl"`
	Description string `json:"description"`
}

// ImageSource supplies the most recent captured plant image.
type ImageSource interface {
	LatestPlantImage(ctx context.Context) (*store.PlantImage, error)
}

// Assistant turns user text and plant images into replies. It never fails a
// request because the upstream did; it answers with an apology instead.
type Assistant struct {
	provider        Provider
	chatModel       string
	visionModel     string
	defaultImageURL string
	images          ImageSource
	log             *logger.Logger
}

func NewAssistant(p Provider, cfg config.LLMConfig, images ImageSource, log *logger.Logger) *Assistant {
	return &Assistant{
		provider:        p,
		chatModel:       cfg.ChatModel,
		visionModel:     cfg.VisionModel,
		defaultImageURL: cfg.PlantImageURL,
		images:          images,
		log:             log.WithComponent("assistant").WithField("provider", p.Name()),
	}
}

// Respond answers a single user turn.
func (a *Assistant) Respond(ctx context.Context, text string) Reply {
	content, err := a.provider.Complete(ctx, CompletionRequest{
		Model:       a.chatModel,
		System:      chatSystemInstruction,
		Prompt:      text,
		Temperature: 0.5,
		MaxTokens:   1024,
		TopP:        1,
	})
	switch {
	case errors.Is(err, ErrMalformedResponse):
		a.log.Warn().Err(err).Msg("Completion had no usable choice")
		return Reply{Content: emptyReply, Sentiment: sentiment.Positive}
	case err != nil:
		a.log.Error().Err(err).Msg("Error processing request")
		return Reply{Content: errorReply, Sentiment: sentiment.Negative}
	case content == "":
		return Reply{Content: emptyReply, Sentiment: sentiment.Positive}
	}
	return Reply{Content: content, Sentiment: sentiment.Positive}
}

// DescribeImage asks the vision model about the plant at imageURL. An empty
// imageURL falls back to the configured image, then to the latest capture.
func (a *Assistant) DescribeImage(ctx context.Context, imageURL string) (ImageDescription, error) {
	if imageURL == "" {
		resolved, err := a.resolveImageURL(ctx)
		if err != nil {
			return ImageDescription{}, err
		}
		imageURL = resolved
	}

	content, err := a.provider.Complete(ctx, CompletionRequest{
		Model:       a.visionModel,
		System:      visionSystemInstruction,
		Prompt:      visionPrompt,
		ImageURL:    imageURL,
		Temperature: 1,
		MaxTokens:   1024,
		TopP:        1,
	})
	switch {
	case errors.Is(err, ErrMalformedResponse):
		a.log.Warn().Err(err).Str("image_url", imageURL).Msg("Vision completion had no usable choice")
		content = emptyReply
	case err != nil:
		a.log.Error().Err(err).Str("image_url", imageURL).Msg("Error describing plant image")
		content = errorReply
	case content == "":
		content = emptyReply
	}
	return ImageDescription{ImageURL: imageURL, Description: content}, nil
}

func (a *Assistant) resolveImageURL(ctx context.Context) (string, error) {
	if a.defaultImageURL != "" {
		return a.defaultImageURL, nil
	}
	if a.images == nil {
		return "", ErrNoImage
	}
	img, err := a.images.LatestPlantImage(ctx)
	if err != nil {
		return "", err
	}
	if img == nil || img.URL == "" {
		return "", ErrNoImage
	}
	return img.URL, nil
}
