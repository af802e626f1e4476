package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	openrouter "github.com/revrost/go-openrouter"
)

// ImageProvider generates a single image from a text prompt, mirroring
// the shape of llm.Provider for chat completions.
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	Name() string
}

// OpenAIImageProvider synthesizes images via the OpenAI image generation
// endpoint.
type OpenAIImageProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIImageProvider creates an OpenAIImageProvider. model defaults
// to "dall-e-3" when empty.
func NewOpenAIImageProvider(apiKey, model string) *OpenAIImageProvider {
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	return &OpenAIImageProvider{client: openai.NewClient(apiKey), model: model}
}

func (p *OpenAIImageProvider) Name() string { return "openai" }

// GenerateImage requests a single base64-encoded image and decodes it.
func (p *OpenAIImageProvider) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai image generation: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai image generation returned no image data")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode openai image payload: %w", err)
	}
	return data, nil
}

// OpenRouterImageProvider synthesizes images via an OpenRouter
// multimodal chat model that returns image content, for parity with
// the chat provider's routing-by-prefix convention.
type OpenRouterImageProvider struct {
	client *openrouter.Client
	model  string
}

// NewOpenRouterImageProvider creates an OpenRouterImageProvider.
func NewOpenRouterImageProvider(apiKey, model string) *OpenRouterImageProvider {
	return &OpenRouterImageProvider{client: openrouter.NewClient(apiKey), model: model}
}

func (p *OpenRouterImageProvider) Name() string { return "openrouter" }

// GenerateImage asks an image-capable chat model to return a data URL
// and decodes the base64 payload out of it.
func (p *OpenRouterImageProvider) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model: p.model,
		Messages: []openrouter.ChatCompletionMessage{
			{
				Role: "user",
				Content: openrouter.Content{
					Text: prompt,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter image generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openrouter image generation returned no choices")
	}

	text := resp.Choices[0].Message.Content.Text
	const marker = "base64,"
	idx := strings.Index(text, marker)
	if idx == -1 {
		return nil, fmt.Errorf("openrouter image generation response did not contain image data")
	}

	data, err := base64.StdEncoding.DecodeString(text[idx+len(marker):])
	if err != nil {
		return nil, fmt.Errorf("decode openrouter image payload: %w", err)
	}
	return data, nil
}
