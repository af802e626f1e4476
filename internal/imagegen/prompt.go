// Package imagegen turns a short user prompt into a detailed one via a
// chat LLM, then synthesizes one or more images from it.
package imagegen

import (
	"context"
	"log/slog"
	"strings"

	"mediapipe/internal/llm"
)

const enhancerSystemPrompt = "You turn a short image description into a single vivid, detailed " +
	"prompt suitable for an image generation model. Preserve the subject and intent of the " +
	"original request. Respond with only the enhanced prompt, no preamble."

// Enhancer runs a single non-streaming chat completion that expands a
// short prompt into a detailed one.
type Enhancer struct {
	provider llm.Provider
	model    string
}

// NewEnhancer creates an Enhancer backed by the given chat provider.
func NewEnhancer(provider llm.Provider, model string) *Enhancer {
	return &Enhancer{provider: provider, model: model}
}

// Enhance expands rawPrompt. On any provider error, empty output, or
// stream failure it falls back to the raw prompt unchanged; prompt
// enhancement is never allowed to fail an image job outright.
func (e *Enhancer) Enhance(ctx context.Context, rawPrompt string) (string, []string) {
	var warnings []string

	request := &llm.ChatRequest{
		Model: e.model,
		Messages: []llm.Message{
			{Role: "system", Content: enhancerSystemPrompt},
			{Role: "user", Content: rawPrompt},
		},
		Stream: false,
	}

	chunks, err := e.provider.Chat(ctx, request)
	if err != nil {
		slog.Warn("prompt enhancement failed, falling back to raw prompt", "error", err)
		return rawPrompt, append(warnings, "prompt enhancement unavailable, used raw prompt")
	}

	var b strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			slog.Warn("prompt enhancement stream error, falling back to raw prompt", "error", chunk.Error)
			return rawPrompt, append(warnings, "prompt enhancement unavailable, used raw prompt")
		}
		b.WriteString(chunk.Text)
	}

	enhanced := strings.TrimSpace(b.String())
	if enhanced == "" {
		return rawPrompt, append(warnings, "prompt enhancement returned empty output, used raw prompt")
	}

	return enhanced, warnings
}
