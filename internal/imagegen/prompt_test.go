package imagegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"mediapipe/internal/llm"
)

type fakeLLMProvider struct {
	chunks []llm.ChatResponseChunk
	err    error
}

func (f *fakeLLMProvider) Name() string { return "fake" }

func (f *fakeLLMProvider) Chat(ctx context.Context, req *llm.ChatRequest) (<-chan llm.ChatResponseChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.ChatResponseChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func TestEnhance_Success(t *testing.T) {
	provider := &fakeLLMProvider{chunks: []llm.ChatResponseChunk{
		{Text: "a vivid "}, {Text: "detailed scene"},
	}}
	enhancer := NewEnhancer(provider, "test-model")

	enhanced, warnings := enhancer.Enhance(context.Background(), "a scene")

	assert.Equal(t, "a vivid detailed scene", enhanced)
	assert.Empty(t, warnings)
}

func TestEnhance_ProviderErrorFallsBackToRaw(t *testing.T) {
	provider := &fakeLLMProvider{err: errors.New("provider unavailable")}
	enhancer := NewEnhancer(provider, "test-model")

	enhanced, warnings := enhancer.Enhance(context.Background(), "a raw prompt")

	assert.Equal(t, "a raw prompt", enhanced)
	assert.NotEmpty(t, warnings)
}

func TestEnhance_StreamErrorFallsBackToRaw(t *testing.T) {
	provider := &fakeLLMProvider{chunks: []llm.ChatResponseChunk{
		{Text: "partial "}, {Error: errors.New("stream broke")},
	}}
	enhancer := NewEnhancer(provider, "test-model")

	enhanced, warnings := enhancer.Enhance(context.Background(), "a raw prompt")

	assert.Equal(t, "a raw prompt", enhanced)
	assert.NotEmpty(t, warnings)
}

func TestEnhance_EmptyOutputFallsBackToRaw(t *testing.T) {
	provider := &fakeLLMProvider{chunks: []llm.ChatResponseChunk{{Text: "   "}}}
	enhancer := NewEnhancer(provider, "test-model")

	enhanced, warnings := enhancer.Enhance(context.Background(), "a raw prompt")

	assert.Equal(t, "a raw prompt", enhanced)
	assert.NotEmpty(t, warnings)
}
