package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "mediapipe/internal/configuration"
	"mediapipe/internal/imagegen"
	"mediapipe/internal/llm"
	"mediapipe/internal/orchestrator"
	"mediapipe/internal/videoproc"
)

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	cfg := &config.Configuration{}
	cfg.Security.APIKey = apiKey
	cfg.Storage.TempDirectory = t.TempDir()
	cfg.Storage.OutputDirectory = t.TempDir()
	cfg.Transcription.MaxFileSizeMB = 10

	orch := orchestrator.New(orchestrator.Config{
		TempDir:   cfg.Storage.TempDirectory,
		OutputDir: cfg.Storage.OutputDirectory,
	}, nil)

	enhancer := imagegen.NewEnhancer(noopLLMProvider{}, "test-model")
	synthesizer := imagegen.NewSynthesizer(noopImageProvider{}, 2)
	video := videoproc.New(t.TempDir())

	return NewServer(cfg, orch, enhancer, synthesizer, video)
}

type noopLLMProvider struct{}

func (noopLLMProvider) Name() string { return "noop" }
func (noopLLMProvider) Chat(ctx context.Context, req *llm.ChatRequest) (<-chan llm.ChatResponseChunk, error) {
	ch := make(chan llm.ChatResponseChunk, 1)
	ch <- llm.ChatResponseChunk{Text: "enhanced prompt"}
	close(ch)
	return ch, nil
}

type noopImageProvider struct{}

func (noopImageProvider) Name() string { return "noop" }
func (noopImageProvider) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return []byte("fake-image-bytes"), nil
}

func TestHealth_NoAuthRequired(t *testing.T) {
	server := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAuthMiddleware_RejectsMissingKey(t *testing.T) {
	server := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/status/unknown-job", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_AcceptsAPIKeyHeader(t *testing.T) {
	server := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/status/unknown-job", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_AcceptsBearerToken(t *testing.T) {
	server := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/status/unknown-job", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_OpenWhenNoKeyConfigured(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/status/unknown-job", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStatus_UnknownJobReportsNotExists(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/status/does-not-exist", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body["exists"])
	assert.False(t, body["completed"])
}

func TestHandleStatus_ProcessingJobReportsExistsNotCompleted(t *testing.T) {
	server := newTestServer(t, "")

	jobID := "job-in-flight"
	require.NoError(t, os.MkdirAll(orchestrator.WorkingDir(server.configuration.Storage.TempDirectory, jobID), 0755))

	req := httptest.NewRequest(http.MethodGet, "/status/"+jobID, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["exists"])
	assert.False(t, body["completed"])
}

func TestHandleStatus_CompletedJobReadsManifest(t *testing.T) {
	server := newTestServer(t, "")

	jobID := "job-done"
	manifestPath := orchestrator.ManifestPath(server.configuration.Storage.OutputDirectory, jobID)
	require.NoError(t, os.MkdirAll(filepath.Dir(manifestPath), 0755))
	require.NoError(t, os.WriteFile(manifestPath, []byte("id: "+jobID+"\nstatus: completed\n"), 0644))

	req := httptest.NewRequest(http.MethodGet, "/status/"+jobID, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["exists"])
	assert.True(t, body["completed"])
}

func TestHandleImageGenerate_RejectsEmptyPrompt(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/images/generate", jsonBody(t, map[string]any{"prompt": ""}))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleImageGenerate_Success(t *testing.T) {
	server := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/images/generate", jsonBody(t, map[string]any{"prompt": "a cat", "variants": 2}))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	job, ok := body["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "enhanced prompt", job["enhanced_prompt"])
}
