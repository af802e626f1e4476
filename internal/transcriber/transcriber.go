// Package transcriber submits a single chunk to the external
// transcription service with a disk cache, retry policy, and
// silent-failure/hallucination detection.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"mediapipe/internal/apierr"
	"mediapipe/internal/media"
	"mediapipe/internal/models"
)

// Limits and thresholds for the external transcription service's upload
// contract and silent-failure detection.
const (
	maxUploadBytes      = 25 * 1024 * 1024
	smallFileWarnBytes  = 1024
	shortTextChars      = 10
	shortDurationRatio  = 0.10
	hallucinationRun    = 3
	hallucinationMinLen = 5

	defaultRequestTimeout = 10 * time.Minute
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client submits chunks to the external transcription service.
type Client struct {
	httpClient httpDoer
	cfg        Config
}

// New creates a Client with the given configuration.
func New(cfg Config, doer httpDoer) *Client {
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: doer, cfg: cfg}
}

// verboseJSONResponse mirrors the external service's verbose_json shape,
// modeled explicitly rather than as a generic map so field access stays
// type-checked.
type verboseJSONResponse struct {
	Task     string                  `json:"task"`
	Language string                  `json:"language"`
	Duration float64                 `json:"duration"`
	Text     string                  `json:"text"`
	Segments []models.ServiceSegment `json:"segments"`
}

// Transcribe processes one chunk end to end: cache lookup, pre-flight
// checks, retrying submission, silent-failure detection, and cache
// write on success.
func (c *Client) Transcribe(ctx context.Context, chunk models.AudioChunk, cacheDir string) models.ChunkResult {
	cachePath := filepath.Join(cacheDir, fmt.Sprintf("chunk_%03d.json", chunk.Index))

	if cached, ok := c.readCache(cachePath, chunk); ok {
		return cached
	}

	size, err := media.FileSize(chunk.SourcePath)
	if err != nil {
		return failResult(chunk, 0, fmt.Sprintf("stat chunk file: %v", err), false)
	}
	if size == 0 {
		return failResult(chunk, 0, "chunk file is empty", false)
	}
	if size > maxUploadBytes {
		return failResult(chunk, 0, fmt.Sprintf("chunk size %d exceeds %d byte service limit", size, maxUploadBytes), false)
	}
	if size < smallFileWarnBytes {
		slog.Warn("chunk file suspiciously small", "chunk_index", chunk.Index, "bytes", size)
	}

	retryCfg := apierr.RetryConfig{
		MaxRetries: c.cfg.MaxRetries,
		BaseDelay:  c.cfg.BaseDelay,
		MaxDelay:   c.cfg.MaxDelay,
	}

	resp, attempts, err := apierr.RetryWithBackoff(ctx, retryCfg, func(attempt int) (*verboseJSONResponse, error) {
		raw, statusCode, doErr := c.submit(ctx, chunk.SourcePath)
		if doErr != nil {
			return nil, apierr.ErrTimeout
		}
		if classified := apierr.ClassifyStatus(statusCode, ""); classified != nil {
			return nil, classified
		}

		var parsed verboseJSONResponse
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil {
			return nil, fmt.Errorf("%w: parse response: %v", apierr.ErrSilentFailure, jsonErr)
		}

		if silentErr := detectSilentFailure(parsed, chunk.Duration); silentErr != nil {
			return nil, silentErr
		}

		return &parsed, nil
	}, apierr.IsRetryable)

	if err != nil {
		slog.Warn("chunk transcription failed", "chunk_index", chunk.Index, "attempts", attempts, "error", err)
		return models.ChunkResult{
			ChunkIndex: chunk.Index,
			Chunk:      chunk,
			Success:    false,
			Error:      err.Error(),
			RetryCount: attempts,
			Retryable:  apierr.IsRetryable(err),
		}
	}

	raw, _ := json.Marshal(resp)
	if writeErr := atomicWrite(cachePath, raw); writeErr != nil {
		slog.Error("failed to write transcription cache", "chunk_index", chunk.Index, "error", writeErr)
	}

	return models.ChunkResult{
		ChunkIndex:       chunk.Index,
		Chunk:            chunk,
		Success:          true,
		Segments:         resp.Segments,
		RetryCount:       attempts,
		ReportedDuration: resp.Duration,
	}
}

// readCache loads a previously cached response and validates it against
// the chunk's duration (within 5%). On mismatch the stale cache file is
// removed so the caller falls through to a fresh submission.
func (c *Client) readCache(cachePath string, chunk models.AudioChunk) (models.ChunkResult, bool) {
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return models.ChunkResult{}, false
	}

	var parsed verboseJSONResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		_ = os.Remove(cachePath)
		return models.ChunkResult{}, false
	}

	if chunk.Duration > 0 && relativeDiff(parsed.Duration, chunk.Duration) > 0.05 {
		_ = os.Remove(cachePath)
		return models.ChunkResult{}, false
	}

	return models.ChunkResult{
		ChunkIndex:       chunk.Index,
		Chunk:            chunk,
		Success:          true,
		Segments:         parsed.Segments,
		ReportedDuration: parsed.Duration,
	}, true
}

// submit performs the multipart POST against the external transcription
// service's endpoint.
func (c *Client) submit(ctx context.Context, audioPath string) ([]byte, int, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open chunk file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, 0, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, 0, fmt.Errorf("copy chunk into form: %w", err)
	}

	_ = writer.WriteField("model", c.cfg.Model)
	_ = writer.WriteField("response_format", "verbose_json")
	_ = writer.WriteField("timestamp_granularities[]", "segment")

	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// detectSilentFailure flags a transcription that returned 200 OK but
// carries no usable content: an empty segment list, or implausibly
// short text for the duration of audio it claims to cover.
func detectSilentFailure(resp verboseJSONResponse, chunkDuration float64) error {
	if len(resp.Segments) == 0 {
		return fmt.Errorf("%w: empty segment list", apierr.ErrSilentFailure)
	}

	if len(resp.Text) < shortTextChars && chunkDuration > 0 && resp.Duration < shortDurationRatio*chunkDuration {
		return fmt.Errorf("%w: text too short for reported duration", apierr.ErrSilentFailure)
	}

	if repeated, ok := hallucinationRunDetected(resp.Segments); ok {
		return fmt.Errorf("%w: repeated segment text %q", apierr.ErrSilentFailure, repeated)
	}

	return nil
}

// hallucinationRunDetected scans for K consecutive segments whose
// normalized text is identical and at least hallucinationMinLen long.
func hallucinationRunDetected(segments []models.ServiceSegment) (string, bool) {
	runText := ""
	runLength := 0

	for _, seg := range segments {
		normalized := normalizeText(seg.Text)
		if normalized == runText && len(normalized) >= hallucinationMinLen {
			runLength++
		} else {
			runText = normalized
			runLength = 1
		}
		if runLength >= hallucinationRun && len(normalized) >= hallucinationMinLen {
			return seg.Text, true
		}
	}
	return "", false
}

// normalizeText applies NFKD normalization, strips non-alphanumeric
// characters, lowercases, and collapses whitespace so near-duplicate
// segment text compares equal regardless of punctuation or accents.
func normalizeText(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	lastWasSpace := false
	for _, r := range decomposed {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasSpace = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			lastWasSpace = false
		case r == ' ' || r == '\t' || r == '\n':
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
		default:
			// Drop all other (accent marks, punctuation, symbols).
		}
	}
	return strings.TrimSpace(b.String())
}

func relativeDiff(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return absFloat(a-b) / b
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// failResult builds a terminal ChunkResult for a local pre-flight check
// that failed before any request reached the external service. retryable
// is almost always false here: a chunk file that is missing, empty, or
// over the service's size limit will fail identically on every attempt.
func failResult(chunk models.AudioChunk, retries int, message string, retryable bool) models.ChunkResult {
	return models.ChunkResult{
		ChunkIndex: chunk.Index,
		Chunk:      chunk,
		Success:    false,
		Error:      message,
		RetryCount: retries,
		Retryable:  retryable,
	}
}

// atomicWrite writes data to path via a temp-file-then-rename so a
// crash mid-write never leaves a partially-written cache entry behind.
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
