// Package apierr provides shared error sentinels and retry infrastructure
// for HTTP-based API clients. Provider-specific error types are classified
// into these sentinels at the adapter boundary; callers check with
// errors.Is(err, apierr.ErrRateLimit) etc.
package apierr

import (
	"context"
	"errors"
)

// Sentinel errors for external service interaction failures.
var (
	// ErrRateLimit indicates the service rate limit was exceeded (retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTimeout indicates a request timed out or the service returned 5xx (retryable).
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates authentication failed (not retryable).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates the request itself was rejected, e.g. HTTP 400 (not retryable).
	ErrBadRequest = errors.New("bad request")

	// ErrPayloadTooLarge indicates HTTP 413 (not retryable).
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrSilentFailure indicates a syntactically valid but semantically empty
	// or degenerate response (empty segments, near-empty text, hallucinated
	// repeats). Retryable the same as a transient failure.
	ErrSilentFailure = errors.New("silent failure detected")
)

// ClassifyStatus maps an HTTP status code from the external transcription
// service to a sentinel error. A 2xx status has no classification and
// ClassifyStatus returns nil.
func ClassifyStatus(statusCode int, message string) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == 400:
		return ErrBadRequest
	case statusCode == 413:
		return ErrPayloadTooLarge
	case statusCode == 401 || statusCode == 403:
		return ErrAuthFailed
	case statusCode == 429:
		return ErrRateLimit
	case statusCode >= 500:
		return ErrTimeout
	default:
		return ErrBadRequest
	}
}

// IsRetryable reports whether an error classified by this package (or a
// context error) should trigger another attempt. Non-retryable: bad
// request, payload too large, auth failure, and cancellation.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrPayloadTooLarge), errors.Is(err, ErrAuthFailed), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRateLimit), errors.Is(err, ErrTimeout), errors.Is(err, ErrSilentFailure):
		return true
	default:
		return true
	}
}
