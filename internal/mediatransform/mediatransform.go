// Package mediatransform applies a tempo change to an uploaded audio
// file and validates the result before any chunking is attempted.
package mediatransform

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"mediapipe/internal/media"
)

// Validation thresholds for accelerated-output duration and duplication
// detection.
const (
	durationTolerance  = 0.05 // |actual-expected|/expected
	duplicationFactor  = 1.9
	corruptionFactor   = 0.5
	longSourceSeconds  = 2 * 60 * 60
	loopPatternModulus = 1800.0
	loopPatternWindow  = 60.0
)

// Result is the accelerated file's path and measured duration, plus any
// validation warnings raised along the way.
type Result struct {
	AcceleratedPath     string
	AcceleratedDuration float64
	OriginalDuration    float64
	OriginalBytes       int64
	Warnings            []string
}

// Transformer applies a tempo filter and validates the outcome. It is a
// struct (rather than a bare function) so the bin directory is configured
// once and reused across jobs.
type Transformer struct {
	binDir string
}

// New creates a Transformer that resolves ffmpeg/ffprobe under binDir
// (falling back to $PATH when binDir is empty or the binary is absent).
func New(binDir string) *Transformer {
	return &Transformer{binDir: binDir}
}

// ProcessAudio applies a tempo filter of factor F to inputPath, writing an
// uncompressed PCM working file into outputDir, then validates the
// result's duration and checks for duplication artifacts.
func (t *Transformer) ProcessAudio(ctx context.Context, inputPath, outputDir string, speedFactor float64) (Result, error) {
	var result Result

	originalDuration, err := media.ProbeDuration(ctx, t.binDir, inputPath)
	if err != nil {
		return result, fmt.Errorf("probe source duration: %w", err)
	}
	originalBytes, err := media.FileSize(inputPath)
	if err != nil {
		return result, fmt.Errorf("stat source file: %w", err)
	}

	expected := originalDuration / speedFactor
	outputPath := filepath.Join(outputDir, "accelerated.wav")

	args := []string{
		"-y",
		"-i", inputPath,
		"-filter:a", buildAtempoChain(speedFactor),
		"-ar", "48000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outputPath,
	}
	if _, err := media.RunFFmpeg(ctx, t.binDir, args); err != nil {
		return result, fmt.Errorf("apply tempo filter: %w", err)
	}

	actualDuration, err := media.ProbeDuration(ctx, t.binDir, outputPath)
	if err != nil {
		return result, fmt.Errorf("probe accelerated duration: %w", err)
	}
	actualBytes, err := media.FileSize(outputPath)
	if err != nil {
		return result, fmt.Errorf("stat accelerated file: %w", err)
	}

	if actualBytes == 0 || actualDuration < corruptionFactor*expected {
		return result, fmt.Errorf("%w: expected ~%.2fs, got %.2fs (%d bytes)", ErrCorruption, expected, actualDuration, actualBytes)
	}
	if actualDuration > duplicationFactor*expected {
		return result, fmt.Errorf("%w: expected ~%.2fs, got %.2fs", ErrDuplication, expected, actualDuration)
	}
	if relativeDiff(actualDuration, expected) > durationTolerance {
		return result, fmt.Errorf("%w: expected %.2fs, got %.2fs", ErrDurationMismatch, expected, actualDuration)
	}

	result = Result{
		AcceleratedPath:     outputPath,
		AcceleratedDuration: actualDuration,
		OriginalDuration:    originalDuration,
		OriginalBytes:       originalBytes,
	}

	if originalDuration > longSourceSeconds {
		result.Warnings = append(result.Warnings, fmt.Sprintf("source duration %.0fs exceeds 2h", originalDuration))
	}
	if math.Mod(originalDuration, loopPatternModulus) < loopPatternWindow {
		result.Warnings = append(result.Warnings, "source duration matches a 30-minute loop pattern heuristic")
	}

	slog.Info("media transform complete",
		"original_duration", originalDuration,
		"accelerated_duration", actualDuration,
		"speed_factor", speedFactor)

	return result, nil
}

func relativeDiff(actual, expected float64) float64 {
	if expected == 0 {
		return 0
	}
	return math.Abs(actual-expected) / expected
}

// buildAtempoChain decomposes an arbitrary positive speed factor into a
// chain of ffmpeg atempo filters, since a single atempo stage only accepts
// factors in [0.5, 2.0].
func buildAtempoChain(factor float64) string {
	const lo, hi = 0.5, 2.0
	var stages []float64

	remaining := factor
	for remaining > hi {
		stages = append(stages, hi)
		remaining /= hi
	}
	for remaining < lo {
		stages = append(stages, lo)
		remaining /= lo
	}
	stages = append(stages, remaining)

	chain := ""
	for i, s := range stages {
		if i > 0 {
			chain += ","
		}
		chain += fmt.Sprintf("atempo=%.6f", s)
	}
	return chain
}
