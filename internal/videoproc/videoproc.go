// Package videoproc provides ffmpeg-based video post-processing
// operations that each produce a single validated output file.
package videoproc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mediapipe/internal/media"
)

// Processor wraps the ffmpeg binary resolution shared by subtitle
// burning and zoom rendering.
type Processor struct {
	binDir string
}

// New creates a Processor that resolves ffmpeg under binDir.
func New(binDir string) *Processor {
	return &Processor{binDir: binDir}
}

// BurnSubtitles burns srtPath into videoPath via ffmpeg's subtitles
// filter, writing the result under outDir.
func (p *Processor) BurnSubtitles(ctx context.Context, videoPath, srtPath, outDir string) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("input video not found: %w", err)
	}
	if _, err := os.Stat(srtPath); err != nil {
		return "", fmt.Errorf("input subtitle file not found: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create video output directory: %w", err)
	}

	outputPath := filepath.Join(outDir, "video.mp4")
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("subtitles=%s", escapeFilterPath(srtPath)),
		"-c:a", "copy",
		outputPath,
	}

	if _, err := media.RunFFmpeg(ctx, p.binDir, args); err != nil {
		return "", fmt.Errorf("burn subtitles: %w", err)
	}

	if err := validateNonEmpty(outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

// Defaults for the image-to-video zoom render.
const (
	defaultFrameRate = 25
	zoomStartScale   = 1.0
)

// RenderZoom renders a still image into a short video clip with a
// linear Ken-Burns zoom via ffmpeg's zoompan filter.
func (p *Processor) RenderZoom(ctx context.Context, imagePath string, durationSeconds, zoomFactor float64, outDir string) (string, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("input image not found: %w", err)
	}
	if durationSeconds <= 0 {
		durationSeconds = 5
	}
	if zoomFactor <= zoomStartScale {
		zoomFactor = 1.3
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create video output directory: %w", err)
	}

	totalFrames := int(durationSeconds * defaultFrameRate)
	zoomStep := (zoomFactor - zoomStartScale) / float64(totalFrames)

	outputPath := filepath.Join(outDir, "video.mp4")
	zoompan := fmt.Sprintf("zoompan=z='min(zoom+%.8f,%.4f)':d=%d:fps=%d",
		zoomStep, zoomFactor, totalFrames, defaultFrameRate)

	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-vf", zoompan,
		"-t", fmt.Sprintf("%.3f", durationSeconds),
		"-pix_fmt", "yuv420p",
		outputPath,
	}

	if _, err := media.RunFFmpeg(ctx, p.binDir, args); err != nil {
		return "", fmt.Errorf("render zoom video: %w", err)
	}

	if err := validateNonEmpty(outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

func validateNonEmpty(path string) error {
	size, err := media.FileSize(path)
	if err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	if size == 0 {
		return fmt.Errorf("output file %s is empty", path)
	}
	return nil
}

// escapeFilterPath escapes characters ffmpeg's filtergraph parser treats
// specially when a path is embedded in a filter argument.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
	)
	return replacer.Replace(path)
}
