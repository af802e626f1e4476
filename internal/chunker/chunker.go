// Package chunker plans and cuts chunk boundaries that satisfy both a
// size cap and a duration cap on the accelerated working file, while
// recording chunk timing on the original timeline.
package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"mediapipe/internal/media"
	"mediapipe/internal/models"
)

// Chunk size and duration caps, and their defaults.
const (
	DefaultMaxChunkSizeBytes    = 18 * 1024 * 1024
	DefaultMaxChunkDuration     = 1200.0 // seconds, accelerated timeline
	defaultHalveFloorSeconds    = 1.0    // accelerated timeline; stop halving below this
	defaultMinChunkSeconds      = 0.1    // never emit a chunk shorter than this
)

// Option configures a Chunker.
type Option func(*Chunker)

// WithSizeCapBytes overrides the per-chunk encoded size cap.
func WithSizeCapBytes(n int64) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.sizeCapBytes = n
		}
	}
}

// WithDurationCapSeconds overrides the per-chunk accelerated-timeline
// duration cap.
func WithDurationCapSeconds(s float64) Option {
	return func(c *Chunker) {
		if s > 0 {
			c.durationCapSeconds = s
		}
	}
}

// WithSilenceDetection enables snap-to-silence cutting with the given
// ffmpeg silencedetect parameters and minimum chunk length (seconds, on
// the original timeline).
func WithSilenceDetection(thresholdDB, minSilenceSeconds, windowSeconds, minChunkSeconds float64) Option {
	return func(c *Chunker) {
		c.silenceEnabled = true
		c.noiseDB = thresholdDB
		c.minSilenceSeconds = minSilenceSeconds
		c.window = windowSeconds
		c.minChunkOriginalSeconds = minChunkSeconds
	}
}

// Chunker plans and cuts chunk boundaries for one job's accelerated
// working file.
type Chunker struct {
	binDir             string
	sizeCapBytes       int64
	durationCapSeconds float64

	silenceEnabled          bool
	noiseDB                 float64
	minSilenceSeconds       float64
	window                  float64
	minChunkOriginalSeconds float64
}

// New creates a Chunker. By default it uses uniform cutting; call
// WithSilenceDetection to prefer snap-to-silence boundaries.
func New(binDir string, opts ...Option) *Chunker {
	c := &Chunker{
		binDir:             binDir,
		sizeCapBytes:       DefaultMaxChunkSizeBytes,
		durationCapSeconds: DefaultMaxChunkDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// boundary is an accelerated-timeline cut point.
type boundary struct {
	seconds float64
}

// PlanChunks cuts acceleratedPath into ordered chunks satisfying both the
// size and duration caps, emitting chunk files under outputDir. Returned
// chunks carry original-timeline Start/Duration (accelerated values
// multiplied by speedFactor).
func (c *Chunker) PlanChunks(ctx context.Context, acceleratedPath string, acceleratedDuration, originalDuration float64, originalBytes int64, outputDir string, speedFactor float64) ([]models.AudioChunk, []string, error) {
	if acceleratedDuration <= 0 {
		return nil, nil, fmt.Errorf("accelerated duration must be positive")
	}

	minChunksBySize := int(math.Ceil(float64(originalBytes) / float64(c.sizeCapBytes)))
	minChunksByDuration := int(math.Ceil(acceleratedDuration / c.durationCapSeconds))
	n := maxInt(1, maxInt(minChunksBySize, minChunksByDuration))

	idealAccDuration := acceleratedDuration / float64(n)

	boundaries := c.planBoundaries(ctx, acceleratedPath, acceleratedDuration, idealAccDuration, n, speedFactor)

	var warnings []string
	var chunks []models.AudioChunk
	index := 1

	for i := 0; i < len(boundaries)-1; i++ {
		start := boundaries[i].seconds
		end := boundaries[i+1].seconds
		if end-start < defaultMinChunkSeconds {
			continue
		}

		pieces, pieceWarnings, err := c.cutWithSizeEnforcement(ctx, acceleratedPath, outputDir, start, end, &index)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, pieceWarnings...)
		chunks = append(chunks, toOriginalTimeline(pieces, speedFactor)...)
	}

	fixContiguity(chunks, originalDuration)

	slog.Info("chunk plan complete", "chunks", len(chunks), "target_count", n)
	return chunks, warnings, nil
}

// planBoundaries picks N-1 internal cut points on the accelerated
// timeline. When silence detection is enabled it snaps each ideal target
// to the nearest silence midpoint within ±window, subject to a minimum
// chunk length; otherwise it cuts uniformly.
func (c *Chunker) planBoundaries(ctx context.Context, acceleratedPath string, acceleratedDuration, idealAccDuration float64, n int, speedFactor float64) []boundary {
	boundaries := []boundary{{0}}

	var silences []media.Silence
	if c.silenceEnabled {
		detected, err := media.DetectSilences(ctx, c.binDir, acceleratedPath, c.noiseDB, c.minSilenceSeconds)
		if err != nil {
			slog.Warn("silence detection failed, falling back to uniform cuts", "error", err)
		} else {
			silences = detected
		}
	}

	minChunkAccSeconds := c.minChunkOriginalSeconds / speedFactor
	lastCut := 0.0

	for i := 1; i < n; i++ {
		target := idealAccDuration * float64(i)
		if target >= acceleratedDuration {
			break
		}

		cut := target
		if len(silences) > 0 {
			if mid, ok := nearestSilenceMidpoint(silences, target, c.window); ok {
				if mid-lastCut >= minChunkAccSeconds && acceleratedDuration-mid >= minChunkAccSeconds {
					cut = mid
				}
			}
		}
		if cut <= lastCut {
			continue
		}
		boundaries = append(boundaries, boundary{cut})
		lastCut = cut
	}

	boundaries = append(boundaries, boundary{acceleratedDuration})
	return boundaries
}

// nearestSilenceMidpoint returns the midpoint of the silence interval
// closest to target, if one exists within ±window.
func nearestSilenceMidpoint(silences []media.Silence, target, window float64) (float64, bool) {
	bestMid := 0.0
	bestDist := math.Inf(1)
	found := false
	for _, s := range silences {
		mid := s.Midpoint()
		d := math.Abs(mid - target)
		if d <= window && d < bestDist {
			bestDist = d
			bestMid = mid
			found = true
		}
	}
	return bestMid, found
}

// cutSegment is an accelerated-timeline [start,end) piece and its file.
type cutSegment struct {
	start, end float64
	path       string
}

// cutWithSizeEnforcement extracts [start,end) from acceleratedPath,
// halving the target duration and re-cutting whenever the encoded output
// exceeds the size cap.
func (c *Chunker) cutWithSizeEnforcement(ctx context.Context, acceleratedPath, outputDir string, start, end float64, index *int) ([]cutSegment, []string, error) {
	var warnings []string
	var result []cutSegment

	type piece struct{ start, end float64 }
	queue := []piece{{start, end}}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		path, err := c.extractChunk(ctx, acceleratedPath, outputDir, p.start, p.end, *index)
		if err != nil {
			return nil, nil, err
		}

		size, err := media.FileSize(path)
		if err != nil {
			return nil, nil, fmt.Errorf("stat chunk file: %w", err)
		}

		duration := p.end - p.start
		if size > c.sizeCapBytes && duration/2 > defaultHalveFloorSeconds {
			mid := p.start + duration/2
			queue = append([]piece{{p.start, mid}, {mid, p.end}}, queue...)
			continue
		}

		if size > c.sizeCapBytes {
			warnings = append(warnings, fmt.Sprintf("chunk %d exceeds %d byte size cap after halving to the floor (%d bytes)", *index, c.sizeCapBytes, size))
		}

		result = append(result, cutSegment{start: p.start, end: p.end, path: path})
		*index++
	}

	sort.Slice(result, func(i, j int) bool { return result[i].start < result[j].start })
	return result, warnings, nil
}

// extractChunk cuts [start,end) from acceleratedPath into a numbered mp3
// file under outputDir/chunks.
func (c *Chunker) extractChunk(ctx context.Context, acceleratedPath, outputDir string, start, end float64, index int) (string, error) {
	chunksDir := filepath.Join(outputDir, "chunks")
	if err := ensureDir(chunksDir); err != nil {
		return "", err
	}

	chunkPath := filepath.Join(chunksDir, fmt.Sprintf("chunk_%03d.mp3", index))
	args := []string{
		"-y",
		"-i", acceleratedPath,
		"-ss", fmt.Sprintf("%.3f", start),
		"-to", fmt.Sprintf("%.3f", end),
		"-c:a", "libmp3lame",
		"-b:a", "64k",
		chunkPath,
	}
	if _, err := media.RunFFmpeg(ctx, c.binDir, args); err != nil {
		return "", fmt.Errorf("extract chunk %d: %w", index, err)
	}
	return chunkPath, nil
}

// toOriginalTimeline converts accelerated-timeline pieces to
// models.AudioChunk values with original-timeline Start/Duration.
func toOriginalTimeline(pieces []cutSegment, speedFactor float64) []models.AudioChunk {
	chunks := make([]models.AudioChunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, models.AudioChunk{
			SourcePath: p.path,
			StartTime:  p.start * speedFactor,
			Duration:   (p.end - p.start) * speedFactor,
		})
	}
	return chunks
}

// fixContiguity assigns final 1-based indices and nudges the last chunk's
// duration so the sum matches originalDuration exactly, absorbing
// floating point drift from repeated multiplication.
func fixContiguity(chunks []models.AudioChunk, originalDuration float64) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].StartTime < chunks[j].StartTime })
	for i := range chunks {
		chunks[i].Index = i + 1
		if i > 0 {
			chunks[i].StartTime = chunks[i-1].StartTime + chunks[i-1].Duration
		}
	}
	if len(chunks) > 0 {
		last := &chunks[len(chunks)-1]
		last.Duration = originalDuration - last.StartTime
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
