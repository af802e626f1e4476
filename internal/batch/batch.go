// Package batch fans a job's chunks out to the transcriber with bounded
// concurrency, and re-drives only the chunks that failed across a small
// number of global retry rounds.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"mediapipe/internal/models"
)

// Defaults for fan-out parallelism and global retry rounds.
const (
	DefaultParallelism   = 4
	DefaultGlobalRetries = 3
)

// Transcriber is the subset of transcriber.Client's behavior batch needs.
// Defined here (rather than imported) so batch can be tested against a
// fake without depending on the transcriber package's HTTP plumbing.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk models.AudioChunk, cacheDir string) models.ChunkResult
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithParallelism overrides the number of chunks transcribed concurrently.
func WithParallelism(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithGlobalRetries overrides the number of whole-batch retry rounds
// applied to chunks that failed in the previous round.
func WithGlobalRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.globalRetries = n
		}
	}
}

// Coordinator runs a job's chunks through a Transcriber with bounded
// concurrency and whole-batch retry rounds for chunks that fail.
type Coordinator struct {
	transcriber   Transcriber
	parallelism   int
	globalRetries int
}

// New creates a Coordinator around the given Transcriber.
func New(transcriber Transcriber, opts ...Option) *Coordinator {
	c := &Coordinator{
		transcriber:   transcriber,
		parallelism:   DefaultParallelism,
		globalRetries: DefaultGlobalRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run transcribes every chunk, retrying only the chunks that failed in
// the previous round, up to globalRetries additional rounds. It returns
// results sorted by chunk index, regardless of how many rounds were
// needed or whether every chunk ultimately succeeded; callers decide
// what counts as an acceptable failure rate.
func (c *Coordinator) Run(ctx context.Context, chunks []models.AudioChunk, cacheDir string) ([]models.ChunkResult, error) {
	results := make(map[int]models.ChunkResult, len(chunks))
	pending := append([]models.AudioChunk(nil), chunks...)

	for round := 0; ; round++ {
		if len(pending) == 0 {
			break
		}

		roundResults, err := c.runRound(ctx, pending, cacheDir)
		if err != nil {
			return nil, err
		}

		var stillFailing []models.AudioChunk
		for _, r := range roundResults {
			results[r.ChunkIndex] = r
			if !r.Success && r.Retryable {
				stillFailing = append(stillFailing, r.Chunk)
			}
		}
		pending = stillFailing

		if len(pending) == 0 || round >= c.globalRetries {
			break
		}

		wait := time.Duration(3*(round+1)) * time.Second
		slog.Warn("retrying failed chunks", "round", round+1, "remaining", len(pending), "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	sorted := make([]models.ChunkResult, 0, len(results))
	for _, r := range results {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	return sorted, nil
}

// runRound transcribes one batch of chunks concurrently, bounded by
// parallelism. A single chunk's failure never aborts the round: results
// are always returned for every chunk passed in, success or not.
func (c *Coordinator) runRound(ctx context.Context, chunks []models.AudioChunk, cacheDir string) ([]models.ChunkResult, error) {
	results := make([]models.ChunkResult, len(chunks))
	sem := make(chan struct{}, c.parallelism)

	g, gctx := errgroup.WithContext(ctx)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			results[i] = c.transcriber.Transcribe(gctx, chunk, cacheDir)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
