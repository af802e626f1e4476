package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Synthesizer fans variant requests out to an ImageProvider under a
// semaphore, the same bounded-concurrency shape used for chunk
// transcription.
type Synthesizer struct {
	provider    ImageProvider
	parallelism int
}

// NewSynthesizer creates a Synthesizer. parallelism bounds concurrent
// in-flight variant requests.
func NewSynthesizer(provider ImageProvider, parallelism int) *Synthesizer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Synthesizer{provider: provider, parallelism: parallelism}
}

// Synthesize requests variantCount images for prompt, writing each to
// outDir/image_{n}.png. A single variant's failure is a warning, not a
// fatal error, unless every variant fails.
func (s *Synthesizer) Synthesize(ctx context.Context, prompt string, variantCount int, outDir string) ([]string, []string, error) {
	if variantCount < 1 {
		variantCount = 1
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create image output directory: %w", err)
	}

	paths := make([]string, variantCount)
	errs := make([]error, variantCount)

	sem := make(chan struct{}, minInt(s.parallelism, variantCount))
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < variantCount; i++ {
		i := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			data, err := s.provider.GenerateImage(gctx, prompt)
			if err != nil {
				errs[i] = err
				return nil
			}

			path := filepath.Join(outDir, fmt.Sprintf("image_%d.png", i+1))
			if writeErr := os.WriteFile(path, data, 0644); writeErr != nil {
				errs[i] = writeErr
				return nil
			}
			paths[i] = path
			return nil
		})
	}

	_ = g.Wait()

	var successPaths []string
	var warnings []string
	for i, p := range paths {
		if p != "" {
			successPaths = append(successPaths, p)
			continue
		}
		slog.Warn("image variant failed", "variant", i+1, "error", errs[i])
		warnings = append(warnings, fmt.Sprintf("variant %d failed: %v", i+1, errs[i]))
	}

	if len(successPaths) == 0 {
		return nil, warnings, fmt.Errorf("all %d image variants failed", variantCount)
	}

	return successPaths, warnings, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
