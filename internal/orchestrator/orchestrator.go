// Package orchestrator drives the six phases of a transcription job
// from an uploaded file to finished artifacts, and owns the job's
// working directory lifecycle.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"gopkg.in/yaml.v3"

	"mediapipe/internal/batch"
	"mediapipe/internal/chunker"
	"mediapipe/internal/format"
	"mediapipe/internal/media"
	"mediapipe/internal/mediatransform"
	"mediapipe/internal/models"
	"mediapipe/internal/stitcher"
)

// cleanupDelay is how long after a job reaches a terminal status its
// working directory is kept around before deletion.
const cleanupDelay = 5 * time.Minute

// Config holds the knobs an Orchestrator needs at construction time.
// Values come from the layered YAML+env configuration.
type Config struct {
	BinDir       string
	TempDir      string
	OutputDir    string
	SpeedFactor  float64
	Parallelism  int
	GlobalRetries int
}

// Orchestrator runs jobs end to end and tracks their state in memory.
type Orchestrator struct {
	cfg         Config
	transcriber batch.Transcriber

	mu      sync.RWMutex
	jobs    map[string]*models.Job
	results map[string]*models.TranscriptionResult
}

// New creates an Orchestrator. transcriber is the transcription client
// used by every job's batch coordinator.
func New(cfg Config, transcriber batch.Transcriber) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		transcriber: transcriber,
		jobs:        make(map[string]*models.Job),
		results:     make(map[string]*models.TranscriptionResult),
	}
}

// Submit creates a new job for sourcePath and starts it in the
// background, returning its id immediately. Callers poll Job and
// Result to observe progress and fetch the finished transcript.
func (o *Orchestrator) Submit(ctx context.Context, sourcePath string, speedFactor float64, outputFormat models.OutputFormat) string {
	id, err := gonanoid.New(12)
	if err != nil {
		id = uuid.NewString()
	}

	if speedFactor <= 0 {
		speedFactor = o.cfg.SpeedFactor
	}

	job := &models.Job{
		ID:              id,
		SpeedFactor:     speedFactor,
		RequestedFormat: outputFormat,
		Status:          models.JobStatusProcessing,
		CreatedAt:       timeNow(),
	}
	o.putJob(job)

	go o.runJob(ctx, job, sourcePath)

	return id
}

func (o *Orchestrator) runJob(ctx context.Context, job *models.Job, sourcePath string) {
	started := timeNow()
	result, runErr := o.run(ctx, job, sourcePath)
	job.WallTime = timeNow().Sub(started)
	job.CompletedAt = timeNow()

	if runErr != nil {
		job.Status = models.JobStatusFailed
		job.Error = runErr.Error()
		o.putJob(job)
		o.writeManifest(job, nil)
		o.scheduleCleanup(job.ID)
		return
	}

	o.putJob(job)
	o.putResult(job.ID, result)
	o.writeManifest(job, result.Formats)
	o.scheduleCleanup(job.ID)
}

// manifestRecord is the on-disk summary written to OUTPUT_DIR/{id}/manifest.yaml
// on terminal transition. GET /status/{jobId} checks for the presence of
// this file (not the in-memory job map) once the working directory has been
// swept, so job completion survives both cleanup and a server restart.
type manifestRecord struct {
	ID          string               `yaml:"id"`
	Kind        string               `yaml:"kind"`
	Status      models.JobStatus     `yaml:"status"`
	CreatedAt   time.Time            `yaml:"created_at"`
	CompletedAt time.Time            `yaml:"completed_at"`
	Error       string               `yaml:"error,omitempty"`
	Artifacts   *models.ArtifactPaths `yaml:"artifacts,omitempty"`
}

// writeManifest persists job's terminal state to disk. A failure to write
// it is logged, not fatal: the in-memory job map still answers Job/Result
// for the life of this process, and a missing manifest just means a status
// check issued after this process restarts and the temp directory was
// swept will see the job as never having existed.
func (o *Orchestrator) writeManifest(job *models.Job, artifacts *models.ArtifactPaths) {
	record := manifestRecord{
		ID:          job.ID,
		Kind:        "transcription",
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
		Artifacts:   artifacts,
	}

	data, err := yaml.Marshal(record)
	if err != nil {
		slog.Error("marshal job manifest", "job_id", job.ID, "error", err)
		return
	}

	outDir := filepath.Join(o.cfg.OutputDir, job.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		slog.Error("create output directory for manifest", "job_id", job.ID, "error", err)
		return
	}

	manifestPath := filepath.Join(outDir, "manifest.yaml")
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		slog.Error("write job manifest", "job_id", job.ID, "error", err)
	}
}

// Job returns a snapshot of a job's current state.
func (o *Orchestrator) Job(id string) (models.Job, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	j, ok := o.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *j, true
}

// Result returns the finished transcription result for a completed job.
func (o *Orchestrator) Result(id string) (*models.TranscriptionResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.results[id]
	return r, ok
}

func (o *Orchestrator) putJob(job *models.Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := *job
	o.jobs[job.ID] = &cp
}

func (o *Orchestrator) putResult(id string, result *models.TranscriptionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[id] = result
}

// run drives phases 1-6 for one job.
func (o *Orchestrator) run(ctx context.Context, job *models.Job, sourcePath string) (*models.TranscriptionResult, error) {
	workDir := WorkingDir(o.cfg.TempDir, job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create job working directory: %w", err)
	}

	log := slog.With("job_id", job.ID)

	// Phase 1: MediaTransform.
	log.Info("phase 1: media transform")
	transformer := mediatransform.New(o.cfg.BinDir)
	transformResult, err := transformer.ProcessAudio(ctx, sourcePath, workDir, job.SpeedFactor)
	if err != nil {
		return nil, fmt.Errorf("phase 1 media transform: %w", err)
	}
	job.SourceDuration = transformResult.OriginalDuration
	job.AcceleratedDuration = transformResult.AcceleratedDuration
	var warnings []string
	warnings = append(warnings, transformResult.Warnings...)

	// Phase 2: Chunker.
	log.Info("phase 2: chunking")
	chunk := chunker.New(o.cfg.BinDir)
	chunks, chunkWarnings, err := chunk.PlanChunks(ctx, transformResult.AcceleratedPath,
		transformResult.AcceleratedDuration, transformResult.OriginalDuration, transformResult.OriginalBytes,
		workDir, job.SpeedFactor)
	if err != nil {
		return nil, fmt.Errorf("phase 2 chunking: %w", err)
	}
	warnings = append(warnings, chunkWarnings...)
	job.Counters.ChunksPlanned = len(chunks)

	// Phase 3: BatchCoordinator (concurrent inside, sequential from here).
	log.Info("phase 3: transcribing chunks", "count", len(chunks))
	coordinator := batch.New(o.transcriber, batch.WithParallelism(o.cfg.Parallelism), batch.WithGlobalRetries(o.cfg.GlobalRetries))
	cacheDir := filepath.Join(workDir, "transcripts")
	results, err := coordinator.Run(ctx, chunks, cacheDir)
	if err != nil {
		return nil, fmt.Errorf("phase 3 batch transcription: %w", err)
	}

	failedCount := 0
	totalRetries := 0
	for _, r := range results {
		if !r.Success {
			failedCount++
		}
		totalRetries += r.RetryCount
	}
	job.Counters.ChunksProcessed = len(results) - failedCount
	job.Counters.ChunksFailed = failedCount
	job.Counters.TotalRetries = totalRetries

	if failedCount == len(results) && len(results) > 0 {
		return nil, fmt.Errorf("all %d chunks failed transcription", len(results))
	}

	// Phase 4: validate at least one segment overall.
	totalSegments := 0
	for _, r := range results {
		totalSegments += len(r.Segments)
	}
	if totalSegments == 0 {
		return nil, fmt.Errorf("phase 4 validation: zero segments produced across %d chunks", len(results))
	}

	// Phase 5: TimelineStitcher.
	log.Info("phase 5: stitching timeline")
	stitched := stitcher.Stitch(results, transformResult.OriginalDuration, job.SpeedFactor)
	warnings = append(warnings, stitched.Warnings...)

	// Phase 6: emit artifacts.
	log.Info("phase 6: emitting artifacts", "format", job.RequestedFormat)
	outDir := filepath.Join(o.cfg.OutputDir, job.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	artifacts, err := emitArtifacts(outDir, stitched.Segments, job.RequestedFormat)
	if err != nil {
		return nil, fmt.Errorf("phase 6 artifact emission: %w", err)
	}

	job.Status = finalStatus(job.Counters.ChunksFailed, stitched.QualityAlert, len(warnings) > 0, len(stitched.Segments) > 0)

	result := &models.TranscriptionResult{
		Job:      *job,
		Segments: stitched.Segments,
		FullText: format.Plaintext(stitched.Segments),
		Formats:  artifacts,
		Warnings: warnings,
	}

	return result, nil
}

// finalStatus derives the terminal job status from how the run went:
// clean success, success with warnings, or outright failure.
func finalStatus(chunksFailed int, qualityAlert bool, hasWarnings bool, hasSegments bool) models.JobStatus {
	if chunksFailed == 0 && !qualityAlert {
		return models.JobStatusCompleted
	}
	if hasSegments {
		return models.JobStatusCompletedWithWarns
	}
	return models.JobStatusFailed
}

// emitArtifacts writes the subtitle and/or plaintext artifacts requested
// by job.RequestedFormat. The structured payload itself is always
// available from the returned TranscriptionResult and is not written to
// disk here; only the rendered SRT/TXT side files are.
func emitArtifacts(outDir string, segments []models.Segment, requested models.OutputFormat) (*models.ArtifactPaths, error) {
	artifacts := &models.ArtifactPaths{}

	writeSRT := requested == models.FormatSubtitle
	writeTXT := requested == models.FormatPlaintext

	if writeSRT {
		path := filepath.Join(outDir, "transcript.srt")
		if err := os.WriteFile(path, []byte(format.Subtitle(segments)), 0644); err != nil {
			return nil, fmt.Errorf("write srt artifact: %w", err)
		}
		artifacts.SRTPath = path
	}

	if writeTXT {
		path := filepath.Join(outDir, "transcript.txt")
		if err := os.WriteFile(path, []byte(format.Plaintext(segments)), 0644); err != nil {
			return nil, fmt.Errorf("write txt artifact: %w", err)
		}
		artifacts.TXTPath = path
	}

	return artifacts, nil
}

// scheduleCleanup removes a job's temp working directory cleanupDelay
// after it reaches a terminal status. The job's output directory is
// left in place.
func (o *Orchestrator) scheduleCleanup(jobID string) {
	go func() {
		time.Sleep(cleanupDelay)
		tempDir := WorkingDir(o.cfg.TempDir, jobID)
		outDir := filepath.Join(o.cfg.OutputDir, jobID)
		if err := os.RemoveAll(tempDir); err != nil {
			slog.Warn("cleanup: failed to remove job temp directory", "job_id", jobID, "error", err)
		}
		_ = outDir // output artifacts are swept by the separate age-based sweeper, not deleted here
	}()
}

// EnsureDependencies verifies ffmpeg/ffprobe are resolvable before the
// server starts accepting jobs.
func EnsureDependencies(binDir string) error {
	return media.CheckDependencies(binDir)
}

// WorkingDir returns the path a job's working directory lives at under
// tempDir while it is still processing.
func WorkingDir(tempDir, jobID string) string {
	return filepath.Join(tempDir, "job_"+jobID)
}

// ManifestPath returns the path a job's terminal-state manifest is
// written to under outputDir once the job finishes.
func ManifestPath(outputDir, jobID string) string {
	return filepath.Join(outputDir, jobID, "manifest.yaml")
}

func timeNow() time.Time {
	return time.Now()
}
