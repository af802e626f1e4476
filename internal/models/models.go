// Package models holds the data types shared across the transcription
// pipeline and the image/video side pipelines. Nothing here talks to disk
// or the network; it is pure data plus the small invariants callers rely on.
package models

import "time"

// JobStatus is the terminal-or-not state of a transcription Job.
type JobStatus string

const (
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithWarns  JobStatus = "completed_with_warnings"
	JobStatusFailed              JobStatus = "failed"
)

// OutputFormat selects which artifact TranscriptionResult should emit.
type OutputFormat string

const (
	FormatStructured OutputFormat = "json"
	FormatSubtitle   OutputFormat = "srt"
	FormatPlaintext  OutputFormat = "txt"
)

// JobCounters tracks chunk-level bookkeeping for a Job.
type JobCounters struct {
	ChunksPlanned   int `json:"chunks_planned"`
	ChunksProcessed int `json:"chunks_processed"`
	ChunksFailed    int `json:"chunks_failed"`
	TotalRetries    int `json:"total_retries"`
}

// Job is the top-level record for one transcription request. It is created
// once by the orchestrator and mutated only by it; it becomes terminal on
// the first transition to Completed/CompletedWithWarnings/Failed.
type Job struct {
	ID                 string       `json:"id"`
	SpeedFactor        float64      `json:"speed_factor"`
	RequestedFormat    OutputFormat `json:"requested_format"`
	SourceDuration     float64      `json:"source_duration_seconds"`
	AcceleratedDuration float64     `json:"accelerated_duration_seconds"`
	Status             JobStatus    `json:"status"`
	Counters           JobCounters  `json:"counters"`
	CreatedAt          time.Time    `json:"created_at"`
	CompletedAt        time.Time    `json:"completed_at,omitempty"`
	WallTime           time.Duration `json:"wall_time_nanoseconds"`
	Error              string       `json:"error,omitempty"`
}

// AudioChunk is immutable once planned by the Chunker. Start and Duration
// are always expressed on the original (pre-acceleration) timeline, even
// though the physical cut point was chosen on the accelerated file.
type AudioChunk struct {
	Index     int     `json:"index"` // 1-based, contiguous
	SourcePath string `json:"source_path"`
	Duration  float64 `json:"duration_seconds"`  // original timeline
	StartTime float64 `json:"start_time_seconds"` // original timeline
}

// ChunkResult is produced once per chunk attempt sequence by the
// TranscriberClient. The disk cache holds the service's raw response, from
// which a ChunkResult is rebuilt on a cache hit.
type ChunkResult struct {
	ChunkIndex      int       `json:"chunk_index"`
	Chunk           AudioChunk `json:"chunk"`
	Success         bool      `json:"success"`
	Segments        []ServiceSegment `json:"segments,omitempty"`
	Error           string    `json:"error,omitempty"`
	RetryCount      int       `json:"retry_count"`
	ReportedDuration float64  `json:"reported_duration_seconds"`

	// Retryable is meaningless when Success is true. When false, it
	// records whether the classified failure (bad request, payload too
	// large, auth) is terminal: retrying the same chunk again cannot
	// succeed, so a global retry round should skip it.
	Retryable bool `json:"retryable,omitempty"`
}

// ServiceSegment is a segment as reported by the external transcription
// service, in the chunk-local (accelerated) timeline.
type ServiceSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Segment is a final, stitched transcript entry on the original timeline.
type Segment struct {
	Index int     `json:"index"` // 1-based across the final transcript
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is built once at the end of a job.
type TranscriptionResult struct {
	Job         Job             `json:"job"`
	Segments    []Segment       `json:"segments"`
	FullText    string          `json:"full_text"`
	Formats     *ArtifactPaths  `json:"formats,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// ArtifactPaths records where optional rendered artifacts were written.
type ArtifactPaths struct {
	SRTPath string `json:"srt_path,omitempty"`
	TXTPath string `json:"txt_path,omitempty"`
}

// SilenceSegment is an optional chunker input: a detected quiet interval
// on the accelerated timeline.
type SilenceSegment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// Midpoint returns the center of the silence interval, the preferred cut
// point when snap-to-silence chunking is enabled.
func (s SilenceSegment) Midpoint() float64 {
	return s.Start + (s.End-s.Start)/2
}

// ImageJob tracks a two-stage image-synthesis request: prompt
// enhancement followed by variant generation.
type ImageJob struct {
	ID              string    `json:"id"`
	OriginalPrompt  string    `json:"original_prompt"`
	EnhancedPrompt  string    `json:"enhanced_prompt"`
	Backend         string    `json:"backend"`
	RequestedVariants int     `json:"requested_variants"`
	Status          JobStatus `json:"status"`
	ImagePaths      []string  `json:"image_paths,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
}

// VideoOperation identifies which post-processing pipeline a VideoJob ran.
type VideoOperation string

const (
	VideoOpSubtitleBurn  VideoOperation = "subtitle_burn"
	VideoOpImageToVideo  VideoOperation = "image_to_video"
)

// VideoJob tracks a video post-processing request.
type VideoJob struct {
	ID          string         `json:"id"`
	Operation   VideoOperation `json:"operation"`
	InputPaths  []string       `json:"input_paths"`
	OutputPath  string         `json:"output_path,omitempty"`
	Status      JobStatus      `json:"status"`
	Warnings    []string       `json:"warnings,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
}

// APIError is the envelope every non-2xx HTTP response uses.
type APIError struct {
	Error ErrorDetails `json:"error"`
	Meta  Meta         `json:"meta"`
}

// ErrorDetails carries a machine-checkable code alongside a human message.
type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta accompanies every error response, for correlation.
type Meta struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}
