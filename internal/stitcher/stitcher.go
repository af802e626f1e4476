// Package stitcher merges per-chunk transcription results into one
// original-timeline transcript, flagging gaps, overlaps, and overall
// quality problems along the way.
package stitcher

import (
	"fmt"
	"sort"
	"strings"

	"mediapipe/internal/models"
)

// Thresholds for gap/overlap detection and duplicate suppression.
const (
	gapOverlapThresholdSeconds = 1.0
	duplicateSuppressionWindow = 3

	qualityAlertDiscrepancySeconds = 60.0
	qualityAlertMinDensityPerMin   = 1.0
	qualityAlertMaxFailureRate     = 0.3
)

// Result is the stitched transcript plus the warnings and quality
// signal accumulated while merging chunk results.
type Result struct {
	Segments     []models.Segment
	Warnings     []string
	QualityAlert bool
}

// Stitch maps each successful chunk's service segments onto the original
// timeline, suppresses consecutive duplicate text, flags timeline gaps
// and overlaps, and evaluates the overall quality gate. speedFactor is
// the job's fixed acceleration factor F, applied uniformly as
// s' = s*F + T.
//
// results must be sorted by ChunkIndex and cover every planned chunk
// (failures included, with Success=false) so gap/density accounting
// reflects the whole job, not just the chunks that succeeded.
func Stitch(results []models.ChunkResult, originalDuration, speedFactor float64) Result {
	sorted := append([]models.ChunkResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	var out Result
	var recentTexts []string
	lastEnd := 0.0
	nextIndex := 1

	for _, r := range sorted {
		if delta := r.Chunk.StartTime - lastEnd; absFloat(delta) > gapOverlapThresholdSeconds {
			if delta > 0 {
				out.Warnings = append(out.Warnings, fmt.Sprintf("GAP: chunk %d starts %.1fs after the previous chunk ended", r.ChunkIndex, delta))
			} else {
				out.Warnings = append(out.Warnings, fmt.Sprintf("OVERLAP: chunk %d starts %.1fs before the previous chunk ended", r.ChunkIndex, -delta))
			}
		}

		if !r.Success {
			out.Warnings = append(out.Warnings, fmt.Sprintf("chunk %d failed: %s (span %.1fs-%.1fs)", r.ChunkIndex, r.Error, r.Chunk.StartTime, r.Chunk.StartTime+r.Chunk.Duration))
			lastEnd = r.Chunk.StartTime + r.Chunk.Duration
			continue
		}

		timeline := chunkTimeline{
			originalStart: r.Chunk.StartTime,
			speedFactor:   speedFactor,
		}

		for _, seg := range timeline.mappedSegments(r.Segments) {
			seg.Text = strings.TrimSpace(seg.Text)
			if seg.Text == "" {
				continue
			}

			if isDuplicateOfRecent(seg.Text, recentTexts) {
				out.Warnings = append(out.Warnings, fmt.Sprintf("suppressed duplicate segment at %.1fs in chunk %d", seg.Start, r.ChunkIndex))
				continue
			}

			seg.Index = nextIndex
			nextIndex++
			out.Segments = append(out.Segments, seg)

			recentTexts = append(recentTexts, seg.Text)
			if len(recentTexts) > duplicateSuppressionWindow {
				recentTexts = recentTexts[1:]
			}
			if seg.End > lastEnd {
				lastEnd = seg.End
			}
		}
	}

	out.QualityAlert = evaluateQualityGate(sorted, out.Segments, originalDuration, lastEnd)
	return out
}

// mappedSegments maps a chunk's chunk-local (accelerated) service
// segments onto the original timeline via s' = s*F + T, where F is the
// job's fixed speed factor and T is the chunk's original-timeline
// StartTime. Service segments are reported relative to the chunk's own
// accelerated audio file (0 at the chunk start).
func (c chunkTimeline) mappedSegments(segments []models.ServiceSegment) []models.Segment {
	mapped := make([]models.Segment, 0, len(segments))
	for _, s := range segments {
		mapped = append(mapped, models.Segment{
			Start: s.Start*c.speedFactor + c.originalStart,
			End:   s.End*c.speedFactor + c.originalStart,
			Text:  s.Text,
		})
	}
	return mapped
}

// chunkTimeline is the minimal timeline-mapping state needed from an
// AudioChunk: where it starts on the original timeline and the job's
// fixed speed factor.
type chunkTimeline struct {
	originalStart float64
	speedFactor   float64
}

func isDuplicateOfRecent(text string, recent []string) bool {
	for _, r := range recent {
		if r == text {
			return true
		}
	}
	return false
}

// evaluateQualityGate checks three independent quality signals -
// timeline discrepancy, segment density, and chunk failure rate -
// OR'd together, any one trips the gate.
func evaluateQualityGate(chunkResults []models.ChunkResult, segments []models.Segment, originalDuration, lastEnd float64) bool {
	if discrepancy := originalDuration - lastEnd; absFloat(discrepancy) > qualityAlertDiscrepancySeconds {
		return true
	}

	if originalDuration > 0 {
		density := float64(len(segments)) / (originalDuration / 60.0)
		if density < qualityAlertMinDensityPerMin {
			return true
		}
	}

	if len(chunkResults) > 0 {
		failed := 0
		for _, r := range chunkResults {
			if !r.Success {
				failed++
			}
		}
		if float64(failed)/float64(len(chunkResults)) > qualityAlertMaxFailureRate {
			return true
		}
	}

	return false
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
