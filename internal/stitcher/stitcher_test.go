package stitcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediapipe/internal/models"
)

func chunk(index int, start, duration float64) models.AudioChunk {
	return models.AudioChunk{Index: index, Duration: duration, StartTime: start}
}

func TestStitch_ContiguousChunksNoWarnings(t *testing.T) {
	results := []models.ChunkResult{
		{
			ChunkIndex: 1, Chunk: chunk(1, 0, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{{Start: 0, End: 5, Text: "hello"}, {Start: 5, End: 10, Text: "world"}},
		},
		{
			ChunkIndex: 2, Chunk: chunk(2, 10, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{{Start: 0, End: 10, Text: "continued"}},
		},
	}

	result := Stitch(results, 20, 1.0)

	require.Len(t, result.Segments, 3)
	assert.Equal(t, 1, result.Segments[0].Index)
	assert.Equal(t, 2, result.Segments[1].Index)
	assert.Equal(t, 3, result.Segments[2].Index)
	assert.InDelta(t, 10.0, result.Segments[2].Start, 0.001)
	for _, w := range result.Warnings {
		assert.NotContains(t, w, "GAP")
		assert.NotContains(t, w, "OVERLAP")
	}
	assert.False(t, result.QualityAlert)
}

func TestStitch_DetectsGap(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 1, Chunk: chunk(1, 0, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{{Start: 0, End: 10, Text: "first chunk text"}}},
		{ChunkIndex: 2, Chunk: chunk(2, 15, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{{Start: 0, End: 10, Text: "second chunk text"}}},
	}

	result := Stitch(results, 25, 1.0)

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "GAP") {
			found = true
		}
	}
	assert.True(t, found, "expected a GAP warning, got: %v", result.Warnings)
}

func TestStitch_DetectsOverlap(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 1, Chunk: chunk(1, 0, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{{Start: 0, End: 10, Text: "first chunk text"}}},
		{ChunkIndex: 2, Chunk: chunk(2, 5, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{{Start: 0, End: 10, Text: "second chunk text"}}},
	}

	result := Stitch(results, 15, 1.0)

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "OVERLAP") {
			found = true
		}
	}
	assert.True(t, found, "expected an OVERLAP warning, got: %v", result.Warnings)
}

func TestStitch_FailedChunkAdvancesLastEndAndWarns(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 1, Chunk: chunk(1, 0, 10), Success: false, Error: "service unavailable"},
		{ChunkIndex: 2, Chunk: chunk(2, 10, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{{Start: 0, End: 10, Text: "resumed after failure"}}},
	}

	result := Stitch(results, 20, 1.0)

	require.Len(t, result.Segments, 1)
	foundFailureWarning := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "chunk 1 failed") {
			foundFailureWarning = true
		}
		assert.NotContains(t, w, "GAP")
	}
	assert.True(t, foundFailureWarning)
}

func TestStitch_SuppressesConsecutiveDuplicates(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 1, Chunk: chunk(1, 0, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{
				{Start: 0, End: 5, Text: "repeated phrase"},
				{Start: 5, End: 10, Text: "repeated phrase"},
			}},
	}

	result := Stitch(results, 10, 1.0)

	require.Len(t, result.Segments, 1)
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "suppressed duplicate") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStitch_QualityAlertOnHighFailureRate(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 1, Chunk: chunk(1, 0, 10), Success: false, Error: "x"},
		{ChunkIndex: 2, Chunk: chunk(2, 10, 10), Success: false, Error: "x"},
		{ChunkIndex: 3, Chunk: chunk(3, 20, 10), Success: true, ReportedDuration: 10,
			Segments: []models.ServiceSegment{{Start: 0, End: 10, Text: "only surviving chunk text"}}},
	}

	result := Stitch(results, 30, 1.0)

	assert.True(t, result.QualityAlert)
}

func TestStitch_QualityAlertOnLowDensity(t *testing.T) {
	results := []models.ChunkResult{
		{ChunkIndex: 1, Chunk: chunk(1, 0, 600), Success: true, ReportedDuration: 600,
			Segments: []models.ServiceSegment{{Start: 0, End: 600, Text: "one single segment for ten minutes"}}},
	}

	result := Stitch(results, 600, 1.0)

	assert.True(t, result.QualityAlert)
}

func TestStitch_TimestampMapping(t *testing.T) {
	// The job was accelerated 2x, so chunk-local service timestamps are
	// mapped back with speedFactor=2: s' = s*F + T.
	results := []models.ChunkResult{
		{ChunkIndex: 1, Chunk: chunk(1, 100, 20), Success: true,
			Segments: []models.ServiceSegment{{Start: 5, End: 10, Text: "midpoint segment"}}},
	}

	result := Stitch(results, 120, 2.0)

	require.Len(t, result.Segments, 1)
	// start = 5*2 + 100 = 110; end = 10*2 + 100 = 120
	assert.InDelta(t, 110.0, result.Segments[0].Start, 0.001)
	assert.InDelta(t, 120.0, result.Segments[0].End, 0.001)
}

