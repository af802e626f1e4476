package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mediapipe/internal/media"
	"mediapipe/internal/models"
)

func TestNearestSilenceMidpoint_FindsClosestWithinWindow(t *testing.T) {
	silences := []media.Silence{
		{Start: 8, End: 10},  // midpoint 9
		{Start: 20, End: 22}, // midpoint 21
	}
	mid, ok := nearestSilenceMidpoint(silences, 10, 3)
	assert.True(t, ok)
	assert.Equal(t, 9.0, mid)
}

func TestNearestSilenceMidpoint_NoneWithinWindow(t *testing.T) {
	silences := []media.Silence{{Start: 100, End: 102}}
	_, ok := nearestSilenceMidpoint(silences, 10, 3)
	assert.False(t, ok)
}

func TestToOriginalTimeline_ScalesBySpeedFactor(t *testing.T) {
	pieces := []cutSegment{
		{start: 0, end: 5, path: "chunk_001.mp3"},
		{start: 5, end: 12, path: "chunk_002.mp3"},
	}
	chunks := toOriginalTimeline(pieces, 2.0)

	assert.Equal(t, 0.0, chunks[0].StartTime)
	assert.Equal(t, 10.0, chunks[0].Duration)
	assert.Equal(t, 10.0, chunks[1].StartTime)
	assert.Equal(t, 14.0, chunks[1].Duration)
}

func TestFixContiguity_AssignsIndicesAndClosesGaps(t *testing.T) {
	chunks := []models.AudioChunk{
		{StartTime: 10.1, Duration: 9.9},
		{StartTime: 0, Duration: 10},
		{StartTime: 20.05, Duration: 9.9},
	}
	fixContiguity(chunks, 30.0)

	assert.Equal(t, 1, chunks[0].Index)
	assert.Equal(t, 2, chunks[1].Index)
	assert.Equal(t, 3, chunks[2].Index)

	assert.Equal(t, 0.0, chunks[0].StartTime)
	assert.Equal(t, 10.0, chunks[1].StartTime)
	assert.InDelta(t, 19.9, chunks[2].StartTime, 1e-9)

	last := chunks[2]
	assert.InDelta(t, 10.1, last.Duration, 1e-9)
}

func TestMaxInt(t *testing.T) {
	assert.Equal(t, 5, maxInt(5, 3))
	assert.Equal(t, 5, maxInt(3, 5))
}

func TestPlanChunks_RejectsNonPositiveDuration(t *testing.T) {
	c := New("")
	_, _, err := c.PlanChunks(nil, "in.wav", 0, 10, 1000, t.TempDir(), 2.0)
	assert.Error(t, err)
}
