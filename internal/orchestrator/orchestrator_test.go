package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediapipe/internal/models"
)

func TestFinalStatus(t *testing.T) {
	cases := []struct {
		name         string
		chunksFailed int
		qualityAlert bool
		hasWarnings  bool
		hasSegments  bool
		want         models.JobStatus
	}{
		{"clean run", 0, false, false, true, models.JobStatusCompleted},
		{"failures but segments survive", 1, false, true, true, models.JobStatusCompletedWithWarns},
		{"quality alert but segments survive", 0, true, true, true, models.JobStatusCompletedWithWarns},
		{"failures and no segments", 3, false, true, false, models.JobStatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := finalStatus(tc.chunksFailed, tc.qualityAlert, tc.hasWarnings, tc.hasSegments)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEmitArtifacts_WritesOnlyRequestedFormat(t *testing.T) {
	outDir := t.TempDir()
	segments := []models.Segment{{Start: 0, End: 1, Text: "hello"}}

	srtArtifacts, err := emitArtifacts(outDir, segments, models.FormatSubtitle)
	require.NoError(t, err)
	assert.NotEmpty(t, srtArtifacts.SRTPath)
	assert.Empty(t, srtArtifacts.TXTPath)
	assert.FileExists(t, srtArtifacts.SRTPath)

	txtArtifacts, err := emitArtifacts(outDir, segments, models.FormatPlaintext)
	require.NoError(t, err)
	assert.Empty(t, txtArtifacts.SRTPath)
	assert.NotEmpty(t, txtArtifacts.TXTPath)
	assert.FileExists(t, txtArtifacts.TXTPath)

	structuredArtifacts, err := emitArtifacts(outDir, segments, models.FormatStructured)
	require.NoError(t, err)
	assert.Empty(t, structuredArtifacts.SRTPath)
	assert.Empty(t, structuredArtifacts.TXTPath)
}

func TestSubmit_MissingSourceFileFailsJob(t *testing.T) {
	tempDir := t.TempDir()
	outDir := t.TempDir()

	orch := New(Config{
		TempDir:   tempDir,
		OutputDir: outDir,
	}, nil)

	id := orch.Submit(context.Background(), filepath.Join(tempDir, "does-not-exist.wav"), 2.0, models.FormatStructured)
	require.NotEmpty(t, id)

	deadline := time.Now().Add(10 * time.Second)
	var job models.Job
	var ok bool
	for time.Now().Before(deadline) {
		job, ok = orch.Job(id)
		require.True(t, ok)
		if job.Status != models.JobStatusProcessing {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.Error)

	_, hasResult := orch.Result(id)
	assert.False(t, hasResult)

	assert.FileExists(t, ManifestPath(outDir, id))
}

func TestJob_UnknownIDReturnsFalse(t *testing.T) {
	orch := New(Config{TempDir: t.TempDir(), OutputDir: t.TempDir()}, nil)
	_, ok := orch.Job("unknown")
	assert.False(t, ok)
}
