package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mediapipe/internal/models"
)

func TestDuration(t *testing.T) {
	assert.Equal(t, "01:05:09", Duration(time.Hour+5*time.Minute+9*time.Second))
	assert.Equal(t, "05:09", Duration(5*time.Minute+9*time.Second))
}

func TestDurationHuman(t *testing.T) {
	assert.Equal(t, "2h", DurationHuman(2*time.Hour))
	assert.Equal(t, "1h30m", DurationHuman(time.Hour+30*time.Minute))
	assert.Equal(t, "45m", DurationHuman(45*time.Minute))
	assert.Equal(t, "30s", DurationHuman(30*time.Second))
}

func TestSize(t *testing.T) {
	assert.Equal(t, "512 bytes", Size(512))
	assert.Equal(t, "4 KB", Size(4*1024))
	assert.Equal(t, "3 MB", Size(3*1024*1024))
}

func TestSRTTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:01,500", SRTTimestamp(1.5))
	assert.Equal(t, "01:00:00,000", SRTTimestamp(3600))
	assert.Equal(t, "00:00:00,000", SRTTimestamp(-5))
}

func TestSubtitle(t *testing.T) {
	segments := []models.Segment{
		{Start: 0, End: 1.5, Text: "hello"},
		{Start: 1.5, End: 3, Text: "world"},
	}
	out := Subtitle(segments)
	assert.Contains(t, out, "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n")
	assert.Contains(t, out, "2\n00:00:01,500 --> 00:00:03,000\nworld\n\n")
}

func TestPlaintext(t *testing.T) {
	segments := []models.Segment{
		{Text: "hello"},
		{Text: ""},
		{Text: "world"},
	}
	assert.Equal(t, "hello world", Plaintext(segments))
}

func TestPlaintext_Empty(t *testing.T) {
	assert.Equal(t, "", Plaintext(nil))
}
