package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearOverrideEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"SPEED_FACTOR", "CHUNK_TIME", "CONCURRENT_CHUNKS", "MAX_RETRIES",
		"INITIAL_RETRY_DELAY", "REQUEST_TIMEOUT", "MAX_FILE_SIZE_MB",
		"ALLOWED_AUDIO_FORMATS", "TEMP_FILE_MAX_AGE_HOURS", "SILENCE_THRESHOLD",
		"SILENCE_DURATION", "SILENCE_WINDOW", "MIN_CHUNK_DURATION", "API_KEY",
		"LLM_PROVIDER", "OPENROUTER_API_KEY", "OLLAMA_BASE_URL", "IMAGE_PROVIDER",
		"IMAGE_API_KEY", "BIN_DIR", "DATA_DIR", "TEMP_DIR", "OUTPUT_DIR",
		"TRANSCRIPTION_API_KEY", "TRANSCRIPTION_SERVICE_URL",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestLoad_CreatesDefaultsWhenMissing(t *testing.T) {
	clearOverrideEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "configuration.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, 2.0, cfg.Transcription.SpeedFactor)
	assert.Equal(t, 4, cfg.Transcription.ConcurrentChunks)
	assert.Equal(t, 24, cfg.Storage.TempMaxAgeHours)
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	clearOverrideEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "configuration.yaml")

	_, err := Load(path)
	require.NoError(t, err)

	t.Setenv("SPEED_FACTOR", "2.5")
	t.Setenv("CONCURRENT_CHUNKS", "8")
	t.Setenv("API_KEY", "secret-key")
	t.Setenv("ALLOWED_AUDIO_FORMATS", "mp3,wav")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.Transcription.SpeedFactor)
	assert.Equal(t, 8, cfg.Transcription.ConcurrentChunks)
	assert.Equal(t, "secret-key", cfg.Security.APIKey)
	assert.Equal(t, []string{"mp3", "wav"}, cfg.Transcription.AllowedAudioFormats)
}

func TestLoad_DataDirOverrideCascadesToTempAndOutput(t *testing.T) {
	clearOverrideEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "configuration.yaml")

	_, err := Load(path)
	require.NoError(t, err)

	newData := filepath.Join(dir, "elsewhere")
	t.Setenv("DATA_DIR", newData)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, newData, cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(newData, "tmp"), cfg.Storage.TempDirectory)
	assert.Equal(t, filepath.Join(newData, "output"), cfg.Storage.OutputDirectory)
}

func TestSaveAndLoad_RoundTrips(t *testing.T) {
	clearOverrideEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "configuration.yaml")

	cfg := defaultConfiguration()
	cfg.Security.APIKey = "round-trip-key"
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "round-trip-key", loaded.Security.APIKey)
}
