// Package config loads service configuration from a YAML defaults file
// overlaid with environment-variable overrides, so anything can be
// settable without touching disk.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Configuration is the full, resolved service configuration.
type Configuration struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Security      SecurityConfig      `yaml:"security"`
	LLM           LLMConfig           `yaml:"llm"`
	ImageGen      ImageGenConfig      `yaml:"image_generation"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Chunking      ChunkingConfig      `yaml:"chunking"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig controls where working and output files live, and where
// the ffmpeg/ffprobe binaries are resolved from.
type StorageConfig struct {
	DataDirectory   string `yaml:"data_directory"`
	TempDirectory   string `yaml:"temp_directory"`
	OutputDirectory string `yaml:"output_directory"`
	BinDirectory    string `yaml:"bin_directory"`
	TempMaxAgeHours int    `yaml:"temp_file_max_age_hours"`
}

type SecurityConfig struct {
	APIKey string `yaml:"api_key"`
}

type LLMConfig struct {
	Provider   string           `yaml:"provider"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Ollama     OllamaConfig     `yaml:"ollama"`
}

type OpenRouterConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
}

type OllamaConfig struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// ImageGenConfig selects and configures the image synthesis backend.
type ImageGenConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
}

// TranscriptionConfig configures the external transcription service and
// the job-level pipeline knobs (speed factor, chunking, retries).
type TranscriptionConfig struct {
	ServiceURL          string   `yaml:"service_url"`
	APIKey              string   `yaml:"api_key"`
	Model               string   `yaml:"model"`
	SpeedFactor         float64  `yaml:"speed_factor"`
	ChunkTimeSeconds    float64  `yaml:"chunk_time_seconds"`
	ConcurrentChunks    int      `yaml:"concurrent_chunks"`
	MaxRetries          int      `yaml:"max_retries"`
	GlobalRetries       int      `yaml:"global_retries"`
	InitialRetryDelayMS int      `yaml:"initial_retry_delay_ms"`
	RequestTimeoutMS    int      `yaml:"request_timeout_ms"`
	MaxFileSizeMB       int      `yaml:"max_file_size_mb"`
	AllowedAudioFormats []string `yaml:"allowed_audio_formats"`
}

// ChunkingConfig holds the settings for the optional snap-to-silence chunk
// boundary strategy. They are loaded but not passed to the chunker: jobs
// are cut with uniform boundaries.
type ChunkingConfig struct {
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"`
	SilenceDuration    float64 `yaml:"silence_duration_seconds"`
	SilenceWindow      float64 `yaml:"silence_window_seconds"`
	MinChunkDuration   float64 `yaml:"min_chunk_duration_seconds"`
}

// Load reads YAML defaults from path (creating one with built-in defaults
// if it doesn't exist), loads a .env file if present, then applies
// environment-variable overrides on top. Environment variables always win
// so a deployment can run entirely off env vars with no file on disk.
func Load(path string) (*Configuration, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".mediapipe", "configuration.yaml")
	}

	var cfg *Configuration
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg = defaultConfiguration()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		if err := Save(cfg, path); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = &Configuration{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; godotenv.Load only sets vars not already present
	// in the environment, so real environment variables still win.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes the configuration to a file.
func Save(cfg *Configuration, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func defaultConfiguration() *Configuration {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".mediapipe")
	return &Configuration{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Storage: StorageConfig{
			DataDirectory:   dataDir,
			TempDirectory:   filepath.Join(dataDir, "tmp"),
			OutputDirectory: filepath.Join(dataDir, "output"),
			TempMaxAgeHours: 24,
		},
		LLM: LLMConfig{
			Provider: "openrouter",
			OpenRouter: OpenRouterConfig{
				DefaultModel: "anthropic/claude-3.5-sonnet",
			},
			Ollama: OllamaConfig{
				BaseURL:      "http://localhost:11434",
				DefaultModel: "llama3.2",
			},
		},
		ImageGen: ImageGenConfig{
			Provider: "openai",
		},
		Transcription: TranscriptionConfig{
			ServiceURL:          "https://api.openai.com/v1/audio/transcriptions",
			Model:               "whisper-1",
			SpeedFactor:         2.0,
			ChunkTimeSeconds:    900,
			ConcurrentChunks:    4,
			MaxRetries:          5,
			GlobalRetries:       3,
			InitialRetryDelayMS: 1000,
			RequestTimeoutMS:    600000,
			MaxFileSizeMB:       500,
			AllowedAudioFormats: []string{"mp3", "wav", "m4a", "ogg", "flac", "aac"},
		},
		Chunking: ChunkingConfig{
			SilenceThresholdDB: -40,
			SilenceDuration:    0.5,
			SilenceWindow:      5,
			MinChunkDuration:   30,
		},
	}
}

// applyEnvOverrides mutates cfg in place from the recognised environment
// variables. Unset variables leave the existing (file or built-in
// default) value untouched.
func applyEnvOverrides(cfg *Configuration) {
	if v := os.Getenv("SPEED_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Transcription.SpeedFactor = f
		}
	}
	if v := os.Getenv("CHUNK_TIME"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Transcription.ChunkTimeSeconds = f
		}
	}
	if v := os.Getenv("CONCURRENT_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transcription.ConcurrentChunks = n
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transcription.MaxRetries = n
		}
	}
	if v := os.Getenv("GLOBAL_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transcription.GlobalRetries = n
		}
	}
	if v := os.Getenv("INITIAL_RETRY_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transcription.InitialRetryDelayMS = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transcription.RequestTimeoutMS = n
		}
	}
	if v := os.Getenv("MAX_FILE_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transcription.MaxFileSizeMB = n
		}
	}
	if v := os.Getenv("ALLOWED_AUDIO_FORMATS"); v != "" {
		cfg.Transcription.AllowedAudioFormats = strings.Split(v, ",")
	}
	if v := os.Getenv("TEMP_FILE_MAX_AGE_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.TempMaxAgeHours = n
		}
	}
	if v := os.Getenv("SILENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Chunking.SilenceThresholdDB = f
		}
	}
	if v := os.Getenv("SILENCE_DURATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Chunking.SilenceDuration = f
		}
	}
	if v := os.Getenv("SILENCE_WINDOW"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Chunking.SilenceWindow = f
		}
	}
	if v := os.Getenv("MIN_CHUNK_DURATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Chunking.MinChunkDuration = f
		}
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
	if v := os.Getenv("TRANSCRIPTION_API_KEY"); v != "" {
		cfg.Transcription.APIKey = v
	}
	if v := os.Getenv("TRANSCRIPTION_SERVICE_URL"); v != "" {
		cfg.Transcription.ServiceURL = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.OpenRouter.APIKey = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.LLM.Ollama.BaseURL = v
	}
	if v := os.Getenv("IMAGE_PROVIDER"); v != "" {
		cfg.ImageGen.Provider = v
	}
	if v := os.Getenv("IMAGE_API_KEY"); v != "" {
		cfg.ImageGen.APIKey = v
	}
	if v := os.Getenv("BIN_DIR"); v != "" {
		cfg.Storage.BinDirectory = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDirectory = v
		if os.Getenv("TEMP_DIR") == "" {
			cfg.Storage.TempDirectory = filepath.Join(v, "tmp")
		}
		if os.Getenv("OUTPUT_DIR") == "" {
			cfg.Storage.OutputDirectory = filepath.Join(v, "output")
		}
	}
	if v := os.Getenv("TEMP_DIR"); v != "" {
		cfg.Storage.TempDirectory = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Storage.OutputDirectory = v
	}
}
