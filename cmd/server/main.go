package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"mediapipe/internal/api"
	config "mediapipe/internal/configuration"
	"mediapipe/internal/imagegen"
	"mediapipe/internal/llm"
	"mediapipe/internal/orchestrator"
	"mediapipe/internal/transcriber"
	"mediapipe/internal/videoproc"
)

func main() {
	configurationPath := flag.String("configuration", "", "Path to configuration file")
	flag.Parse()

	loadedConfiguration, err := config.Load(*configurationPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := ensureDataDirectories(loadedConfiguration); err != nil {
		log.Fatalf("failed to create data directories: %v", err)
	}

	logFilePath := filepath.Join(loadedConfiguration.Storage.DataDirectory, "server.log")
	logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	multiWriter := io.MultiWriter(os.Stdout, logFile)
	logger := slog.New(slog.NewJSONHandler(multiWriter, nil))
	slog.SetDefault(logger)

	if err := orchestrator.EnsureDependencies(loadedConfiguration.Storage.BinDirectory); err != nil {
		slog.Error("media dependency check failed", "error", err)
		os.Exit(1)
	}

	// LLM provider backs prompt enhancement. The routing provider lets a
	// request pick a non-default provider via a "provider:model" prefix.
	var defaultLLMProvider llm.Provider
	var defaultLLMModel string
	switch loadedConfiguration.LLM.Provider {
	case "ollama":
		defaultLLMProvider = llm.NewOllamaProvider(loadedConfiguration.LLM.Ollama.BaseURL)
		defaultLLMModel = loadedConfiguration.LLM.Ollama.DefaultModel
	default:
		if loadedConfiguration.LLM.Provider != "openrouter" {
			slog.Warn("unknown LLM provider, falling back to openrouter", "provider", loadedConfiguration.LLM.Provider)
		}
		defaultLLMProvider = llm.NewOpenRouterProvider(loadedConfiguration.LLM.OpenRouter.APIKey)
		defaultLLMModel = loadedConfiguration.LLM.OpenRouter.DefaultModel
	}

	routingProvider := llm.NewRoutingProvider(defaultLLMProvider)
	routingProvider.Register("openrouter", llm.NewOpenRouterProvider(loadedConfiguration.LLM.OpenRouter.APIKey))
	routingProvider.Register("ollama", llm.NewOllamaProvider(loadedConfiguration.LLM.Ollama.BaseURL))

	enhancer := imagegen.NewEnhancer(routingProvider, defaultLLMModel)

	// Image generation backend.
	var imageProvider imagegen.ImageProvider
	switch loadedConfiguration.ImageGen.Provider {
	case "openrouter":
		imageProvider = imagegen.NewOpenRouterImageProvider(loadedConfiguration.ImageGen.APIKey, "")
	default:
		if loadedConfiguration.ImageGen.Provider != "openai" {
			slog.Warn("unknown image provider, falling back to openai", "provider", loadedConfiguration.ImageGen.Provider)
		}
		imageProvider = imagegen.NewOpenAIImageProvider(loadedConfiguration.ImageGen.APIKey, "")
	}
	synthesizer := imagegen.NewSynthesizer(imageProvider, loadedConfiguration.Transcription.ConcurrentChunks)

	videoProcessor := videoproc.New(loadedConfiguration.Storage.BinDirectory)

	transcriberClient := transcriber.New(transcriber.Config{
		BaseURL:    loadedConfiguration.Transcription.ServiceURL,
		APIKey:     loadedConfiguration.Transcription.APIKey,
		Model:      loadedConfiguration.Transcription.Model,
		MaxRetries: loadedConfiguration.Transcription.MaxRetries,
		BaseDelay:  time.Duration(loadedConfiguration.Transcription.InitialRetryDelayMS) * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Timeout:    time.Duration(loadedConfiguration.Transcription.RequestTimeoutMS) * time.Millisecond,
	}, http.DefaultClient)

	jobOrchestrator := orchestrator.New(orchestrator.Config{
		BinDir:        loadedConfiguration.Storage.BinDirectory,
		TempDir:       loadedConfiguration.Storage.TempDirectory,
		OutputDir:     loadedConfiguration.Storage.OutputDirectory,
		SpeedFactor:   loadedConfiguration.Transcription.SpeedFactor,
		Parallelism:   loadedConfiguration.Transcription.ConcurrentChunks,
		GlobalRetries: loadedConfiguration.Transcription.GlobalRetries,
	}, transcriberClient)

	apiServer := api.NewServer(loadedConfiguration, jobOrchestrator, enhancer, synthesizer, videoProcessor)
	apiServer.StartStagingCleanupWorker()

	serverAddress := fmt.Sprintf("%s:%d", loadedConfiguration.Server.Host, loadedConfiguration.Server.Port)
	slog.Info("server starting", "address", serverAddress)
	slog.Info("data directory", "directory", loadedConfiguration.Storage.DataDirectory)

	if err := http.ListenAndServe(serverAddress, apiServer.Handler()); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func ensureDataDirectories(cfg *config.Configuration) error {
	targetDirectories := []string{
		cfg.Storage.DataDirectory,
		cfg.Storage.TempDirectory,
		cfg.Storage.OutputDirectory,
	}
	for _, directory := range targetDirectories {
		if err := os.MkdirAll(directory, 0755); err != nil {
			return err
		}
	}
	return nil
}
