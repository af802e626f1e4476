package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"mediapipe/internal/models"
	"mediapipe/internal/orchestrator"
)

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSONResponse(w, map[string]string{"status": "ok"})
}

// handleTranscribe accepts a multipart "audio" upload plus optional
// "speed" and "format" fields, and starts a transcription job.
func (server *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(server.configuration.Transcription.MaxFileSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		server.writeError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "upload exceeds maximum file size", err.Error())
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		server.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "audio field is required", nil)
		return
	}
	defer file.Close()

	if !isAllowedAudioFormat(header.Filename, server.configuration.Transcription.AllowedAudioFormats) {
		server.writeError(w, http.StatusUnsupportedMediaType, "VALIDATION_ERROR", "unsupported audio format", header.Filename)
		return
	}

	speedFactor := server.configuration.Transcription.SpeedFactor
	if v := r.FormValue("speed"); v != "" {
		if f, parseErr := strconv.ParseFloat(v, 64); parseErr == nil && f > 1.0 && f <= 3.0 {
			speedFactor = f
		}
	}

	outputFormat := models.FormatStructured
	switch r.FormValue("format") {
	case "srt":
		outputFormat = models.FormatSubtitle
	case "txt":
		outputFormat = models.FormatPlaintext
	}

	uploadID := uuid.NewString()
	uploadDir := filepath.Join(server.configuration.Storage.TempDirectory, "uploads", uploadID)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		server.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not stage upload", nil)
		return
	}

	destPath := filepath.Join(uploadDir, filepath.Base(header.Filename))
	dest, err := os.Create(destPath)
	if err != nil {
		server.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not stage upload", nil)
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		server.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not stage upload", nil)
		return
	}
	dest.Close()

	jobID := server.orchestrator.Submit(r.Context(), destPath, speedFactor, outputFormat)

	w.WriteHeader(http.StatusAccepted)
	_ = writeJSONResponse(w, map[string]string{"job_id": jobID})
}

// handleStatus answers purely from on-disk state: the job's working
// directory under the temp directory is present while it is still
// processing; once that directory is swept, the presence of its terminal
// manifest under the output directory is what distinguishes "completed"
// from "never existed". This holds across a server restart, unlike the
// orchestrator's in-memory job map.
func (server *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	workingDir := orchestrator.WorkingDir(server.configuration.Storage.TempDirectory, jobID)
	if _, err := os.Stat(workingDir); err == nil {
		_ = writeJSONResponse(w, map[string]bool{"exists": true, "completed": false})
		return
	}

	manifestPath := orchestrator.ManifestPath(server.configuration.Storage.OutputDirectory, jobID)
	if _, err := os.Stat(manifestPath); err == nil {
		_ = writeJSONResponse(w, map[string]bool{"exists": true, "completed": true})
		return
	}

	_ = writeJSONResponse(w, map[string]bool{"exists": false, "completed": false})
}

// handleImageGenerate enhances then synthesizes images for a JSON
// {prompt, variants?} body.
func (server *Server) handleImageGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt   string `json:"prompt"`
		Variants int    `json:"variants"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		server.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", err.Error())
		return
	}
	if body.Prompt == "" {
		server.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "prompt is required", nil)
		return
	}
	if body.Variants < 1 {
		body.Variants = 1
	}
	if body.Variants > 4 {
		body.Variants = 4
	}

	job := models.ImageJob{
		ID:                uuid.NewString(),
		OriginalPrompt:    body.Prompt,
		RequestedVariants: body.Variants,
		Status:            models.JobStatusProcessing,
		CreatedAt:         time.Now(),
	}

	enhanced, enhanceWarnings := server.enhancer.Enhance(r.Context(), body.Prompt)
	job.EnhancedPrompt = enhanced
	job.Warnings = append(job.Warnings, enhanceWarnings...)

	outDir := filepath.Join(server.configuration.Storage.OutputDirectory, job.ID)
	paths, synthWarnings, err := server.synthesizer.Synthesize(r.Context(), enhanced, body.Variants, outDir)
	job.Warnings = append(job.Warnings, synthWarnings...)
	job.CompletedAt = time.Now()

	if err != nil {
		job.Status = models.JobStatusFailed
		server.writeError(w, http.StatusInternalServerError, "IMAGE_SYNTHESIS_FAILED", err.Error(), nil)
		return
	}

	job.ImagePaths = paths
	if len(job.Warnings) > 0 {
		job.Status = models.JobStatusCompletedWithWarns
	} else {
		job.Status = models.JobStatusCompleted
	}

	_ = writeJSONResponse(w, map[string]any{"job": job})
}

// handleVideoSubtitles burns subtitles for a multipart "video" + "srt"
// upload.
func (server *Server) handleVideoSubtitles(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(int64(server.configuration.Transcription.MaxFileSizeMB) << 20); err != nil {
		server.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not parse upload", err.Error())
		return
	}

	videoPath, err := stageUpload(r, "video", server.configuration.Storage.TempDirectory)
	if err != nil {
		server.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "video field is required", nil)
		return
	}
	srtPath, err := stageUpload(r, "srt", server.configuration.Storage.TempDirectory)
	if err != nil {
		server.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "srt field is required", nil)
		return
	}

	job := models.VideoJob{
		ID:         uuid.NewString(),
		Operation:  models.VideoOpSubtitleBurn,
		InputPaths: []string{videoPath, srtPath},
		Status:     models.JobStatusProcessing,
		CreatedAt:  time.Now(),
	}

	outDir := filepath.Join(server.configuration.Storage.OutputDirectory, job.ID)
	outputPath, err := server.video.BurnSubtitles(r.Context(), videoPath, srtPath, outDir)
	job.CompletedAt = time.Now()
	if err != nil {
		job.Status = models.JobStatusFailed
		server.writeError(w, http.StatusInternalServerError, "VIDEO_PROCESSING_FAILED", err.Error(), nil)
		return
	}

	job.OutputPath = outputPath
	job.Status = models.JobStatusCompleted
	_ = writeJSONResponse(w, map[string]any{"job": job})
}

// handleVideoZoom renders a zoom clip for a multipart "image" upload
// with optional "duration" and "zoom" form fields.
func (server *Server) handleVideoZoom(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(int64(server.configuration.Transcription.MaxFileSizeMB) << 20); err != nil {
		server.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not parse upload", err.Error())
		return
	}

	imagePath, err := stageUpload(r, "image", server.configuration.Storage.TempDirectory)
	if err != nil {
		server.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "image field is required", nil)
		return
	}

	duration := 5.0
	if v := r.FormValue("duration"); v != "" {
		if f, parseErr := strconv.ParseFloat(v, 64); parseErr == nil {
			duration = f
		}
	}
	zoom := 1.3
	if v := r.FormValue("zoom"); v != "" {
		if f, parseErr := strconv.ParseFloat(v, 64); parseErr == nil {
			zoom = f
		}
	}

	job := models.VideoJob{
		ID:         uuid.NewString(),
		Operation:  models.VideoOpImageToVideo,
		InputPaths: []string{imagePath},
		Status:     models.JobStatusProcessing,
		CreatedAt:  time.Now(),
	}

	outDir := filepath.Join(server.configuration.Storage.OutputDirectory, job.ID)
	outputPath, err := server.video.RenderZoom(r.Context(), imagePath, duration, zoom, outDir)
	job.CompletedAt = time.Now()
	if err != nil {
		job.Status = models.JobStatusFailed
		server.writeError(w, http.StatusInternalServerError, "VIDEO_PROCESSING_FAILED", err.Error(), nil)
		return
	}

	job.OutputPath = outputPath
	job.Status = models.JobStatusCompleted
	_ = writeJSONResponse(w, map[string]any{"job": job})
}

// isAllowedAudioFormat reports whether filename's extension (case
// insensitive, leading dot stripped) appears in allowed.
func isAllowedAudioFormat(filename string, allowed []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	for _, format := range allowed {
		if strings.EqualFold(format, ext) {
			return true
		}
	}
	return false
}

func stageUpload(r *http.Request, field, tempDir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", err
	}
	defer file.Close()

	dir := filepath.Join(tempDir, "uploads", uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	destPath := filepath.Join(dir, filepath.Base(header.Filename))
	dest, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return destPath, nil
}
