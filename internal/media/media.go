// Package media wraps the ffmpeg/ffprobe command-line tools: binary
// resolution, duration/size probing, and silence detection. Nothing here
// knows about jobs or chunks; it is the thin os/exec boundary every
// pipeline stage that touches audio or video goes through.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
)

// ResolveBinaryPath looks for a binary in the configured bin directory or
// the system PATH.
func ResolveBinaryPath(binName, configuredBinDir string) string {
	if configuredBinDir != "" {
		dir := configuredBinDir
		if len(dir) > 0 && dir[0] == '~' {
			home, _ := os.UserHomeDir()
			dir = filepath.Join(home, dir[1:])
		}
		ext := ""
		if runtime.GOOS == "windows" {
			ext = ".exe"
		}
		localPath := filepath.Join(dir, binName+ext)
		if _, err := os.Stat(localPath); err == nil {
			return localPath
		}
	}

	if path, err := exec.LookPath(binName); err == nil {
		return path
	}

	return binName
}

// CheckDependencies verifies that ffmpeg and ffprobe are available.
func CheckDependencies(binDir string) error {
	ff := ResolveBinaryPath("ffmpeg", binDir)
	if _, err := exec.LookPath(ff); err != nil {
		return fmt.Errorf("ffmpeg not found (install ffmpeg or place in bin folder)")
	}
	fp := ResolveBinaryPath("ffprobe", binDir)
	if _, err := exec.LookPath(fp); err != nil {
		return fmt.Errorf("ffprobe not found (install ffmpeg or place in bin folder)")
	}
	return nil
}

// RunFFmpeg executes ffmpeg with the given args and returns captured
// stderr. ffmpeg writes its diagnostic output (including silencedetect
// results) to stderr regardless of exit status.
func RunFFmpeg(ctx context.Context, binDir string, args []string) (string, error) {
	bin := ResolveBinaryPath("ffmpeg", binDir)
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// ProbeDuration returns the duration of a media file in seconds using
// ffprobe's format=duration entry.
func ProbeDuration(ctx context.Context, binDir, path string) (float64, error) {
	bin := ResolveBinaryPath("ffprobe", binDir)
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", result.Format.Duration, err)
	}

	slog.Debug("probed media duration", "path", path, "duration_seconds", seconds)
	return seconds, nil
}

// FileSize returns the size of a file in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*([\d.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*([\d.]+)`)
)

// DetectSilences runs ffmpeg's silencedetect filter over path and parses
// the resulting silence intervals from stderr. thresholdDB is negative
// (e.g. -40); minSilenceSeconds is the minimum gap duration to report.
func DetectSilences(ctx context.Context, binDir, path string, thresholdDB float64, minSilenceSeconds float64) ([]Silence, error) {
	args := []string{
		"-i", path,
		"-af", fmt.Sprintf("silencedetect=noise=%ddB:d=%.3f", int(thresholdDB), minSilenceSeconds),
		"-f", "null",
		"-",
	}
	output, err := RunFFmpeg(ctx, binDir, args)
	if err != nil && output == "" {
		return nil, fmt.Errorf("silencedetect failed: %w", err)
	}

	var silences []Silence
	var start float64
	haveStart := false
	for _, line := range splitLines(output) {
		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			start, _ = strconv.ParseFloat(m[1], 64)
			haveStart = true
			continue
		}
		if m := silenceEndRe.FindStringSubmatch(line); m != nil && haveStart {
			end, _ := strconv.ParseFloat(m[1], 64)
			silences = append(silences, Silence{Start: start, End: end})
			haveStart = false
		}
	}
	return silences, nil
}

// Silence is a detected quiet interval, seconds on whatever timeline the
// probed file represents.
type Silence struct {
	Start float64
	End   float64
}

// Midpoint returns the center of the interval.
func (s Silence) Midpoint() float64 {
	return s.Start + (s.End-s.Start)/2
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
