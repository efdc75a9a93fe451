package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizforge-backend/internal/logger"
)

// MediaTool is the time-aware media capability the chunker needs. When it
// is unavailable the chunker degrades to byte splitting.
type MediaTool interface {
	Available(ctx context.Context) error
	Duration(ctx context.Context, path string) (time.Duration, error)
	// Cut writes [start, start+length) of in to out, encoded as mp3.
	Cut(ctx context.Context, in string, start, length time.Duration, out string) error
	WriteTempFile(data []byte, suffix string) (string, func(), error)
}

// Encoded segment bitrate: 64 kbit/s mono.
const encodedBytesPerSecond = 64 * 1000 / 8

type FFmpegTool struct {
	log            *logger.Logger
	ffmpegPath     string
	ffprobePath    string
	workRoot       string
	defaultTimeout time.Duration
}

func NewFFmpegTool(log *logger.Logger, ffmpegPath, ffprobePath, workRoot string) *FFmpegTool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	return &FFmpegTool{
		log:            log.With("service", "FFmpegTool"),
		ffmpegPath:     ffmpegPath,
		ffprobePath:    ffprobePath,
		workRoot:       filepath.Join(workRoot, "quizforge-media"),
		defaultTimeout: 5 * time.Minute,
	}
}

func (f *FFmpegTool) Available(ctx context.Context) error {
	for _, bin := range []string{f.ffmpegPath, f.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(f.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (f *FFmpegTool) Duration(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("ffprobe returned no usable duration: %q", strings.TrimSpace(string(out)))
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (f *FFmpegTool) Cut(ctx context.Context, in string, start, length time.Duration, out string) error {
	ctx, cancel := context.WithTimeout(ctx, f.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y", "-v", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-i", in,
		"-vn", "-ac", "1", "-ar", "16000",
		"-b:a", "64k",
		out,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg cut failed: %w; out=%s", err, string(output))
	}
	return nil
}

func (f *FFmpegTool) WriteTempFile(data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(f.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	h := sha256.Sum256(data)
	base := hex.EncodeToString(h[:])[:12] + "-" + uuid.NewString()[:8]
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	path := filepath.Join(f.workRoot, base+suffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
