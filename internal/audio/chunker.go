package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
)

const (
	MethodSingle = "single"
	MethodTime   = "time"
	MethodBytes  = "bytes"

	maxSegments = 500
	// estimated sizes are kept under this share of the limit
	sizeHeadroom = 0.9
)

var ErrEmptyAudio = errors.New("audio payload is empty")

type SplitOptions struct {
	MaxChunkBytes int64
	Overlap       time.Duration
	// Duration skips probing when the caller already knows the length.
	Duration time.Duration
}

type SplitResult struct {
	Segments []models.AudioSegment
	Method   string
	Duration time.Duration
}

type Chunker struct {
	tool MediaTool
	log  *logger.Logger
}

func NewChunker(tool MediaTool, log *logger.Logger) *Chunker {
	return &Chunker{tool: tool, log: log.With("service", "AudioChunker")}
}

// Split returns one segment when audio fits the limit, time-bounded
// overlapping segments when the media tool works, and byte slices otherwise.
func (c *Chunker) Split(ctx context.Context, audio []byte, filename string, opts SplitOptions) (SplitResult, error) {
	if len(audio) == 0 {
		return SplitResult{}, ErrEmptyAudio
	}
	size := int64(len(audio))

	if opts.MaxChunkBytes <= 0 || size <= opts.MaxChunkBytes {
		return SplitResult{
			Method:   MethodSingle,
			Duration: opts.Duration,
			Segments: []models.AudioSegment{{
				Index:    0,
				EndTime:  opts.Duration,
				Duration: opts.Duration,
				Payload:  audio,
				Filename: filename,
			}},
		}, nil
	}

	if c.tool != nil {
		res, err := c.splitByTime(ctx, audio, filename, opts)
		if err == nil {
			return res, nil
		}
		c.log.Warn("time-based split unavailable, splitting by bytes", "filename", filename, "error", err)
	}
	return splitByBytes(audio, filename, opts), nil
}

func (c *Chunker) splitByTime(ctx context.Context, audio []byte, filename string, opts SplitOptions) (SplitResult, error) {
	if err := c.tool.Available(ctx); err != nil {
		return SplitResult{}, err
	}

	ext := filepath.Ext(filename)
	inPath, cleanup, err := c.tool.WriteTempFile(audio, ext)
	if err != nil {
		return SplitResult{}, err
	}
	defer cleanup()

	total := opts.Duration
	if total <= 0 {
		total, err = c.tool.Duration(ctx, inPath)
		if err != nil {
			return SplitResult{}, err
		}
	}

	n, segDur := planSegments(int64(len(audio)), total, opts.MaxChunkBytes, opts.Overlap)
	c.log.Info("splitting audio", "filename", filename, "duration", total, "segments", n, "segment_duration", segDur)

	base := strings.TrimSuffix(filepath.Base(filename), ext)
	dir := filepath.Dir(inPath)
	segments := make([]models.AudioSegment, 0, n)

	for i := 0; i < n; i++ {
		start := time.Duration(i) * segDur
		end := start + segDur + opts.Overlap
		last := i == n-1
		if last || end > total {
			end = total
		}

		outPath := filepath.Join(dir, fmt.Sprintf("%s_part%03d_%d.mp3", base, i+1, time.Now().UnixNano()))
		if err := c.tool.Cut(ctx, inPath, start, end-start, outPath); err != nil {
			return SplitResult{}, fmt.Errorf("segment %d: %w", i, err)
		}
		payload, err := os.ReadFile(outPath)
		_ = os.Remove(outPath)
		if err != nil {
			return SplitResult{}, fmt.Errorf("segment %d: read output: %w", i, err)
		}

		segments = append(segments, models.AudioSegment{
			Index:     i,
			StartTime: start,
			EndTime:   end,
			Duration:  end - start,
			Payload:   payload,
			Filename:  fmt.Sprintf("%s_part%03d.mp3", base, i+1),
			Overlap:   !last,
		})
	}

	return SplitResult{Segments: segments, Method: MethodTime, Duration: total}, nil
}

// planSegments picks the smallest segment count whose estimated per-segment
// size, overlap included, stays under the limit.
func planSegments(size int64, total time.Duration, maxBytes int64, overlap time.Duration) (int, time.Duration) {
	n := int(math.Ceil(float64(size) / float64(maxBytes)))
	if n < 2 {
		n = 2
	}
	secs := total.Seconds()
	if secs <= 0 {
		return n, 0
	}

	rate := float64(size) / secs
	if rate < encodedBytesPerSecond {
		rate = encodedBytesPerSecond
	}
	limit := float64(maxBytes) * sizeHeadroom

	for n < maxSegments {
		segSecs := secs / float64(n)
		if (segSecs+overlap.Seconds())*rate <= limit {
			break
		}
		n++
	}
	return n, time.Duration(float64(total) / float64(n))
}

func splitByBytes(audio []byte, filename string, opts SplitOptions) SplitResult {
	size := int64(len(audio))
	n := int(math.Ceil(float64(size) / float64(opts.MaxChunkBytes)))
	piece := int64(math.Ceil(float64(size) / float64(n)))

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	segments := make([]models.AudioSegment, 0, n)
	for i := 0; i < n; i++ {
		from := int64(i) * piece
		to := from + piece
		if to > size {
			to = size
		}
		if from >= to {
			break
		}

		seg := models.AudioSegment{
			Index:    i,
			Payload:  append([]byte(nil), audio[from:to]...),
			Filename: fmt.Sprintf("%s_part%03d%s", base, i+1, ext),
		}
		if opts.Duration > 0 {
			seg.StartTime = time.Duration(float64(opts.Duration) * float64(from) / float64(size))
			seg.EndTime = time.Duration(float64(opts.Duration) * float64(to) / float64(size))
			seg.Duration = seg.EndTime - seg.StartTime
		}
		segments = append(segments, seg)
	}
	return SplitResult{Segments: segments, Method: MethodBytes, Duration: opts.Duration}
}
