package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quizforge-backend/internal/audio"
	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
)

var (
	ErrEmptyAudio    = audio.ErrEmptyAudio
	ErrAudioTooLarge = errors.New("audio exceeds the largest input that can be split")
)

const (
	// inputs beyond this many per-call limits are refused
	maxSplitFactor  = 100
	promptTailRunes = 200
)

type AudioSplitter interface {
	Split(ctx context.Context, data []byte, filename string, opts audio.SplitOptions) (audio.SplitResult, error)
}

type TranscriptDiagnostics struct {
	SplitMethod   string        `json:"split_method"`
	Segments      int           `json:"segments"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	SegmentErrors []string      `json:"segment_errors,omitempty"`
	Duration      time.Duration `json:"duration"`
	Language      string        `json:"language"`
}

type TranscriptResult struct {
	Success     bool                  `json:"success"`
	Text        string                `json:"text"`
	Diagnostics TranscriptDiagnostics `json:"diagnostics"`
}

type TranscriptService struct {
	splitter    AudioSplitter
	transcriber llm.Transcriber
	maxBytes    int64
	overlap     time.Duration
	log         *logger.Logger
}

func NewTranscriptService(splitter AudioSplitter, transcriber llm.Transcriber, maxBytes int64, overlap time.Duration, log *logger.Logger) *TranscriptService {
	return &TranscriptService{
		splitter:    splitter,
		transcriber: transcriber,
		maxBytes:    maxBytes,
		overlap:     overlap,
		log:         log.With("service", "TranscriptService"),
	}
}

// ExtractTranscript splits oversized audio, transcribes each segment in order
// and merges the results. A run where every segment fails is reported through
// Success=false, not an error.
func (s *TranscriptService) ExtractTranscript(ctx context.Context, data []byte, filename, language string, customDuration time.Duration, progress ProgressFunc) (TranscriptResult, error) {
	if progress == nil {
		progress = func(string, float64) {}
	}
	if len(data) == 0 {
		return TranscriptResult{}, ErrEmptyAudio
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes*maxSplitFactor {
		return TranscriptResult{}, fmt.Errorf("%w: %d bytes", ErrAudioTooLarge, len(data))
	}

	split, err := s.splitter.Split(ctx, data, filename, audio.SplitOptions{
		MaxChunkBytes: s.maxBytes,
		Overlap:       s.overlap,
		Duration:      customDuration,
	})
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("split audio: %w", err)
	}

	n := len(split.Segments)
	s.log.Info("transcribing audio", "filename", filename, "bytes", len(data), "segments", n, "method", split.Method)
	progress(fmt.Sprintf("Audio split into %d segments", n), 0.1)

	diag := TranscriptDiagnostics{SplitMethod: split.Method, Segments: n}
	transcripts := make([]models.SegmentTranscript, 0, n)
	prevTail := ""

	for i, seg := range split.Segments {
		res, err := s.transcriber.Transcribe(ctx, llm.TranscriptionRequest{
			Audio:    seg.Payload,
			Filename: seg.Filename,
			Language: language,
			Prompt:   prevTail,
		})

		st := models.SegmentTranscript{Index: seg.Index}
		if err != nil {
			s.log.Warn("segment transcription failed", "segment", seg.Index, "kind", llm.Kind(err), "error", err)
			st.Error = llm.Kind(err)
			diag.SegmentErrors = append(diag.SegmentErrors, fmt.Sprintf("segment %d: %v", seg.Index, err))
		} else {
			st.Success = true
			st.Text = res.Text
			st.Language = res.Language
			if st.Language == "" {
				st.Language = language
			}
			st.Duration = res.Duration
			if st.Duration <= 0 {
				st.Duration = seg.Duration
			}
			prevTail = tailRunes(res.Text, promptTailRunes)
		}
		transcripts = append(transcripts, st)

		progress(fmt.Sprintf("Transcribed %d/%d", i+1, n), 0.1+0.8*float64(i+1)/float64(n))
	}

	merged := audio.Merge(transcripts)
	diag.Succeeded = merged.SucceededSegments
	diag.Failed = merged.FailedSegments
	diag.Duration = merged.Duration
	diag.Language = merged.Language
	if diag.Duration <= 0 {
		diag.Duration = split.Duration
	}

	progress("Complete", 1.0)
	return TranscriptResult{Success: merged.Success, Text: merged.Text, Diagnostics: diag}, nil
}

func tailRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
