package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quizforge-backend/internal/logger"
)

type fakeTool struct {
	dir       string
	duration  time.Duration
	available error
	probed    int
	cuts      [][2]time.Duration
}

func (f *fakeTool) Available(context.Context) error { return f.available }

func (f *fakeTool) Duration(context.Context, string) (time.Duration, error) {
	f.probed++
	return f.duration, nil
}

func (f *fakeTool) Cut(_ context.Context, _ string, start, length time.Duration, out string) error {
	f.cuts = append(f.cuts, [2]time.Duration{start, length})
	return os.WriteFile(out, make([]byte, int(length.Seconds())+1), 0o644)
}

func (f *fakeTool) WriteTempFile(data []byte, suffix string) (string, func(), error) {
	path := filepath.Join(f.dir, "input"+suffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", func() {}, err
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func TestSplit_SmallInputIsSingleSegment(t *testing.T) {
	c := NewChunker(&fakeTool{dir: t.TempDir()}, logger.Nop())

	res, err := c.Split(context.Background(), make([]byte, 500), "talk.mp3", SplitOptions{MaxChunkBytes: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != MethodSingle || len(res.Segments) != 1 {
		t.Fatalf("expected one unsplit segment, got %s/%d", res.Method, len(res.Segments))
	}
	if len(res.Segments[0].Payload) != 500 {
		t.Errorf("payload must be the whole input")
	}
}

func TestSplit_TimeBasedWithTrailingOverlap(t *testing.T) {
	tool := &fakeTool{dir: t.TempDir(), duration: 300 * time.Second}
	c := NewChunker(tool, logger.Nop())

	res, err := c.Split(context.Background(), make([]byte, 3_000_000), "lecture.m4a", SplitOptions{
		MaxChunkBytes: 1_000_000,
		Overlap:       3 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != MethodTime {
		t.Fatalf("expected time split, got %s", res.Method)
	}
	if len(res.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(res.Segments))
	}

	for i, seg := range res.Segments {
		if seg.Index != i || len(seg.Payload) == 0 {
			t.Errorf("segment %d malformed: %+v", i, seg)
		}
		wantStart := time.Duration(i) * 75 * time.Second
		if seg.StartTime != wantStart {
			t.Errorf("segment %d starts at %s, want %s", i, seg.StartTime, wantStart)
		}
	}
	for _, seg := range res.Segments[:3] {
		if !seg.Overlap || seg.EndTime != seg.StartTime+78*time.Second {
			t.Errorf("segment %d should carry a 3s trailing overlap, got %s-%s", seg.Index, seg.StartTime, seg.EndTime)
		}
	}
	last := res.Segments[3]
	if last.Overlap || last.EndTime != 300*time.Second {
		t.Errorf("last segment must end exactly at the audio end, got %+v", last)
	}
}

func TestSplit_CustomDurationSkipsProbe(t *testing.T) {
	tool := &fakeTool{dir: t.TempDir(), duration: time.Hour}
	c := NewChunker(tool, logger.Nop())

	res, err := c.Split(context.Background(), make([]byte, 3_000_000), "lecture.mp3", SplitOptions{
		MaxChunkBytes: 1_000_000,
		Duration:      300 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tool.probed != 0 {
		t.Error("probe must be skipped when the duration is supplied")
	}
	if res.Duration != 300*time.Second {
		t.Errorf("expected supplied duration, got %s", res.Duration)
	}
}

func TestSplit_DegradesToBytes(t *testing.T) {
	tests := []struct {
		name string
		tool MediaTool
	}{
		{"tool unavailable", &fakeTool{available: errors.New("ffmpeg missing")}},
		{"no tool", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewChunker(tc.tool, logger.Nop())
			audio := make([]byte, 2500)

			res, err := c.Split(context.Background(), audio, "memo.wav", SplitOptions{MaxChunkBytes: 1000})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Method != MethodBytes || len(res.Segments) != 3 {
				t.Fatalf("expected 3 byte segments, got %s/%d", res.Method, len(res.Segments))
			}
			total := 0
			for _, s := range res.Segments {
				if len(s.Payload) > 1000 {
					t.Errorf("segment %d exceeds the limit: %d", s.Index, len(s.Payload))
				}
				total += len(s.Payload)
			}
			if total != len(audio) {
				t.Errorf("byte split lost data: %d of %d", total, len(audio))
			}
			if res.Segments[1].Filename != "memo_part002.wav" {
				t.Errorf("unexpected filename %q", res.Segments[1].Filename)
			}
		})
	}
}

func TestSplit_EmptyAudio(t *testing.T) {
	c := NewChunker(nil, logger.Nop())

	if _, err := c.Split(context.Background(), nil, "x.mp3", SplitOptions{MaxChunkBytes: 10}); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}
