package models

import "time"

type AudioSegment struct {
	Index     int           `json:"index"`
	StartTime time.Duration `json:"start_time"`
	EndTime   time.Duration `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Payload   []byte        `json:"-"`
	Filename  string        `json:"filename"`
	Overlap   bool          `json:"overlap"`
}

// SegmentTranscript is the transcription outcome for one AudioSegment.
type SegmentTranscript struct {
	Index    int           `json:"index"`
	Success  bool          `json:"success"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
	Language string        `json:"language"`
	Error    string        `json:"error,omitempty"`
}

type MergedTranscript struct {
	Success           bool          `json:"success"`
	Text              string        `json:"text"`
	Duration          time.Duration `json:"duration"`
	Language          string        `json:"language"`
	SucceededSegments int           `json:"succeeded_segments"`
	FailedSegments    int           `json:"failed_segments"`
}
