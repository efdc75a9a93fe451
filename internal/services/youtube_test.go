package services

import (
	"errors"
	"reflect"
	"testing"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"  dQw4w9WgXcQ ", "dQw4w9WgXcQ", false},
		{"short", "", true},
	}

	for _, tc := range tests {
		got, err := VideoID(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("VideoID(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("VideoID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCaptionLanguages(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"ja", "en", "en-US", "en-GB"}},
		{"ja", []string{"ja"}},
		{"en-US", []string{"en-US", "en"}},
	}
	for _, tc := range tests {
		if got := captionLanguages(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("captionLanguages(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestExtractCaptionURL(t *testing.T) {
	page := `..."captionTracks":[{"baseUrl":"https:\/\/www.youtube.com\/api\/timedtext?v=abc&lang=ja","name":{}}],"audioTracks"...`

	got, err := extractCaptionURL(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://www.youtube.com/api/timedtext?v=abc&lang=ja" {
		t.Errorf("unexpected url %q", got)
	}

	if _, err := extractCaptionURL("<html></html>"); !errors.Is(err, ErrNoCaptions) {
		t.Errorf("expected ErrNoCaptions, got %v", err)
	}
}

func TestParseCaptionsXML(t *testing.T) {
	data := []byte(`<transcript><text start="0" dur="1.5">光合成の&amp;講義</text><text start="1.5" dur="1">  </text><text start="2.5" dur="2">始めます</text></transcript>`)

	got, err := parseCaptionsXML(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "光合成の&講義 始めます" {
		t.Errorf("unexpected text %q", got)
	}

	if _, err := parseCaptionsXML([]byte(`<transcript></transcript>`)); err == nil {
		t.Error("expected an error for empty captions")
	}
}
