package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value123")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestGetEnvAsFloatOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal float64
		expected   float64
	}{
		{"parses float", "TEST_FLOAT_1", "0.75", 0.8, 0.75},
		{"uses default for empty", "TEST_FLOAT_2", "", 0.8, 0.8},
		{"uses default for garbage", "TEST_FLOAT_3", "high", 0.8, 0.8},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)

			result := getEnvAsFloatOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal time.Duration
		expected   time.Duration
	}{
		{"bare integer is seconds", "TEST_DUR_1", "45", time.Second, 45 * time.Second},
		{"duration string", "TEST_DUR_2", "1500ms", time.Second, 1500 * time.Millisecond},
		{"uses default for empty", "TEST_DUR_3", "", 3 * time.Second, 3 * time.Second},
		{"uses default for garbage", "TEST_DUR_4", "soon", 3 * time.Second, 3 * time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)

			result := getEnvAsDurationOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/quiz")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.LLMCallTimeout != 60*time.Second {
		t.Errorf("Expected 60s LLM timeout, got %v", cfg.LLMCallTimeout)
	}
	if cfg.TranscriptionMaxBytes != 25*1024*1024 {
		t.Errorf("Expected 25MiB transcription limit, got %d", cfg.TranscriptionMaxBytes)
	}
	if cfg.GenerationMaxRetry != 3 {
		t.Errorf("Expected 3 retries, got %d", cfg.GenerationMaxRetry)
	}
	if cfg.WorkerCount != 2 || cfg.RateLimitPerMinute != 10 {
		t.Errorf("Expected 2 workers at 10 req/min, got %d at %d", cfg.WorkerCount, cfg.RateLimitPerMinute)
	}
	if cfg.SimilarityThreshold != 0.8 {
		t.Errorf("Expected 0.8 similarity threshold, got %v", cfg.SimilarityThreshold)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/quiz")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GENERATION_CALL_DELAY", "250ms")
	t.Setenv("AUDIO_OVERLAP_SECONDS", "5")
	t.Setenv("UPLOAD_MAX_BYTES", "1048576")

	cfg := Load()
	if cfg.GenerationCallDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms call delay, got %v", cfg.GenerationCallDelay)
	}
	if cfg.AudioOverlap != 5*time.Second {
		t.Errorf("Expected 5s overlap, got %v", cfg.AudioOverlap)
	}
	if cfg.UploadMaxBytes != 1<<20 {
		t.Errorf("Expected 1MiB upload limit, got %d", cfg.UploadMaxBytes)
	}
}
