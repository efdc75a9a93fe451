package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int
	LLMCallTimeout       time.Duration
	LLMMaxUnitChars      int

	// Generation
	GenerationCallDelay time.Duration
	GenerationMaxRetry  int
	SimilarityThreshold float64

	// Audio
	TranscriptionMaxBytes int64
	AudioOverlap          time.Duration
	FFmpegPath            string
	FFprobePath           string
	MediaWorkDir          string

	// HTTP
	UploadMaxBytes     int64
	RateLimitPerMinute int
	WorkerCount        int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		Env:                   getEnvOrDefault("ENV", "development"),
		DatabaseURL:           mustGetEnv("DATABASE_URL"),
		RedisURL:              mustGetEnv("REDIS_URL"),
		GeminiAPIKey:          mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:           getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs:  getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 2),
		LLMCallTimeout:        getEnvAsDurationOrDefault("LLM_CALL_TIMEOUT", 60*time.Second),
		LLMMaxUnitChars:       getEnvAsIntOrDefault("LLM_MAX_UNIT_CHARS", 4000),
		GenerationCallDelay:   getEnvAsDurationOrDefault("GENERATION_CALL_DELAY", time.Second),
		GenerationMaxRetry:    getEnvAsIntOrDefault("GENERATION_MAX_RETRIES", 3),
		SimilarityThreshold:   getEnvAsFloatOrDefault("DUPLICATE_SIMILARITY_THRESHOLD", 0.8),
		TranscriptionMaxBytes: int64(getEnvAsIntOrDefault("TRANSCRIPTION_MAX_BYTES", 25*1024*1024)),
		AudioOverlap:          getEnvAsDurationOrDefault("AUDIO_OVERLAP_SECONDS", 3*time.Second),
		FFmpegPath:            getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		MediaWorkDir:          getEnvOrDefault("MEDIA_WORK_DIR", os.TempDir()),
		UploadMaxBytes:        int64(getEnvAsIntOrDefault("UPLOAD_MAX_BYTES", 200*1024*1024)),
		RateLimitPerMinute:    getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 10),
		WorkerCount:           getEnvAsIntOrDefault("WORKER_COUNT", 2),
		FrontendURL:           getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// getEnvAsDurationOrDefault accepts Go duration strings ("90s") and bare
// integers, which are read as seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
