package config

import (
	"os"
	"strconv"
	"time"
)

// Strategy selects the transcription adapter.
const (
	StrategyWhisper = "whisper"
	StrategyPolling = "polling"
)

// Config is the full environment-driven configuration surface. Call Load
// after godotenv has populated the environment.
type Config struct {
	Port         string
	DatabasePath string
	OutputDir    string
	TempDir      string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	WhisperModel  string
	AnalysisModel string

	TranscribeStrategy string
	PollingBaseURL     string
	PollingAPIKey      string

	MaxConcurrentFeeds int
	UpdateWindowHours  int
	TickerInterval     time.Duration

	MaxRetryAttempts int
	RetryBaseDelay   time.Duration
	RetryCapDelay    time.Duration
	RequestTimeout   time.Duration

	MaxUploadBytes      int64
	FFmpegPath          string
	FFprobePath         string
	TranscodeTimeout    time.Duration
	MinTranscriptChars  int
	SinglePassThreshold int
	ChunkBudget         int
	SummaryTargetChars  int
	KeyPointCount       int
}

func Load() *Config {
	return &Config{
		Port:         envOr("PORT", "8080"),
		DatabasePath: envOr("DATABASE_PATH", "podcast-insights.db"),
		OutputDir:    envOr("OUTPUT_DIR", "output"),
		TempDir:      envOr("TEMP_DIR", os.TempDir()),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		WhisperModel:  envOr("WHISPER_MODEL", "whisper-1"),
		AnalysisModel: envOr("ANALYSIS_MODEL", "gpt-4o-mini"),

		TranscribeStrategy: envOr("TRANSCRIBE_STRATEGY", StrategyWhisper),
		PollingBaseURL:     os.Getenv("POLLING_TRANSCRIBE_URL"),
		PollingAPIKey:      os.Getenv("POLLING_TRANSCRIBE_KEY"),

		MaxConcurrentFeeds: envInt("MAX_CONCURRENT_FEEDS", 3),
		UpdateWindowHours:  envInt("UPDATE_WINDOW_HOURS", 24),
		TickerInterval:     envDuration("TICKER_INTERVAL", 0),

		MaxRetryAttempts: envInt("MAX_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:   envDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryCapDelay:    envDuration("RETRY_CAP_DELAY", time.Minute),
		RequestTimeout:   envDuration("REQUEST_TIMEOUT", 5*time.Minute),

		MaxUploadBytes:      envInt64("MAX_UPLOAD_BYTES", 25*1024*1024),
		FFmpegPath:          envOr("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:         envOr("FFPROBE_PATH", "ffprobe"),
		TranscodeTimeout:    envDuration("TRANSCODE_TIMEOUT", 15*time.Minute),
		MinTranscriptChars:  envInt("MIN_TRANSCRIPT_CHARS", 100),
		SinglePassThreshold: envInt("SINGLE_PASS_THRESHOLD", 10000),
		ChunkBudget:         envInt("CHUNK_BUDGET", 8000),
		SummaryTargetChars:  envInt("SUMMARY_TARGET_CHARS", 800),
		KeyPointCount:       envInt("KEY_POINT_COUNT", 5),
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
