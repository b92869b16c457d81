package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration, loaded once at startup.
type Config struct {
	Port   string
	LogEnv string

	// Stores (local files by default)
	DatabasePath      string
	VectorDBPath      string
	KnowledgeSeedPath string
	DistrictSeedPath  string

	// OpenAI (chat + embeddings)
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ChatModel      string
	EmbeddingModel string

	// Gemini (audio transcription only; empty disables the audio stage)
	GeminiAPIKey string

	// WATI gateway
	WatiAPIKey             string
	WatiAPIURL             string
	WatiWebhookVerifyToken string

	// LLM rate-limit guard
	LLMMinRequestInterval time.Duration
	LLMMaxRetries         int
	LLMBaseDelay          time.Duration

	// Pipeline admission
	AllowedPhones []string

	PauseDefaultTTL time.Duration

	// Catalog sync
	UpstreamAPIURL  string
	SyncDailyTime   string // "HH:MM" local time
	ExcludedCityIDs []int
}

// Load reads configuration from environment variables. Missing required
// keys are a startup failure, never a request-time one.
func Load() (*Config, error) {
	cfg := &Config{
		Port:   getEnvOrDefault("PORT", "8080"),
		LogEnv: getEnvOrDefault("LOG_ENV", "development"),

		DatabasePath:      getEnvOrDefault("DATABASE_PATH", "data/waterbot.db"),
		VectorDBPath:      getEnvOrDefault("VECTOR_DB_PATH", "data/knowledge"),
		KnowledgeSeedPath: getEnvOrDefault("KNOWLEDGE_SEED_PATH", ""),
		DistrictSeedPath:  getEnvOrDefault("DISTRICT_SEED_PATH", ""),

		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  getEnvOrDefault("OPENAI_BASE_URL", ""),
		ChatModel:      getEnvOrDefault("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		WatiAPIKey:             os.Getenv("WATI_API_KEY"),
		WatiAPIURL:             os.Getenv("WATI_API_URL"),
		WatiWebhookVerifyToken: os.Getenv("WATI_WEBHOOK_VERIFY_TOKEN"),

		LLMMinRequestInterval: getEnvAsDurationOrDefault("LLM_MIN_REQUEST_INTERVAL", 500*time.Millisecond),
		LLMMaxRetries:         getEnvAsIntOrDefault("LLM_MAX_RETRIES", 3),
		LLMBaseDelay:          getEnvAsDurationOrDefault("LLM_BASE_DELAY", time.Second),

		AllowedPhones: splitCommaList(os.Getenv("ALLOWED_PHONES")),

		PauseDefaultTTL: time.Duration(getEnvAsIntOrDefault("PAUSE_DEFAULT_TTL_HOURS", 10)) * time.Hour,

		UpstreamAPIURL: getEnvOrDefault("UPSTREAM_API_URL", ""),
		SyncDailyTime:  getEnvOrDefault("SYNC_DAILY_TIME", "02:00"),
	}

	excluded, err := parseIntList(getEnvOrDefault("EXCLUDED_CITY_IDS", "6,7,8,9"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXCLUDED_CITY_IDS: %w", err)
	}
	cfg.ExcludedCityIDs = excluded

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.WatiAPIKey == "" {
		return nil, fmt.Errorf("WATI_API_KEY is required")
	}
	if cfg.WatiAPIURL == "" {
		return nil, fmt.Errorf("WATI_API_URL is required")
	}
	if _, _, err := ParseDailyTime(cfg.SyncDailyTime); err != nil {
		return nil, fmt.Errorf("invalid SYNC_DAILY_TIME: %w", err)
	}

	return cfg, nil
}

// ParseDailyTime parses "HH:MM" into hour and minute.
func ParseDailyTime(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare numbers are read as seconds
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range splitCommaList(s) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
