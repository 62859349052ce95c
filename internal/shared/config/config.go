package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port               string
	CORSAllowOrigin    []string
	LLMProvider        string
	LLMModel           string
	AnalysisVersion    string
	DatabaseURL        string
	Env                string
	Stage1Workers      int
	StreamPollInterval time.Duration
	EventRetention     time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:               getEnv("PORT", "8080"),
		CORSAllowOrigin:    splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		LLMProvider:        getEnv("LLM_PROVIDER", "openai"),
		LLMModel:           getEnv("LLM_MODEL", ""),
		AnalysisVersion:    getEnv("ANALYSIS_VERSION", "gpt-5-mini:wave-v1"),
		DatabaseURL:        dbURL,
		Env:                env,
		Stage1Workers:      getEnvInt("STAGE1_WORKERS", 3),
		StreamPollInterval: getEnvMillis("STREAM_POLL_INTERVAL_MS", 500*time.Millisecond),
		EventRetention:     getEnvMinutes("EVENT_RETENTION_MINUTES", 24*time.Hour),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getEnvMillis(key string, def time.Duration) time.Duration {
	if v := getEnvInt(key, 0); v > 0 {
		return time.Duration(v) * time.Millisecond
	}
	return def
}

func getEnvMinutes(key string, def time.Duration) time.Duration {
	if v := getEnvInt(key, 0); v > 0 {
		return time.Duration(v) * time.Minute
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}
