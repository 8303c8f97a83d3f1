package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmrzaf/tablegen/internal/timeutil"
)

type Config struct {
	RequestsDir   string
	JobStore      string
	DBDSN         string
	RedisURL      string
	JobTTL        time.Duration
	LogLevel      string
	BindAddr      string
	Workers       int
	QueueSize     int
	OpenAIKey     string
	OpenAIBaseURL string
	LLMTimeout    time.Duration
	DefaultLocale string
}

const (
	JobStoreMemory   = "memory"
	JobStoreSQLite   = "sqlite"
	JobStorePostgres = "postgres"
	JobStoreRedis    = "redis"
)

// Load reads the environment after merging an optional .env file from the
// working directory. Variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		RequestsDir:   getEnv("TABLEGEN_REQUESTS_DIR", "./requests"),
		JobStore:      getEnv("TABLEGEN_JOB_STORE", JobStoreSQLite),
		DBDSN:         getEnv("TABLEGEN_DB", "./tablegen-jobs.sqlite"),
		RedisURL:      getEnv("TABLEGEN_REDIS_URL", "redis://localhost:6379/0"),
		JobTTL:        getDuration("TABLEGEN_JOB_TTL", 24*time.Hour),
		LogLevel:      getEnv("TABLEGEN_LOG_LEVEL", "info"),
		BindAddr:      getEnv("TABLEGEN_BIND_ADDR", ":8080"),
		Workers:       getInt("TABLEGEN_WORKERS", 4),
		QueueSize:     getInt("TABLEGEN_QUEUE_SIZE", 64),
		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		LLMTimeout:    getDuration("TABLEGEN_LLM_TIMEOUT", 30*time.Second),
		DefaultLocale: getEnv("TABLEGEN_DEFAULT_LOCALE", "en_US"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := timeutil.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
