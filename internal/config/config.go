package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by FEEDBACKD_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("FEEDBACKD_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intEnv("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// StorageDriver returns the storage backend driver.
// Defaults to "memory" if not set.
// Valid values: memory, sqlite, postgres
func StorageDriver() string {
	d := os.Getenv("STORAGE_DRIVER")
	if d == "" {
		return "memory"
	}
	return d
}

func SQLitePath() string {
	p := os.Getenv("SQLITE_PATH")
	if p == "" {
		return "feedbackd.db"
	}
	return p
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// UploadBaseURL returns the collector endpoint. Empty disables uploads.
func UploadBaseURL() string {
	return os.Getenv("UPLOAD_BASE_URL")
}

// Durations below are read as milliseconds. Zero means "component default";
// range clamping happens in each component.

func UploadTimeout() time.Duration {
	return msEnv("UPLOAD_TIMEOUT_MS")
}

// UploadMaxRetries returns -1 when unset so the uploader applies its default.
func UploadMaxRetries() int {
	return intEnv("UPLOAD_MAX_RETRIES", -1)
}

func UploadRetryDelay() time.Duration {
	return msEnv("UPLOAD_RETRY_DELAY_MS")
}

func FeedbackMaxBufferSize() int {
	return intEnv("FEEDBACK_MAX_BUFFER_SIZE", 0)
}

func FeedbackFlushInterval() time.Duration {
	return msEnv("FEEDBACK_FLUSH_INTERVAL_MS")
}

func ShortTermResponseTimeout() time.Duration {
	return msEnv("SHORT_TERM_RESPONSE_TIMEOUT_MS")
}

func ShortTermMaxHistoryItems() int {
	return intEnv("SHORT_TERM_MAX_HISTORY_ITEMS", 0)
}

func AggregationTimeout() time.Duration {
	return msEnv("AGGREGATION_TIMEOUT_MS")
}

func AggregationMinFeedbackCount() int {
	return intEnv("AGGREGATION_MIN_FEEDBACK_COUNT", 0)
}

func AggregationBatchSize() int {
	return intEnv("AGGREGATION_BATCH_SIZE", 0)
}

// AggregationInterval returns how often the scheduled aggregation runs.
// Accepts Go duration syntax ("168h"). Defaults to one week.
func AggregationInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("AGGREGATION_INTERVAL"))
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "none" if not set, which serves template fallbacks only.
// Valid values: openai, anthropic, gemini, cerebras, mock, none
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "none"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock", "none":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func msEnv(key string) time.Duration {
	ms, err := strconv.Atoi(os.Getenv(key))
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
