package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "STORAGE_DRIVER", "LLM_PROVIDER", "AGGREGATION_INTERVAL", "UPLOAD_MAX_RETRIES", "UPLOAD_TIMEOUT_MS"} {
		t.Setenv(k, "")
	}

	assert.Equal(t, 8080, ServerPort())
	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, "memory", StorageDriver())
	assert.Equal(t, "none", LLMProvider())
	assert.Equal(t, "", LLMAPIKey())
	assert.Equal(t, 7*24*time.Hour, AggregationInterval())
	assert.Equal(t, -1, UploadMaxRetries())
	assert.Equal(t, time.Duration(0), UploadTimeout())
}

func TestMillisecondDurations(t *testing.T) {
	t.Setenv("SHORT_TERM_RESPONSE_TIMEOUT_MS", "1500")
	t.Setenv("FEEDBACK_FLUSH_INTERVAL_MS", "garbage")

	assert.Equal(t, 1500*time.Millisecond, ShortTermResponseTimeout())
	assert.Equal(t, time.Duration(0), FeedbackFlushInterval())
}

func TestLLMAPIKey_FollowsProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "ak")
	t.Setenv("OPENAI_API_KEY", "ok")

	assert.Equal(t, "ak", LLMAPIKey())

	t.Setenv("LLM_PROVIDER", "openai")
	assert.Equal(t, "ok", LLMAPIKey())
}

func TestLoad_ReadsEnvFileAndSecret(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("AGGREGATION_BATCH_SIZE=2500\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile+".secret", []byte("CEREBRAS_API_KEY=secret\n"), 0o600))

	t.Setenv("FEEDBACKD_ENV", envFile)
	t.Setenv("AGGREGATION_BATCH_SIZE", "")
	t.Setenv("CEREBRAS_API_KEY", "")
	// godotenv never overrides variables that are already set, even to "".
	require.NoError(t, os.Unsetenv("AGGREGATION_BATCH_SIZE"))
	require.NoError(t, os.Unsetenv("CEREBRAS_API_KEY"))

	require.NoError(t, Load())

	assert.Equal(t, 2500, AggregationBatchSize())
	assert.Equal(t, "secret", CerebrasAPIKey())
}
