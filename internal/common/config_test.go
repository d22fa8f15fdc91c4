package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "redis://localhost:6379", config.Queue.RedisURL)
	assert.Equal(t, "jobs", config.Queue.JobsKey)
	assert.Equal(t, 4, config.Worker.Concurrency)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadConfigMissingFileIsFine(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "jobs", config.Queue.JobsKey)
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crpipeline.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "production"

[database]
url = "postgres://db/crpipeline"

[queue]
redis_url = "redis://queue:6379"
jobs_key = "analysis-jobs"

[worker]
concurrency = 8

[logging]
level = "debug"
`), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "postgres://db/crpipeline", config.Database.URL)
	assert.Equal(t, "analysis-jobs", config.Queue.JobsKey)
	assert.Equal(t, 8, config.Worker.Concurrency)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte(`environment = [unclosed`), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crpipeline.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
url = "postgres://file-db"
`), 0644))

	t.Setenv("DATABASE_URL", "postgres://env-db")
	t.Setenv("REDIS_URL", "redis://env-queue:6379")
	t.Setenv("S3_BUCKET", "env-bucket")
	t.Setenv("WORKER_CONCURRENCY", "12")
	t.Setenv("PROCESS_ONE_JOB", "true")
	t.Setenv("AI_API_URL", "https://ai.example.com")
	t.Setenv("AI_API_KEY", "env-ai-key")
	t.Setenv("DEFAULT_EXTERNAL_OCR_ENDPOINT", "https://ocr.example.com")
	t.Setenv("OCR_TOOL_PATH", "/usr/local/bin/ocr")
	t.Setenv("LOG_LEVEL", "warn")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-db", config.Database.URL)
	assert.Equal(t, "redis://env-queue:6379", config.Queue.RedisURL)
	assert.Equal(t, "env-bucket", config.Storage.S3Bucket)
	assert.Equal(t, 12, config.Worker.Concurrency)
	assert.True(t, config.Worker.ProcessOneJob)
	assert.Equal(t, "https://ai.example.com", config.AI.Endpoint)
	assert.Equal(t, "env-ai-key", config.AI.APIKey)
	assert.Equal(t, "https://ocr.example.com", config.OCR.DefaultEndpoint)
	assert.Equal(t, "/usr/local/bin/ocr", config.OCR.ToolPath)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestInvalidConcurrencyIgnored(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 4, config.Worker.Concurrency)

	t.Setenv("WORKER_CONCURRENCY", "0")
	config, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 4, config.Worker.Concurrency, "non-positive values keep the default")
}

func TestEnvFileLoadedBeforeOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("WORKER_CONCURRENCY=6\nAI_API_KEY=file-key\n"), 0644))

	t.Setenv("ENV_FILE", envFile)
	// godotenv.Overload writes into the process env; keep the keys
	// restored for later tests
	t.Setenv("WORKER_CONCURRENCY", "")
	t.Setenv("AI_API_KEY", "")
	defer func() {
		os.Unsetenv("WORKER_CONCURRENCY")
		os.Unsetenv("AI_API_KEY")
	}()

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, envFile, config.Worker.EnvFile)
	assert.Equal(t, 6, config.Worker.Concurrency)
	assert.Equal(t, "file-key", config.AI.APIKey)
}

func TestReloadEnvPicksUpNewValues(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("WORKER_CONCURRENCY=2\n"), 0644))

	t.Setenv("ENV_FILE", envFile)
	t.Setenv("WORKER_CONCURRENCY", "")
	defer os.Unsetenv("WORKER_CONCURRENCY")

	config, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 2, config.Worker.Concurrency)

	require.NoError(t, os.WriteFile(envFile, []byte("WORKER_CONCURRENCY=5\n"), 0644))

	reloaded, err := config.ReloadEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Worker.Concurrency)
	assert.Equal(t, 2, config.Worker.Concurrency, "the original config is not mutated")
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("true"))
	assert.True(t, parseBool("1"))
	assert.True(t, parseBool("YES"))
	assert.True(t, parseBool(" on "))
	assert.False(t, parseBool("false"))
	assert.False(t, parseBool("0"))
	assert.False(t, parseBool(""))
	assert.False(t, parseBool("banana"))
}
