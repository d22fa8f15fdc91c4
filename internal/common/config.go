package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the worker configuration. Values come from an
// optional TOML file, then environment variables override on top, so a
// deployment can run with nothing but env set.
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Database    DatabaseConfig `toml:"database"`
	Queue       QueueConfig    `toml:"queue"`
	Storage     StorageConfig  `toml:"storage"`
	Worker      WorkerConfig   `toml:"worker"`
	AI          AIConfig       `toml:"ai"`
	OCR         OCRConfig      `toml:"ocr"`
	Logging     LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	URL string `toml:"url"` // Postgres connection string
}

type QueueConfig struct {
	RedisURL string `toml:"redis_url"`
	JobsKey  string `toml:"jobs_key"` // Redis list the API pushes job ids onto
}

type StorageConfig struct {
	S3Bucket        string `toml:"s3_bucket"`
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	LocalDir        string `toml:"local_dir"` // When set, blobs live under this directory instead of S3
}

type WorkerConfig struct {
	Concurrency   int    `toml:"concurrency"`     // Max jobs executing in parallel
	ProcessOneJob bool   `toml:"process_one_job"` // Exit after the first job (test mode)
	MetricsPort   int    `toml:"metrics_port"`
	EnvFile       string `toml:"env_file"` // Re-read on SIGHUP
}

type AIConfig struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
}

type OCRConfig struct {
	DefaultEndpoint string `toml:"default_endpoint"` // Process-level external OCR fallback
	DefaultAPIKey   string `toml:"default_api_key"`
	ToolPath        string `toml:"tool_path"` // Built-in local OCR program; empty = in-process extraction
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns the configuration used when no file and no env
// is present.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Queue: QueueConfig{
			RedisURL: "redis://localhost:6379",
			JobsKey:  "jobs",
		},
		Worker: WorkerConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadConfig loads configuration from an optional TOML file, applies
// the ENV_FILE if one is configured, then applies env overrides.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			// Missing file is fine - env-only deployments are supported
		} else if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// ENV_FILE is resolved before overrides so its values participate
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		config.Worker.EnvFile = envFile
	}
	if config.Worker.EnvFile != "" {
		if err := godotenv.Overload(config.Worker.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file %s: %w", config.Worker.EnvFile, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// ReloadEnv re-reads the configured env file and returns the refreshed
// configuration. Used by the SIGHUP handler; only WORKER_CONCURRENCY is
// reapplied to running components, everything else takes effect for
// later jobs.
func (c *Config) ReloadEnv() (*Config, error) {
	if c.Worker.EnvFile != "" {
		if err := godotenv.Overload(c.Worker.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to reload env file %s: %w", c.Worker.EnvFile, err)
		}
	}
	reloaded := *c
	applyEnvOverrides(&reloaded)
	return &reloaded, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Environment = env
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Queue.RedisURL = url
	}

	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		config.Storage.S3Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Storage.Region = region
	}
	if dir := os.Getenv("LOCAL_S3_DIR"); dir != "" {
		config.Storage.LocalDir = dir
	}

	if concurrency := os.Getenv("WORKER_CONCURRENCY"); concurrency != "" {
		if n, err := strconv.Atoi(concurrency); err == nil && n > 0 {
			config.Worker.Concurrency = n
		}
	}
	if one := os.Getenv("PROCESS_ONE_JOB"); one != "" {
		config.Worker.ProcessOneJob = parseBool(one)
	}
	if port := os.Getenv("METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Worker.MetricsPort = p
		}
	}

	if url := os.Getenv("AI_API_URL"); url != "" {
		config.AI.Endpoint = url
	}
	if key := os.Getenv("AI_API_KEY"); key != "" {
		config.AI.APIKey = key
	}

	if endpoint := os.Getenv("DEFAULT_EXTERNAL_OCR_ENDPOINT"); endpoint != "" {
		config.OCR.DefaultEndpoint = endpoint
	}
	if key := os.Getenv("DEFAULT_EXTERNAL_OCR_API_KEY"); key != "" {
		config.OCR.DefaultAPIKey = key
	}
	if path := os.Getenv("OCR_TOOL_PATH"); path != "" {
		config.OCR.ToolPath = path
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
