package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendSQLite    = "sqlite"
	BackendPathstore = "pathstore"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Document store
	StoreBackend    string `yaml:"store_backend"`
	SQLitePath      string `yaml:"sqlite_path"`
	PathstoreURL    string `yaml:"pathstore_url"`
	PathstoreAPIKey string `yaml:"pathstore_api_key"`

	// Claude classification; empty key means rules only
	AnthropicAPIKey  string        `yaml:"anthropic_api_key"`
	AnthropicModel   string        `yaml:"anthropic_model"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	LLMTimeout       time.Duration `yaml:"llm_timeout"`
	LLMConcurrency   int           `yaml:"llm_concurrency"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxBatchFiles  int   `yaml:"max_batch_files"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`

	// Revision diffs
	MaxDiffLines int `yaml:"max_diff_lines"`
	DiffContext  int `yaml:"diff_context"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:     "8090",
		LogLevel: "info",

		StoreBackend: BackendSQLite,
		SQLitePath:   "data/cvchat.db",
		PathstoreURL: "http://localhost:8080",

		AnthropicModel: "claude-sonnet-4-5-20250929",
		LLMTimeout:     15 * time.Second,
		LLMConcurrency: 4,

		WorkerCount:  4,
		MaxQueueSize: 100,

		MaxUploadBytes: 10 << 20, // 10MB
		MaxBatchFiles:  20,

		JobTTL: 1 * time.Hour,

		PDFFallbackPdftotext: true,

		MaxDiffLines: 5000,
		DiffContext:  3,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CVCHAT_CONFIG (if set), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CVCHAT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	cfg.clamp()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)

	c.APIKey = envOr("CVCHAT_API_KEY", c.APIKey)

	c.StoreBackend = envOr("STORE_BACKEND", c.StoreBackend)
	c.SQLitePath = envOr("SQLITE_PATH", c.SQLitePath)
	c.PathstoreURL = envOr("PATHSTORE_URL", c.PathstoreURL)
	c.PathstoreAPIKey = envOr("PATHSTORE_API_KEY", c.PathstoreAPIKey)

	c.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicModel = envOr("ANTHROPIC_MODEL", c.AnthropicModel)
	c.AnthropicBaseURL = envOr("ANTHROPIC_BASE_URL", c.AnthropicBaseURL)
	c.LLMTimeout = envDuration("LLM_TIMEOUT", c.LLMTimeout)
	c.LLMConcurrency = envInt("LLM_CONCURRENCY", c.LLMConcurrency)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)

	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.MaxBatchFiles = envInt("MAX_BATCH_FILES", c.MaxBatchFiles)

	c.JobTTL = envDuration("JOB_TTL", c.JobTTL)

	c.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)

	c.MaxDiffLines = envInt("MAX_DIFF_LINES", c.MaxDiffLines)
	c.DiffContext = envInt("DIFF_CONTEXT", c.DiffContext)
}

// clamp resets non-positive limits to their defaults.
func (c *Config) clamp() {
	d := Defaults()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.MaxBatchFiles <= 0 {
		c.MaxBatchFiles = d.MaxBatchFiles
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = d.LLMTimeout
	}
	if c.LLMConcurrency <= 0 {
		c.LLMConcurrency = d.LLMConcurrency
	}
	if c.MaxDiffLines <= 0 {
		c.MaxDiffLines = d.MaxDiffLines
	}
	if c.DiffContext < 0 {
		c.DiffContext = d.DiffContext
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("CVCHAT_API_KEY is required")
	}
	switch c.StoreBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case BackendPathstore:
		if c.PathstoreURL == "" || c.PathstoreAPIKey == "" {
			return errors.New("PATHSTORE_URL and PATHSTORE_API_KEY are required for the pathstore store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (valid: %s, %s)", c.StoreBackend, BackendSQLite, BackendPathstore)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// LLMEnabled reports whether the Claude classifier should run in front of
// the rule classifier.
func (c Config) LLMEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
