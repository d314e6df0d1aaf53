package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"review-orchestrator/internal/domain"
)

// Default configuration values
const (
	DefaultMaxBodySize int64 = 2 * 1024 * 1024 // 2MB
	DefaultConfigPath        = "config.yaml"
)

// Config holds the configuration for the review orchestrator service
type Config struct {
	Log struct {
		Level    string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
		Format   string `yaml:"format"` // text, json
		Output   string `yaml:"output"` // stdout, stderr, /path/to/file
		Rotation struct {
			MaxSize    int  `yaml:"max_size"`    // Megabytes
			MaxBackups int  `yaml:"max_backups"` // Number of old files to keep
			MaxAge     int  `yaml:"max_age"`     // Days to keep
			Compress   bool `yaml:"compress"`
		} `yaml:"rotation"`
	} `yaml:"log"`

	Server struct {
		Port             int           `yaml:"port"`
		ConcurrencyLimit int64         `yaml:"concurrency_limit"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxBodySize      int64         `yaml:"max_body_size"`
		WebhookSecret    string        `yaml:"-"` // From Env
	} `yaml:"server"`

	Analysis struct {
		Model       string        `yaml:"model"`
		Endpoint    string        `yaml:"endpoint"`
		APIKey      string        `yaml:"-"` // From Env
		Temperature float64       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
		Concurrency int           `yaml:"concurrency"` // Parallel per-file analysis passes
	} `yaml:"analysis"`

	Delivery struct {
		Concurrency int `yaml:"concurrency"` // Parallel comment posts
	} `yaml:"delivery"`

	Platform struct {
		BaseURL string        `yaml:"base_url"` // Git platform API root
		Token   string        `yaml:"-"`        // From Env
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"platform"`

	// Review is the default review configuration applied when no
	// per-repository override is resolved.
	Review domain.CodeReviewConfig `yaml:"review"`

	Webhook struct {
		DebounceSeconds int `yaml:"debounce_seconds"` // Quiet period after a push before a run starts
	} `yaml:"webhook"`

	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig holds configuration for review persistence
type StorageConfig struct {
	Driver  string        `yaml:"driver"`  // sqlite
	DSN     string        `yaml:"dsn"`     // Connection string
	Timeout time.Duration `yaml:"timeout"` // Timeout for storage operations (default: 5s)
}

// GetLogLevel returns the slog.Level based on Log.Level string
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from YAML file and supplements with environment variables
func LoadConfig() *Config {
	cfg := &Config{}

	// Set some defaults before loading
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.Server.Port = 8080
	cfg.Server.ConcurrencyLimit = 10
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.MaxBodySize = DefaultMaxBodySize
	cfg.Analysis.Endpoint = "https://api.openai.com/v1"
	cfg.Analysis.Model = "gpt-4o"
	cfg.Analysis.Temperature = 0.2
	cfg.Analysis.Timeout = 5 * time.Minute
	cfg.Analysis.Concurrency = 3
	cfg.Delivery.Concurrency = 5
	cfg.Platform.BaseURL = "https://api.github.com"
	cfg.Platform.Timeout = 30 * time.Second
	cfg.Webhook.DebounceSeconds = 10

	// Review policy defaults
	cfg.Review.SuggestionControl.GroupingMode = domain.GroupingModeSmart
	cfg.Review.SuggestionControl.LimitationType = domain.LimitationTypePR
	cfg.Review.SuggestionControl.SeverityLevelFilter = domain.SeverityLow
	cfg.Review.Cadence.Type = domain.CadenceTypeAutomatic
	cfg.Review.Cadence.PushesToTrigger = 3
	cfg.Review.Cadence.TimeWindowMinutes = 15
	cfg.Review.MaxFiles = 200

	// Log Rotation defaults
	cfg.Log.Rotation.MaxSize = 100
	cfg.Log.Rotation.MaxBackups = 10
	cfg.Log.Rotation.MaxAge = 7
	cfg.Log.Rotation.Compress = true

	// Storage defaults
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DSN = "reviews.db"
	cfg.Storage.Timeout = 5 * time.Second

	// Try to load from YAML
	configPath := getEnv("CONFIG_PATH", DefaultConfigPath)
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Error("unmarshal config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", configPath)
	} else {
		if !os.IsNotExist(err) {
			slog.Error("read config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config not found, using defaults", "path", configPath)
	}

	// Always supplement/override with environment variables for secrets and critical items
	cfg.Analysis.APIKey = getEnv("LLM_API_KEY", cfg.Analysis.APIKey)
	cfg.Server.WebhookSecret = getEnv("WEBHOOK_SECRET", cfg.Server.WebhookSecret)
	cfg.Platform.Token = getEnv("PLATFORM_TOKEN", cfg.Platform.Token)

	if envPort := getEnvInt("PORT", 0); envPort != 0 {
		cfg.Server.Port = envPort
	}
	if envLogLevel := os.Getenv("LOG_LEVEL"); envLogLevel != "" {
		cfg.Log.Level = envLogLevel
	}
	if envLogFormat := os.Getenv("LOG_FORMAT"); envLogFormat != "" {
		cfg.Log.Format = envLogFormat
	}
	if envLogOutput := getEnv("LOG_OUTPUT", ""); envLogOutput != "" {
		cfg.Log.Output = envLogOutput
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Analysis.APIKey == "" {
		errs = append(errs, "LLM_API_KEY is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}

	switch c.Review.SuggestionControl.LimitationType {
	case domain.LimitationTypeFile, domain.LimitationTypePR, domain.LimitationTypeSeverity:
	default:
		errs = append(errs, fmt.Sprintf("invalid limitation type: %s", c.Review.SuggestionControl.LimitationType))
	}

	switch c.Review.SuggestionControl.GroupingMode {
	case domain.GroupingModeNone, domain.GroupingModeSmart, domain.GroupingModeFull:
	default:
		errs = append(errs, fmt.Sprintf("invalid grouping mode: %s", c.Review.SuggestionControl.GroupingMode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
