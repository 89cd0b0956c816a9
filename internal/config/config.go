// Package config loads the expense tracker settings from flags, environment
// variables, a .env file and an optional plain config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
)

// EnvPrefix is prepended to every flag name to form its environment variable
const EnvPrefix = "EXPENSE_TRACKER"

var (
	validDBTypes      = []string{"bolt", "sqlite", "postgres"}
	validStorageTypes = []string{"local", "gcs"}
	validOCREngines   = []string{"tesseract", "gemini", "ollama", "azure"}
	validLogFormats   = []string{"text", "json"}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
)

// Config holds every runtime setting
type Config struct {
	// HTTP server
	Port          int
	SessionKey    string
	SecureCookies bool

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DBType      string
	DBPath      string
	DatabaseURL string

	// File storage
	StorageType string
	StoragePath string
	GCSBucket   string
	GCSPrefix   string

	// OCR
	OCREngine     string
	OCRMaxPages   int
	OCREnhance    bool
	OCRTimeout    time.Duration
	TesseractCmd  string
	TesseractLang string
	GeminiKey     string
	GeminiModel   string
	OllamaURL     string
	OllamaModel   string
	AzureEndpoint string
	AzureKey      string

	ShowVersion bool
}

// Load parses args on top of the environment. A .env file in the working
// directory is loaded first; variables already set win over it.
func Load(name string, args []string) (*Config, *ff.FlagSet, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	flags := ff.NewFlagSet(name)
	flags.IntVar(&cfg.Port, 0, "port", 8080, "HTTP server port")
	flags.StringVar(&cfg.SessionKey, 0, "session-key", "", "Secret used to sign session cookies (at least 32 characters; random if empty)")
	flags.BoolVar(&cfg.SecureCookies, 0, "secure-cookies", "Only send the session cookie over HTTPS")

	flags.StringVar(&cfg.LogLevel, 0, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, 0, "log-format", "text", "Log format: text or json")

	flags.StringVar(&cfg.DBType, 0, "db-type", "bolt", "Database backend: bolt, sqlite or postgres")
	flags.StringVar(&cfg.DBPath, 0, "db", "expense-tracker.db", "Database file path (bolt and sqlite)")
	flags.StringVar(&cfg.DatabaseURL, 0, "database-url", "", "PostgreSQL connection string (postgres)")

	flags.StringVar(&cfg.StorageType, 0, "storage-type", "local", "File storage backend: local or gcs")
	flags.StringVar(&cfg.StoragePath, 0, "storage", "./uploads", "Storage directory path (local)")
	flags.StringVar(&cfg.GCSBucket, 0, "gcs-bucket", "", "Google Cloud Storage bucket (gcs)")
	flags.StringVar(&cfg.GCSPrefix, 0, "gcs-prefix", "", "Object name prefix inside the bucket (gcs)")

	flags.StringVar(&cfg.OCREngine, 0, "ocr", "tesseract", "OCR engine: tesseract, gemini, ollama or azure")
	flags.IntVar(&cfg.OCRMaxPages, 0, "ocr-max-pages", 10, "Maximum number of PDF pages to scan (0 for no limit)")
	flags.BoolVar(&cfg.OCREnhance, 0, "ocr-enhance", "Boost contrast and sharpness before OCR")
	flags.DurationVar(&cfg.OCRTimeout, 0, "ocr-timeout", 2*time.Minute, "Maximum time spent scanning one upload")
	flags.StringVar(&cfg.TesseractCmd, 0, "tesseract-cmd", "tesseract", "Tesseract executable")
	flags.StringVar(&cfg.TesseractLang, 0, "tesseract-lang", "eng", "Tesseract language")
	flags.StringVar(&cfg.GeminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	flags.StringVar(&cfg.GeminiModel, 0, "gemini-model", "gemini-2.5-flash", "Google Gemini model name")
	flags.StringVar(&cfg.OllamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	flags.StringVar(&cfg.OllamaModel, 0, "ollama-model", "llava", "Ollama vision model name")
	flags.StringVar(&cfg.AzureEndpoint, 0, "azure-endpoint", "", "Azure Computer Vision endpoint")
	flags.StringVar(&cfg.AzureKey, 0, "azure-key", "", "Azure Computer Vision API key")

	flags.BoolVar(&cfg.ShowVersion, 'v', "version", "Show version information")
	flags.StringLong("config", "", "Plain config file with one 'flag value' pair per line")

	if err := ff.Parse(flags, args,
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		return nil, flags, err
	}

	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}

	return &cfg, flags, nil
}

// Validate checks the configuration and reports every problem at once
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}
	if c.SessionKey != "" && len(c.SessionKey) < 32 {
		problems = append(problems, "session key must be at least 32 characters")
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	switch c.DBType {
	case "bolt", "sqlite":
		if c.DBPath == "" {
			problems = append(problems, fmt.Sprintf("database path cannot be empty when using %s backend", c.DBType))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			problems = append(problems, "database URL is required when using postgres backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid database backend '%s': must be one of %v", c.DBType, validDBTypes))
	}

	switch c.StorageType {
	case "local":
		if c.StoragePath == "" {
			problems = append(problems, "storage path cannot be empty when using local storage")
		}
	case "gcs":
		if c.GCSBucket == "" {
			problems = append(problems, "GCS bucket is required when using gcs storage")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageType, validStorageTypes))
	}

	switch c.OCREngine {
	case "tesseract":
		if c.TesseractCmd == "" {
			problems = append(problems, "tesseract command cannot be empty")
		}
	case "gemini":
		if c.GeminiKey == "" {
			problems = append(problems, "Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
	case "ollama":
		if u, err := url.Parse(c.OllamaURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			problems = append(problems, fmt.Sprintf("invalid Ollama URL '%s': must be an http or https URL", c.OllamaURL))
		}
	case "azure":
		if c.AzureEndpoint == "" || c.AzureKey == "" {
			problems = append(problems, "Azure endpoint and key are required when using azure OCR")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid OCR engine '%s': must be one of %v", c.OCREngine, validOCREngines))
	}

	if c.OCRMaxPages < 0 {
		problems = append(problems, fmt.Sprintf("invalid OCR page limit %d: must not be negative", c.OCRMaxPages))
	}
	if c.OCRTimeout < time.Second {
		problems = append(problems, fmt.Sprintf("invalid OCR timeout %v: must be at least 1 second", c.OCRTimeout))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// NewLogger builds the slog logger selected by LogFormat and LogLevel
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
