package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	lendingapp "laptop-lending/internal/lending/application"
)

// Config holds process configuration read from the environment.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	LogLevel    string
	LogFormat   string
	SeedFile    string

	// RetryInterval is how often unsaved entities are written again. Zero disables retries.
	RetryInterval time.Duration

	Auth    AuthConfig
	Outbox  OutboxConfig
	Webhook WebhookConfig
}

// AuthConfig controls JWT authentication.
type AuthConfig struct {
	JWTSecret string
	Disabled  bool
}

// OutboxConfig controls event outbox dispatch.
type OutboxConfig struct {
	DispatchInterval time.Duration
	BatchSize        int
	MaxAttempts      int
}

// WebhookConfig controls change notifications to a chat webhook.
type WebhookConfig struct {
	URL          string
	Secret       string
	Template     string
	Timeout      time.Duration
	DedupeWindow time.Duration
}

// Load reads .env files when present, then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else {
		for _, file := range envFiles {
			if err := godotenv.Load(file); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", file, err)
			}
		}
	}

	cfg := Config{
		HTTPAddr:      getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:   getenvDefault("DATABASE_URL", os.Getenv("PG_DSN")),
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),
		LogFormat:     getenvDefault("LOG_FORMAT", "text"),
		SeedFile:      os.Getenv("SEED_FILE"),
		RetryInterval: getenvDuration("PERSISTENCE_RETRY_INTERVAL", 30*time.Second),
		Auth: AuthConfig{
			JWTSecret: getenvDefault("AUTH_JWT_SECRET", os.Getenv("JWT_SECRET")),
			Disabled:  getenvBool("AUTH_DISABLED", false),
		},
		Outbox: OutboxConfig{
			DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
			BatchSize:        getenvIntDefault("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:      getenvIntDefault("OUTBOX_MAX_ATTEMPTS", 5),
		},
		Webhook: WebhookConfig{
			URL:          os.Getenv("OUTBOX_WEBHOOK_URL"),
			Secret:       os.Getenv("OUTBOX_WEBHOOK_SECRET"),
			Template:     os.Getenv("NOTIFY_TEMPLATE"),
			Timeout:      getenvDuration("WEBHOOK_TIMEOUT", 5*time.Second),
			DedupeWindow: getenvDuration("NOTIFY_DEDUP_WINDOW", time.Minute),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail at first use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: HTTP_ADDR is empty")
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("config: OUTBOX_BATCH_SIZE must be positive")
	}
	return nil
}

// NewLogger builds the process logger.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// Seed lists devices and requesters registered at startup.
type Seed struct {
	Devices    []lendingapp.NewDevice    `yaml:"devices"`
	Requesters []lendingapp.NewRequester `yaml:"requesters"`
}

// LoadSeed parses a seed file. Unknown fields are rejected.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return seed, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
