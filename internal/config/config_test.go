package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lending "laptop-lending/internal/lending/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_ADDR", "DATABASE_URL", "PG_DSN", "LOG_LEVEL", "LOG_FORMAT", "SEED_FILE",
		"AUTH_JWT_SECRET", "JWT_SECRET", "AUTH_DISABLED", "NOTIFY_TEMPLATE", "NOTIFY_DEDUP_WINDOW", "OUTBOX_DISPATCH_INTERVAL", "OUTBOX_BATCH_SIZE",
		"OUTBOX_MAX_ATTEMPTS", "OUTBOX_WEBHOOK_URL", "WEBHOOK_TIMEOUT", "PERSISTENCE_RETRY_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	content := "AUTH_DISABLED=true\nPG_DSN=postgres://localhost/lending\nOUTBOX_DISPATCH_INTERVAL=2s\nOUTBOX_BATCH_SIZE=nope\nLOG_FORMAT=json\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	// godotenv does not override variables that are already set, even empty ones.
	for _, key := range []string{"AUTH_DISABLED", "PG_DSN", "OUTBOX_DISPATCH_INTERVAL", "OUTBOX_BATCH_SIZE", "LOG_FORMAT"} {
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres://localhost/lending", cfg.DatabaseURL)
	assert.True(t, cfg.Auth.Disabled)
	assert.Equal(t, 2*time.Second, cfg.Outbox.DispatchInterval)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, time.Minute, cfg.Webhook.DedupeWindow)
	assert.Equal(t, 30*time.Second, cfg.RetryInterval)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	base := Config{HTTPAddr: ":8080", LogLevel: "info", LogFormat: "text", Auth: AuthConfig{JWTSecret: "s"}, Outbox: OutboxConfig{BatchSize: 10}}
	require.NoError(t, base.Validate())

	noSecret := base
	noSecret.Auth = AuthConfig{}
	assert.Error(t, noSecret.Validate())

	badLevel := base
	badLevel.LogLevel = "loud"
	assert.Error(t, badLevel.Validate())

	badFormat := base
	badFormat.LogFormat = "xml"
	assert.Error(t, badFormat.Validate())

	logger := base.NewLogger()
	assert.NotNil(t, logger)
}

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(`
devices:
  - id: dev-1
    brand: Lenovo
    model: ThinkPad T14
    storage_gb: 512
    memory_gb: 16
    tier: HIGH
requesters:
  - id: s-1
    name: Ada Lovelace
    email: ada@school.example
    tier: high
`))
	require.NoError(t, err)
	require.Len(t, seed.Devices, 1)
	assert.Equal(t, lending.TierHigh, seed.Devices[0].Tier)
	assert.Equal(t, 512, seed.Devices[0].StorageGB)
	require.Len(t, seed.Requesters, 1)
	assert.Equal(t, lending.Tier("high"), seed.Requesters[0].Tier)

	_, err = ParseSeed([]byte("devices:\n  - id: d\n    colour: red\n"))
	assert.Error(t, err)
}
