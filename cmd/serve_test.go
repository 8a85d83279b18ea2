package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laptop-lending/internal/config"
	"laptop-lending/internal/eventing"
	lendingapp "laptop-lending/internal/lending/application"
	"laptop-lending/internal/lending/infrastructure/memory"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const seedYAML = `
devices:
  - id: dev-1
    brand: Dell
    model: Latitude 5440
    storage_gb: 256
    memory_gb: 8
    tier: LOW
requesters:
  - id: s-1
    name: Grace Hopper
    tier: LOW
`

func TestApplySeed_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	store := memory.NewStore()
	coordinator, err := lendingapp.NewCoordinator(store, lendingapp.WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, applySeed(ctx, coordinator, path, quietLogger()))
	require.NoError(t, applySeed(ctx, coordinator, path, quietLogger()))

	assert.Len(t, coordinator.Devices(lendingapp.DeviceFilter{}), 1)
	assert.Len(t, coordinator.Requesters(""), 1)

	assert.Error(t, applySeed(ctx, coordinator, filepath.Join(t.TempDir(), "missing.yaml"), quietLogger()))
}

func TestBuildExport(t *testing.T) {
	store := memory.NewStore()
	coordinator, err := lendingapp.NewCoordinator(store, lendingapp.WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = coordinator.RegisterDevice(context.Background(), lendingapp.NewDevice{ID: "dev-1", Brand: "Dell", Model: "XPS", StorageGB: 512, MemoryGB: 16, Tier: "HIGH"})
	require.NoError(t, err)

	data, err := buildExport(context.Background(), "inventory-xlsx", coordinator, store)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	data, err = buildExport(context.Background(), "reservations-pdf", coordinator, store)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	_, err = buildExport(context.Background(), "nope", coordinator, store)
	assert.Error(t, err)
	assert.Equal(t, "labels.pdf", defaultExportName("labels-pdf"))
}

func TestBuildSink_WithoutWebhookAcknowledges(t *testing.T) {
	sink, err := buildSink(config.WebhookConfig{}, quietLogger())
	require.NoError(t, err)
	assert.NoError(t, sink.Deliver(context.Background(), eventing.Envelope{EventType: "reservation_created"}))

	_, err = buildSink(config.WebhookConfig{URL: "http://127.0.0.1:1/hook", Template: "{{.Broken"}, quietLogger())
	assert.Error(t, err)
}
