package audit

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLogger_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	logger := NewMemoryLogger()

	require.NoError(t, logger.Log(ctx, Entry{Action: "device.register", ResourceType: "device", ResourceID: "d1"}))
	require.NoError(t, logger.Log(ctx, Entry{Action: "reservation.created", ResourceType: "reservation", ResourceID: "r1", Metadata: Metadata(map[string]string{"device_id": "d1"})}))
	require.NoError(t, logger.Log(ctx, Entry{Action: "reservation.completed", ResourceType: "reservation", ResourceID: "r1"}))

	entries, err := logger.List(ctx, Filter{ResourceType: "reservation"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "reservation.completed", entries[0].Action)
	assert.True(t, strings.HasPrefix(entries[1].ID, "audit-"))
	assert.Len(t, entries[1].PayloadDigest, 64)
	assert.False(t, entries[1].CreatedAt.IsZero())

	limited, err := logger.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDigestJSON(t *testing.T) {
	assert.Empty(t, DigestJSON(nil))
	assert.Equal(t, DigestJSON([]byte(`{"a":1}`)), DigestJSON([]byte(`{"a":1}`)))
	assert.NotEqual(t, DigestJSON([]byte(`{"a":1}`)), DigestJSON([]byte(`{"a":2}`)))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:5000"
	assert.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Real-IP", "192.168.1.2")
	assert.Equal(t, "192.168.1.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "unknown, 198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	assert.Empty(t, ClientIP(nil))
}

func TestEntryFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/devices", nil)
	req.RemoteAddr = "10.0.0.9:5000"
	req.Header.Set("User-Agent", "lending-desk/1.0")

	entry := EntryFromRequest(req, Request{
		Actor:        "staff-1",
		Role:         "admin",
		Action:       "device.registered",
		ResourceType: "device",
		ResourceID:   "dev-1",
		Metadata:     map[string]string{"tier": "HIGH"},
	})
	assert.Equal(t, "10.0.0.9", entry.IP)
	assert.Equal(t, "lending-desk/1.0", entry.UserAgent)
	assert.JSONEq(t, `{"tier":"HIGH"}`, string(entry.Metadata))

	bare := EntryFromRequest(nil, Request{Action: "x"})
	assert.Empty(t, bare.IP)
	assert.Nil(t, bare.Metadata)
}
