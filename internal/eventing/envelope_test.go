package eventing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEnvelope_Defaults(t *testing.T) {
	env, err := BuildEnvelope(" device_state_changed ", map[string]string{"device_id": "d1"}, Meta{SubjectID: "d1", Sequence: 9})
	require.NoError(t, err)
	assert.Equal(t, "device_state_changed", env.EventType)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, env.EventID, env.CorrelationID)
	assert.Equal(t, 1, env.SchemaVersion)
	assert.Equal(t, uint64(9), env.Sequence)
	assert.Equal(t, time.UTC, env.OccurredAt.Location())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "d1", payload["device_id"])
}

func TestBuildEnvelope_Errors(t *testing.T) {
	_, err := BuildEnvelope("x", nil, Meta{})
	assert.Error(t, err)
	_, err = BuildEnvelope("  ", struct{}{}, Meta{})
	assert.Error(t, err)
	_, err = BuildEnvelope("x", make(chan int), Meta{})
	assert.Error(t, err)
}

func TestEnvelope_Decode(t *testing.T) {
	env, err := BuildEnvelope("queue_size_changed", map[string]int{"new_size": 2}, Meta{CorrelationID: "req-9"})
	require.NoError(t, err)
	assert.Equal(t, "req-9", env.CorrelationID)

	var out struct {
		NewSize int `json:"new_size"`
	}
	require.NoError(t, env.Decode(&out))
	assert.Equal(t, 2, out.NewSize)

	assert.Error(t, Envelope{EventType: "x"}.Decode(&out))
	assert.Error(t, Envelope{EventType: "x", Payload: json.RawMessage(`{`)}.Decode(&out))
}
