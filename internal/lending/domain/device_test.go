package lending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(id string, tier Tier) *Device {
	return &Device{ID: id, Brand: "Lenovo", Model: "T14", StorageGB: 512, MemoryGB: 16, Tier: tier, State: StateAvailable}
}

func TestDevice_TransitionTo(t *testing.T) {
	d := newTestDevice("d-1", TierHigh)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	change, err := d.TransitionTo(StateLoaned, at)
	require.NoError(t, err)
	assert.Equal(t, StateChange{DeviceID: "d-1", From: StateAvailable, To: StateLoaned, Available: false}, change)
	assert.True(t, d.IsLoaned())
	assert.Equal(t, at, d.UpdatedAt)

	change, err = d.TransitionTo(StateAvailable, at)
	require.NoError(t, err)
	assert.True(t, change.Available)
	assert.True(t, d.IsAvailable())
}

func TestDevice_TransitionTo_SameStateRejected(t *testing.T) {
	d := newTestDevice("d-1", TierLow)
	_, err := d.TransitionTo(StateAvailable, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateAvailable, d.State)

	d.State = StateLoaned
	_, err = d.TransitionTo(StateLoaned, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateLoaned, d.State)
}

func TestDevice_TransitionTo_UnknownState(t *testing.T) {
	d := newTestDevice("d-1", TierLow)
	_, err := d.TransitionTo(DeviceState("broken"), time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var nilDevice *Device
	_, err = nilDevice.TransitionTo(StateLoaned, time.Now())
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestDevice_Validate(t *testing.T) {
	assert.NoError(t, newTestDevice("d-1", TierHigh).Validate())

	d := newTestDevice("", TierHigh)
	assert.ErrorIs(t, d.Validate(), ErrEmptyID)

	d = newTestDevice("d-1", Tier("MID"))
	assert.ErrorIs(t, d.Validate(), ErrInvalidTier)

	d = newTestDevice("d-1", TierHigh)
	d.State = "lost"
	assert.ErrorIs(t, d.Validate(), ErrInvalidState)

	d = newTestDevice("d-1", TierHigh)
	d.Brand = " "
	assert.Error(t, d.Validate())
}

func TestParseTierAndState(t *testing.T) {
	tier, err := ParseTier(" high ")
	require.NoError(t, err)
	assert.Equal(t, TierHigh, tier)

	_, err = ParseTier("medium")
	assert.ErrorIs(t, err, ErrInvalidTier)

	state, err := ParseDeviceState("LOANED")
	require.NoError(t, err)
	assert.Equal(t, StateLoaned, state)

	_, err = ParseDeviceState("")
	assert.ErrorIs(t, err, ErrInvalidState)
}
