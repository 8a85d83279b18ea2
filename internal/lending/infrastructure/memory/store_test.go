package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lending "laptop-lending/internal/lending/domain"
)

func TestStore_DeviceOrderAndUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpdateDevice(ctx, lending.Device{ID: "b", Tier: lending.TierHigh, CreatedAt: base}))
	require.NoError(t, store.UpdateDevice(ctx, lending.Device{ID: "a", Tier: lending.TierHigh, CreatedAt: base}))
	require.NoError(t, store.UpdateDevice(ctx, lending.Device{ID: "c", Tier: lending.TierLow, CreatedAt: base.Add(-time.Hour)}))
	require.NoError(t, store.UpdateDevice(ctx, lending.Device{ID: "a", Tier: lending.TierHigh, State: lending.StateLoaned, CreatedAt: base}))

	devices, err := store.LoadAllDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{devices[0].ID, devices[1].ID, devices[2].ID})
	assert.Equal(t, lending.StateLoaned, devices[1].State)

	require.NoError(t, store.DeleteDevice(ctx, "a"))
	devices, err = store.LoadAllDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	assert.ErrorIs(t, store.UpdateDevice(ctx, lending.Device{}), lending.ErrEmptyID)
}

func TestStore_Reservations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	require.NoError(t, store.SaveReservation(ctx, lending.Reservation{ID: "r1", Status: lending.StatusActive, CreatedAt: now}))
	require.NoError(t, store.SaveReservation(ctx, lending.Reservation{ID: "r2", Status: lending.StatusCompleted, CreatedAt: now.Add(time.Second)}))

	active, err := store.LoadActiveReservations(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "r1", active[0].ID)

	all, err := store.ListReservations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.UpdateRequester(ctx, lending.Requester{ID: "s2"}))
	require.NoError(t, store.UpdateRequester(ctx, lending.Requester{ID: "s1"}))
	requesters, err := store.LoadAllRequesters(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", requesters[0].ID)
}
