package lending

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenReservation(t *testing.T) {
	d := newTestDevice("d-1", TierHigh)
	r := newTestRequester("r-1", TierHigh)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	res, assignment, err := OpenReservation("res-1", d, r, at)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)
	assert.Equal(t, "d-1", res.DeviceID)
	assert.Equal(t, "r-1", res.RequesterID)
	assert.Equal(t, TierHigh, res.Tier)
	assert.Equal(t, at, res.CreatedAt)
	assert.True(t, res.EndedAt.IsZero())
	assert.NoError(t, res.Validate())

	assert.True(t, d.IsLoaned())
	assert.True(t, r.HoldsDevice)
	assert.Equal(t, StateAvailable, assignment.Device.From)
	assert.Equal(t, StateLoaned, assignment.Device.To)
	assert.True(t, assignment.Requester.New)
}

func TestOpenReservation_FailuresLeaveEntitiesUntouched(t *testing.T) {
	cases := []struct {
		name    string
		device  *Device
		req     *Requester
		wantErr error
	}{
		{
			name:    "device loaned",
			device:  func() *Device { d := newTestDevice("d-1", TierHigh); d.State = StateLoaned; return d }(),
			req:     newTestRequester("r-1", TierHigh),
			wantErr: ErrDeviceNotAvailable,
		},
		{
			name:    "requester served",
			device:  newTestDevice("d-1", TierHigh),
			req:     func() *Requester { r := newTestRequester("r-1", TierHigh); r.HoldsDevice = true; return r }(),
			wantErr: ErrRequesterAlreadyServed,
		},
		{
			name:    "tier mismatch",
			device:  newTestDevice("d-1", TierLow),
			req:     newTestRequester("r-1", TierHigh),
			wantErr: ErrTierMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deviceBefore := *tc.device
			reqBefore := *tc.req
			res, _, err := OpenReservation("res-1", tc.device, tc.req, time.Now())
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			assert.Equal(t, deviceBefore, *tc.device)
			assert.Equal(t, reqBefore, *tc.req)
		})
	}
}

func TestCloseReservation_RoundTrip(t *testing.T) {
	d := newTestDevice("d-1", TierLow)
	r := newTestRequester("r-1", TierLow)
	res, _, err := OpenReservation("res-1", d, r, time.Now())
	require.NoError(t, err)

	ended := time.Now().Add(time.Hour)
	previous, assignment, err := CloseReservation(res, d, r, StatusCompleted, ended)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, previous)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, ended, res.EndedAt)
	assert.True(t, d.IsAvailable())
	assert.False(t, r.HoldsDevice)
	assert.True(t, assignment.Device.Available)
	assert.False(t, assignment.Requester.New)

	_, _, err = CloseReservation(res, d, r, StatusCancelled, ended)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, d.IsAvailable())
}

func TestCloseReservation_RejectsActiveTarget(t *testing.T) {
	d := newTestDevice("d-1", TierLow)
	r := newTestRequester("r-1", TierLow)
	res, _, err := OpenReservation("res-1", d, r, time.Now())
	require.NoError(t, err)

	_, _, err = CloseReservation(res, d, r, StatusActive, time.Now())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	_, _, err = CloseReservation(res, d, r, ReservationStatus("lost"), time.Now())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.True(t, res.IsActive())
	assert.True(t, d.IsLoaned())
	assert.True(t, r.HoldsDevice)

	_, _, err = CloseReservation(res, newTestDevice("d-2", TierLow), r, StatusCompleted, time.Now())
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestReservationStatus(t *testing.T) {
	assert.False(t, StatusActive.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	status, err := ParseReservationStatus("Cancelled")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
	_, err = ParseReservationStatus("returned")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&PersistenceError{Op: "update device d-1", Err: cause})

	assert.True(t, errors.Is(err, ErrPersistenceFailure))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "update device d-1")

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "update device d-1", pe.Op)
}
