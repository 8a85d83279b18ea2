package lending

import (
	"errors"
	"strings"
	"time"
)

// ReservationStatus is the lifecycle status of a reservation.
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "active"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
)

// IsValid checks if the status is known.
func (s ReservationStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s ReservationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseReservationStatus normalizes a status string.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	status := ReservationStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Reservation binds one requester to one device.
// Invariants:
// 1) Status moves only from active to completed or cancelled.
// 2) EndedAt is zero while active and set once on the terminal transition.
type Reservation struct {
	ID          string            `json:"id"`
	RequesterID string            `json:"requester_id"`
	DeviceID    string            `json:"device_id"`
	Tier        Tier              `json:"tier"`
	Status      ReservationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	EndedAt     time.Time         `json:"ended_at,omitempty"`
}

// Validate checks reservation invariants.
func (r Reservation) Validate() error {
	if r.ID == "" || r.RequesterID == "" || r.DeviceID == "" {
		return ErrEmptyID
	}
	if !r.Tier.IsValid() {
		return ErrInvalidTier
	}
	if !r.Status.IsValid() {
		return ErrInvalidStatus
	}
	if r.CreatedAt.IsZero() {
		return errors.New("reservation: zero created_at")
	}
	return nil
}

// IsActive reports whether the reservation still holds its device.
func (r Reservation) IsActive() bool { return r.Status == StatusActive }

// ChangeStatus moves an active reservation to a terminal status and returns the previous one.
func (r *Reservation) ChangeStatus(next ReservationStatus, at time.Time) (ReservationStatus, error) {
	if r == nil {
		return "", ErrUnknownReservation
	}
	if r.Status.IsTerminal() || !next.IsTerminal() {
		return "", ErrInvalidStatusTransition
	}
	previous := r.Status
	r.Status = next
	r.EndedAt = at
	return previous, nil
}

// Assignment collects the entity changes applied together with a reservation transition.
type Assignment struct {
	Device    StateChange
	Requester ServedChange
}

// OpenReservation reserves device for requester. All preconditions are checked before any
// entity is modified so a failure leaves device and requester untouched.
func OpenReservation(id string, device *Device, requester *Requester, at time.Time) (*Reservation, Assignment, error) {
	if id == "" {
		return nil, Assignment{}, ErrEmptyID
	}
	if device == nil {
		return nil, Assignment{}, ErrUnknownDevice
	}
	if requester == nil {
		return nil, Assignment{}, ErrUnknownRequester
	}
	if !device.IsAvailable() {
		return nil, Assignment{}, ErrDeviceNotAvailable
	}
	if requester.HoldsDevice {
		return nil, Assignment{}, ErrRequesterAlreadyServed
	}
	if device.Tier != requester.Tier {
		return nil, Assignment{}, ErrTierMismatch
	}

	deviceChange, err := device.TransitionTo(StateLoaned, at)
	if err != nil {
		return nil, Assignment{}, err
	}
	servedChange, err := requester.MarkServed(at)
	if err != nil {
		// unreachable after the checks above; keep the device consistent anyway
		device.State = deviceChange.From
		return nil, Assignment{}, err
	}

	res := &Reservation{
		ID:          id,
		RequesterID: requester.ID,
		DeviceID:    device.ID,
		Tier:        device.Tier,
		Status:      StatusActive,
		CreatedAt:   at,
	}
	return res, Assignment{Device: deviceChange, Requester: servedChange}, nil
}

// CloseReservation moves res to a terminal status, frees the device and clears the requester flag.
func CloseReservation(res *Reservation, device *Device, requester *Requester, status ReservationStatus, at time.Time) (ReservationStatus, Assignment, error) {
	if res == nil {
		return "", Assignment{}, ErrUnknownReservation
	}
	if device == nil || device.ID != res.DeviceID {
		return "", Assignment{}, ErrUnknownDevice
	}
	if requester == nil || requester.ID != res.RequesterID {
		return "", Assignment{}, ErrUnknownRequester
	}
	if res.Status.IsTerminal() || !status.IsTerminal() {
		return "", Assignment{}, ErrInvalidStatusTransition
	}
	if !device.IsLoaned() {
		return "", Assignment{}, ErrInvalidTransition
	}
	if !requester.HoldsDevice {
		return "", Assignment{}, ErrRequesterNotServed
	}

	previous, err := res.ChangeStatus(status, at)
	if err != nil {
		return "", Assignment{}, err
	}
	deviceChange, err := device.TransitionTo(StateAvailable, at)
	if err != nil {
		return "", Assignment{}, err
	}
	servedChange, err := requester.MarkReturned(at)
	if err != nil {
		return "", Assignment{}, err
	}
	return previous, Assignment{Device: deviceChange, Requester: servedChange}, nil
}
