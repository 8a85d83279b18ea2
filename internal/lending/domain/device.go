package lending

import (
	"errors"
	"strings"
	"time"
)

// DeviceState is the availability of a device.
type DeviceState string

const (
	StateAvailable DeviceState = "available"
	StateLoaned    DeviceState = "loaned"
)

// deviceTransitions is the only source of legal state changes.
var deviceTransitions = map[DeviceState]DeviceState{
	StateAvailable: StateLoaned,
	StateLoaned:    StateAvailable,
}

// IsValid checks if the state is known.
func (s DeviceState) IsValid() bool {
	_, ok := deviceTransitions[s]
	return ok
}

// ParseDeviceState normalizes a state string.
func ParseDeviceState(value string) (DeviceState, error) {
	state := DeviceState(strings.ToLower(strings.TrimSpace(value)))
	if !state.IsValid() {
		return "", ErrInvalidState
	}
	return state, nil
}

// StateChange describes an applied device transition.
type StateChange struct {
	DeviceID  string
	From      DeviceState
	To        DeviceState
	Available bool
}

// Device is a loanable unit.
type Device struct {
	ID        string      `json:"id"`
	Brand     string      `json:"brand"`
	Model     string      `json:"model"`
	StorageGB int         `json:"storage_gb"`
	MemoryGB  int         `json:"memory_gb"`
	Tier      Tier        `json:"tier"`
	State     DeviceState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(d.Brand) == "" {
		return errors.New("device: empty brand")
	}
	if strings.TrimSpace(d.Model) == "" {
		return errors.New("device: empty model")
	}
	if d.StorageGB < 0 || d.MemoryGB < 0 {
		return errors.New("device: negative capacity")
	}
	if !d.Tier.IsValid() {
		return ErrInvalidTier
	}
	if !d.State.IsValid() {
		return ErrInvalidState
	}
	return nil
}

// IsAvailable reports whether the device can be reserved.
func (d Device) IsAvailable() bool { return d.State == StateAvailable }

// IsLoaned reports whether the device is bound to an active reservation.
func (d Device) IsLoaned() bool { return d.State == StateLoaned }

// TransitionTo moves the device to next. Repeating the current state is rejected.
func (d *Device) TransitionTo(next DeviceState, at time.Time) (StateChange, error) {
	if d == nil {
		return StateChange{}, ErrUnknownDevice
	}
	allowed, ok := deviceTransitions[d.State]
	if !ok || allowed != next {
		return StateChange{}, ErrInvalidTransition
	}
	change := StateChange{DeviceID: d.ID, From: d.State, To: next, Available: next == StateAvailable}
	d.State = next
	if !at.IsZero() {
		d.UpdatedAt = at
	}
	return change, nil
}
