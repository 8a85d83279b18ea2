package lending

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a device state change is not in the transition table.
	ErrInvalidTransition = errors.New("lending: invalid device state transition")
	// ErrDeviceNotAvailable is returned when reserving a device that is already loaned.
	ErrDeviceNotAvailable = errors.New("lending: device not available")
	// ErrRequesterAlreadyServed is returned when the requester already holds a device.
	ErrRequesterAlreadyServed = errors.New("lending: requester already holds a device")
	// ErrAlreadyQueued is returned when the requester is already waiting in a queue.
	ErrAlreadyQueued = errors.New("lending: requester already queued")
	// ErrUnknownReservation is returned when a reservation id is not found.
	ErrUnknownReservation = errors.New("lending: unknown reservation")
	// ErrInvalidStatusTransition is returned when a reservation status change is illegal.
	ErrInvalidStatusTransition = errors.New("lending: invalid reservation status transition")
	// ErrPersistenceFailure marks a store write that failed after the in-memory commit.
	ErrPersistenceFailure = errors.New("lending: persistence failure")

	// ErrUnknownDevice is returned when a device id is not found.
	ErrUnknownDevice = errors.New("lending: unknown device")
	// ErrUnknownRequester is returned when a requester id is not found.
	ErrUnknownRequester = errors.New("lending: unknown requester")
	// ErrTierMismatch is returned when a device and a requester belong to different tiers.
	ErrTierMismatch = errors.New("lending: tier mismatch")
	// ErrInvalidTier is returned for tiers other than HIGH and LOW.
	ErrInvalidTier = errors.New("lending: invalid tier")
	// ErrInvalidState is returned for unknown device states.
	ErrInvalidState = errors.New("lending: invalid device state")
	// ErrInvalidStatus is returned for unknown reservation statuses.
	ErrInvalidStatus = errors.New("lending: invalid reservation status")
	// ErrDuplicateRequester is returned when registering an existing requester id.
	ErrDuplicateRequester = errors.New("lending: requester already registered")
	// ErrDuplicateDevice is returned when registering an existing device id.
	ErrDuplicateDevice = errors.New("lending: device already registered")
	// ErrDeviceInUse is returned when removing a loaned device.
	ErrDeviceInUse = errors.New("lending: device in use")
	// ErrRequesterNotServed is returned when clearing the flag of a requester without a device.
	ErrRequesterNotServed = errors.New("lending: requester holds no device")
	// ErrEmptyID is returned when an entity id is empty.
	ErrEmptyID = errors.New("lending: empty id")
)

// PersistenceError reports a store operation that failed after the state was committed in memory.
// It matches ErrPersistenceFailure with errors.Is and unwraps to the store error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ErrPersistenceFailure.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", ErrPersistenceFailure, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrPersistenceFailure, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPersistenceFailure.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailure
}
