package lending

import "time"

// Requester is a student waiting for, or holding, a device.
type Requester struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Tier        Tier      `json:"tier"`
	HoldsDevice bool      `json:"holds_device"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ServedChange describes a flip of the holds-device flag.
type ServedChange struct {
	RequesterID string
	Old         bool
	New         bool
}

// Validate checks requester invariants including contact fields.
func (r Requester) Validate() error {
	if r.ID == "" {
		return ErrEmptyID
	}
	if !r.Tier.IsValid() {
		return ErrInvalidTier
	}
	return ValidateContact(r.Name, r.Email, r.Phone)
}

// MarkServed sets the holds-device flag.
func (r *Requester) MarkServed(at time.Time) (ServedChange, error) {
	if r == nil {
		return ServedChange{}, ErrUnknownRequester
	}
	if r.HoldsDevice {
		return ServedChange{}, ErrRequesterAlreadyServed
	}
	r.HoldsDevice = true
	if !at.IsZero() {
		r.UpdatedAt = at
	}
	return ServedChange{RequesterID: r.ID, Old: false, New: true}, nil
}

// MarkReturned clears the holds-device flag.
func (r *Requester) MarkReturned(at time.Time) (ServedChange, error) {
	if r == nil {
		return ServedChange{}, ErrUnknownRequester
	}
	if !r.HoldsDevice {
		return ServedChange{}, ErrRequesterNotServed
	}
	r.HoldsDevice = false
	if !at.IsZero() {
		r.UpdatedAt = at
	}
	return ServedChange{RequesterID: r.ID, Old: true, New: false}, nil
}
