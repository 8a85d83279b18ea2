package memory

import (
	"context"
	"sort"
	"sync"

	lending "laptop-lending/internal/lending/domain"
)

// Store is an in-memory lending store for local runs and tests.
type Store struct {
	mu           sync.RWMutex
	devices      map[string]lending.Device
	requesters   map[string]lending.Requester
	reservations map[string]lending.Reservation
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		devices:      make(map[string]lending.Device),
		requesters:   make(map[string]lending.Requester),
		reservations: make(map[string]lending.Reservation),
	}
}

// LoadAllDevices returns devices ordered by creation time, then id.
func (s *Store) LoadAllDevices(ctx context.Context) ([]lending.Device, error) {
	_ = ctx
	s.mu.RLock()
	out := make([]lending.Device, 0, len(s.devices))
	for _, device := range s.devices {
		out = append(out, device)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// LoadAllRequesters returns requesters ordered by id.
func (s *Store) LoadAllRequesters(ctx context.Context) ([]lending.Requester, error) {
	_ = ctx
	s.mu.RLock()
	out := make([]lending.Requester, 0, len(s.requesters))
	for _, requester := range s.requesters {
		out = append(out, requester)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadActiveReservations returns active reservations ordered by creation time.
func (s *Store) LoadActiveReservations(ctx context.Context) ([]lending.Reservation, error) {
	return s.ListReservations(ctx, lending.StatusActive)
}

// ListReservations returns reservations ordered by creation time.
func (s *Store) ListReservations(ctx context.Context, status lending.ReservationStatus) ([]lending.Reservation, error) {
	_ = ctx
	s.mu.RLock()
	out := make([]lending.Reservation, 0, len(s.reservations))
	for _, res := range s.reservations {
		if status != "" && res.Status != status {
			continue
		}
		out = append(out, res)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveReservation upserts a reservation.
func (s *Store) SaveReservation(ctx context.Context, reservation lending.Reservation) error {
	_ = ctx
	if reservation.ID == "" {
		return lending.ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[reservation.ID] = reservation
	return nil
}

// UpdateDevice upserts a device.
func (s *Store) UpdateDevice(ctx context.Context, device lending.Device) error {
	_ = ctx
	if device.ID == "" {
		return lending.ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.ID] = device
	return nil
}

// UpdateRequester upserts a requester.
func (s *Store) UpdateRequester(ctx context.Context, requester lending.Requester) error {
	_ = ctx
	if requester.ID == "" {
		return lending.ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requesters[requester.ID] = requester
	return nil
}

// DeleteDevice removes a device. Missing devices are ignored.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	return nil
}
