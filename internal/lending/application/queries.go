package application

import (
	"sort"

	lending "laptop-lending/internal/lending/domain"
)

// DeviceFilter narrows Devices. Zero fields match everything.
type DeviceFilter struct {
	Tier  lending.Tier
	State lending.DeviceState
}

func (f DeviceFilter) match(device *lending.Device) bool {
	if f.Tier != "" && device.Tier != f.Tier {
		return false
	}
	if f.State != "" && device.State != f.State {
		return false
	}
	return true
}

// TierStats aggregates one tier.
type TierStats struct {
	Available  int `json:"available"`
	Loaned     int `json:"loaned"`
	Queued     int `json:"queued"`
	Requesters int `json:"requesters"`
	Served     int `json:"served"`
}

// Stats is a consistent snapshot of allocation counters.
type Stats struct {
	Tiers              map[lending.Tier]TierStats `json:"tiers"`
	Devices            int                        `json:"devices"`
	Requesters         int                        `json:"requesters"`
	Served             int                        `json:"served"`
	Queued             int                        `json:"queued"`
	Idle               int                        `json:"idle"`
	ActiveReservations int                        `json:"active_reservations"`
	PendingWrites      int                        `json:"pending_writes"`
}

// Device returns a copy of the device.
func (c *Coordinator) Device(id string) (lending.Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	device, ok := c.devices[id]
	if !ok {
		return lending.Device{}, lending.ErrUnknownDevice
	}
	return *device, nil
}

// Devices lists devices in registration order.
func (c *Coordinator) Devices(filter DeviceFilter) []lending.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]lending.Device, 0, len(c.deviceOrder))
	for _, id := range c.deviceOrder {
		device := c.devices[id]
		if filter.match(device) {
			out = append(out, *device)
		}
	}
	return out
}

// Requester returns a copy of the requester.
func (c *Coordinator) Requester(id string) (lending.Requester, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	requester, ok := c.requesters[id]
	if !ok {
		return lending.Requester{}, lending.ErrUnknownRequester
	}
	return *requester, nil
}

// Requesters lists requesters ordered by id, optionally restricted to one tier.
func (c *Coordinator) Requesters(tier lending.Tier) []lending.Requester {
	c.mu.RLock()
	out := make([]lending.Requester, 0, len(c.requesters))
	for _, requester := range c.requesters {
		if tier != "" && requester.Tier != tier {
			continue
		}
		out = append(out, *requester)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reservation returns a copy of the reservation.
func (c *Coordinator) Reservation(id string) (lending.Reservation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.reservations[id]
	if !ok {
		return lending.Reservation{}, lending.ErrUnknownReservation
	}
	return *res, nil
}

// Reservations lists reservations known to this process in creation order.
// An empty status lists every status.
func (c *Coordinator) Reservations(status lending.ReservationStatus) []lending.Reservation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]lending.Reservation, 0, len(c.reservationOrder))
	for _, id := range c.reservationOrder {
		res := c.reservations[id]
		if status != "" && res.Status != status {
			continue
		}
		out = append(out, *res)
	}
	return out
}

// ActiveReservations lists active reservations in creation order.
func (c *Coordinator) ActiveReservations() []lending.Reservation {
	return c.Reservations(lending.StatusActive)
}

// ActiveReservationFor returns the active reservation held by the requester.
func (c *Coordinator) ActiveReservationFor(requesterID string) (lending.Reservation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.activeByRequester[requesterID]
	if !ok {
		return lending.Reservation{}, false
	}
	return *c.reservations[id], true
}

// Queue returns the waiting requesters of tier in FIFO order.
func (c *Coordinator) Queue(tier lending.Tier) ([]lending.QueueEntry, error) {
	if !tier.IsValid() {
		return nil, lending.ErrInvalidTier
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queues[tier].Entries(), nil
}

// QueueSize returns the number of waiting requesters of tier.
func (c *Coordinator) QueueSize(tier lending.Tier) int {
	if !tier.IsValid() {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queues[tier].Size()
}

// Stats counts devices, requesters and queues under one read lock.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	stats := Stats{
		Tiers:              make(map[lending.Tier]TierStats, len(c.queues)),
		Devices:            len(c.devices),
		Requesters:         len(c.requesters),
		ActiveReservations: len(c.activeByDevice),
	}
	for _, tier := range lending.Tiers() {
		stats.Tiers[tier] = TierStats{Queued: c.queues[tier].Size()}
	}
	for _, device := range c.devices {
		ts := stats.Tiers[device.Tier]
		if device.IsAvailable() {
			ts.Available++
		} else {
			ts.Loaned++
		}
		stats.Tiers[device.Tier] = ts
	}
	for _, requester := range c.requesters {
		ts := stats.Tiers[requester.Tier]
		ts.Requesters++
		switch {
		case requester.HoldsDevice:
			ts.Served++
			stats.Served++
		case c.queues[requester.Tier].Contains(requester.ID):
			stats.Queued++
		default:
			stats.Idle++
		}
		stats.Tiers[requester.Tier] = ts
	}
	c.mu.RUnlock()
	stats.PendingWrites = c.PendingWrites()
	return stats
}
