package application

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	lending "laptop-lending/internal/lending/domain"
)

// NewDevice is the input for RegisterDevice. ID is generated when empty.
type NewDevice struct {
	ID        string       `json:"id,omitempty" yaml:"id"`
	Brand     string       `json:"brand" yaml:"brand"`
	Model     string       `json:"model" yaml:"model"`
	StorageGB int          `json:"storage_gb" yaml:"storage_gb"`
	MemoryGB  int          `json:"memory_gb" yaml:"memory_gb"`
	Tier      lending.Tier `json:"tier" yaml:"tier"`
}

// NewRequester is the input for RegisterRequester.
type NewRequester struct {
	ID    string       `json:"id" yaml:"id"`
	Name  string       `json:"name" yaml:"name"`
	Email string       `json:"email" yaml:"email"`
	Phone string       `json:"phone" yaml:"phone"`
	Tier  lending.Tier `json:"tier" yaml:"tier"`
}

// RegisterDevice adds an available device at the end of the registration order and
// serves the tier queue with it. The returned device reflects the state after the drain.
func (c *Coordinator) RegisterDevice(ctx context.Context, input NewDevice) (lending.Device, error) {
	tier, err := lending.ParseTier(string(input.Tier))
	if err != nil {
		return lending.Device{}, err
	}

	c.mu.Lock()
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = c.newID()
	}
	if _, exists := c.devices[id]; exists {
		c.mu.Unlock()
		return lending.Device{}, lending.ErrDuplicateDevice
	}
	now := c.now()
	device := &lending.Device{
		ID:        id,
		Brand:     strings.TrimSpace(input.Brand),
		Model:     strings.TrimSpace(input.Model),
		StorageGB: input.StorageGB,
		MemoryGB:  input.MemoryGB,
		Tier:      tier,
		State:     lending.StateAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := device.Validate(); err != nil {
		c.mu.Unlock()
		return lending.Device{}, err
	}
	c.devices[id] = device
	c.deviceOrder = append(c.deviceOrder, id)

	b := &batch{op: "register device " + id}
	assigned := c.drainLocked(b, tier)
	if len(assigned) == 0 {
		// drainLocked already recorded the device when it was loaned out
		b.devices = append([]lending.Device{*device}, b.devices...)
	}
	snapshot := *device
	c.seal(b)
	c.mu.Unlock()

	c.metrics.Drained(tier, len(assigned))
	c.logger.WithFields(logrus.Fields{"device_id": id, "tier": tier, "assigned": len(assigned)}).Info("device registered")
	return snapshot, c.finish(ctx, b)
}

// RegisterRequester adds a requester. The id is supplied by the caller and must be unique.
func (c *Coordinator) RegisterRequester(ctx context.Context, input NewRequester) (lending.Requester, error) {
	tier, err := lending.ParseTier(string(input.Tier))
	if err != nil {
		return lending.Requester{}, err
	}
	now := c.now()
	requester := &lending.Requester{
		ID:        strings.TrimSpace(input.ID),
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		Tier:      tier,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := requester.Validate(); err != nil {
		return lending.Requester{}, err
	}

	c.mu.Lock()
	if _, exists := c.requesters[requester.ID]; exists {
		c.mu.Unlock()
		return lending.Requester{}, lending.ErrDuplicateRequester
	}
	c.requesters[requester.ID] = requester
	b := &batch{op: "register requester " + requester.ID, requesters: []lending.Requester{*requester}}
	c.seal(b)
	snapshot := *requester
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"requester_id": snapshot.ID, "tier": tier}).Info("requester registered")
	return snapshot, c.finish(ctx, b)
}

// RemoveDevice deletes an available device. Loaned devices return ErrDeviceInUse.
func (c *Coordinator) RemoveDevice(ctx context.Context, id string) error {
	c.mu.Lock()
	device, ok := c.devices[id]
	if !ok {
		c.mu.Unlock()
		return lending.ErrUnknownDevice
	}
	if _, bound := c.activeByDevice[id]; bound || device.IsLoaned() {
		c.mu.Unlock()
		return lending.ErrDeviceInUse
	}
	delete(c.devices, id)
	for i, existing := range c.deviceOrder {
		if existing == id {
			c.deviceOrder = append(c.deviceOrder[:i:i], c.deviceOrder[i+1:]...)
			break
		}
	}
	b := &batch{op: "remove device " + id, deletedDevices: []string{id}}
	c.seal(b)
	c.mu.Unlock()

	c.logger.WithField("device_id", id).Info("device removed")
	return c.finish(ctx, b)
}

// WithdrawRequest removes a waiting requester from its queue. It reports false when the
// requester was not queued.
func (c *Coordinator) WithdrawRequest(ctx context.Context, requesterID string) (bool, error) {
	c.mu.Lock()
	requester, ok := c.requesters[requesterID]
	if !ok {
		c.mu.Unlock()
		return false, lending.ErrUnknownRequester
	}
	change, removed := c.queues[requester.Tier].RemoveByID(requesterID)
	if !removed {
		c.mu.Unlock()
		return false, nil
	}
	b := &batch{op: "withdraw request " + requesterID}
	b.changes = append(b.changes, QueueSizeChanged{
		changeMeta:  c.meta(),
		Tier:        change.Tier,
		Delta:       change.Delta,
		NewSize:     change.Size,
		RequesterID: requesterID,
	})
	c.seal(b)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"requester_id": requesterID, "tier": change.Tier}).Info("request withdrawn")
	return true, c.finish(ctx, b)
}
