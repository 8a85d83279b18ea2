package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	lending "laptop-lending/internal/lending/domain"
)

// Request outcomes reported to the metrics recorder.
const (
	OutcomeReserved = "reserved"
	OutcomeEnqueued = "enqueued"
	OutcomeRejected = "rejected"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Recorder receives allocation metrics.
type Recorder interface {
	RequestOutcome(tier lending.Tier, outcome string)
	Released(tier lending.Tier, status lending.ReservationStatus)
	Drained(tier lending.Tier, assigned int)
	PersistenceFailed(entity string)
}

type noopRecorder struct{}

func (noopRecorder) RequestOutcome(lending.Tier, string) {}
func (noopRecorder) Released(lending.Tier, lending.ReservationStatus) {}
func (noopRecorder) Drained(lending.Tier, int) {}
func (noopRecorder) PersistenceFailed(string) {}

// Enqueued is the outcome of a request that could not be served immediately.
type Enqueued struct {
	Tier     lending.Tier `json:"tier"`
	Position int          `json:"position"`
	Size     int          `json:"size"`
}

// Outcome holds exactly one of Reservation or Enqueued.
type Outcome struct {
	Reservation *lending.Reservation `json:"reservation,omitempty"`
	Enqueued    *Enqueued            `json:"enqueued,omitempty"`
}

// IsEnqueued reports whether the requester is waiting.
func (o Outcome) IsEnqueued() bool { return o.Enqueued != nil }

// ReleaseResult is the closed reservation plus the reservations created by the queue drain.
type ReleaseResult struct {
	Released lending.Reservation   `json:"released"`
	Assigned []lending.Reservation `json:"assigned"`
}

// Coordinator is the only component allowed to mutate devices, requesters, reservations
// and queues. Every decide-and-commit step runs under mu; store writes and notifications
// happen after mu is released.
type Coordinator struct {
	store    lending.Store
	notifier *Notifier
	logger   logrus.FieldLogger
	metrics  Recorder
	clock    Clock
	newID    func() string

	mu                sync.RWMutex
	devices           map[string]*lending.Device
	deviceOrder       []string
	requesters        map[string]*lending.Requester
	reservations      map[string]*lending.Reservation
	reservationOrder  []string
	activeByDevice    map[string]string
	activeByRequester map[string]string
	queues            map[lending.Tier]*lending.TierQueue
	changeSeq         uint64
	turn              uint64

	seq     *sequencer
	dirtyMu sync.Mutex
	dirty   map[entityKey]struct{}
}

// Option customizes the coordinator.
type Option func(*Coordinator)

// WithNotifier assigns the change notifier.
func WithNotifier(notifier *Notifier) Option {
	return func(c *Coordinator) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics assigns a metrics recorder.
func WithMetrics(recorder Recorder) Option {
	return func(c *Coordinator) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithIDGenerator overrides reservation and device id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewCoordinator constructs a coordinator with empty state. Call Load to read the store.
func NewCoordinator(store lending.Store, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("coordinator: nil store")
	}
	c := &Coordinator{
		store:   store,
		logger:  logrus.StandardLogger(),
		metrics: noopRecorder{},
		clock:   systemClock{},
		newID:   uuid.NewString,
		seq:     newSequencer(),
		dirty:   make(map[entityKey]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.notifier == nil {
		c.notifier = NewNotifier(WithNotifierLogger(c.logger))
	}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// Notifier returns the notifier changes are published on.
func (c *Coordinator) Notifier() *Notifier { return c.notifier }

func (c *Coordinator) now() time.Time { return c.clock.Now().UTC() }

// reset clears in-memory state. Caller holds c.mu or has exclusive access.
func (c *Coordinator) reset() error {
	c.devices = make(map[string]*lending.Device)
	c.deviceOrder = nil
	c.requesters = make(map[string]*lending.Requester)
	c.reservations = make(map[string]*lending.Reservation)
	c.reservationOrder = nil
	c.activeByDevice = make(map[string]string)
	c.activeByRequester = make(map[string]string)
	c.queues = make(map[lending.Tier]*lending.TierQueue, len(lending.Tiers()))
	for _, tier := range lending.Tiers() {
		queue, err := lending.NewTierQueue(tier)
		if err != nil {
			return err
		}
		c.queues[tier] = queue
	}
	return nil
}

// Load replaces in-memory state with the store contents. Device and requester flags are
// reconciled against active reservations; corrected entities are written back.
// Queues start empty.
func (c *Coordinator) Load(ctx context.Context) error {
	devices, err := c.store.LoadAllDevices(ctx)
	if err != nil {
		return &lending.PersistenceError{Op: "load devices", Err: err}
	}
	requesters, err := c.store.LoadAllRequesters(ctx)
	if err != nil {
		return &lending.PersistenceError{Op: "load requesters", Err: err}
	}
	var active []lending.Reservation
	if loader, ok := c.store.(lending.ReservationLoader); ok {
		active, err = loader.LoadActiveReservations(ctx)
		if err != nil {
			return &lending.PersistenceError{Op: "load reservations", Err: err}
		}
	} else {
		c.logger.Warn("store cannot load reservations; loaned flags will be reset")
	}

	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].CreatedAt.Equal(devices[j].CreatedAt) {
			return devices[i].ID < devices[j].ID
		}
		return devices[i].CreatedAt.Before(devices[j].CreatedAt)
	})
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})

	c.mu.Lock()
	if err := c.reset(); err != nil {
		c.mu.Unlock()
		return err
	}
	for i := range devices {
		device := devices[i]
		if err := device.Validate(); err != nil {
			c.logger.WithField("device_id", device.ID).WithError(err).Warn("skipping invalid device")
			continue
		}
		if _, dup := c.devices[device.ID]; dup {
			continue
		}
		c.devices[device.ID] = &device
		c.deviceOrder = append(c.deviceOrder, device.ID)
	}
	for i := range requesters {
		requester := requesters[i]
		if requester.ID == "" || !requester.Tier.IsValid() {
			c.logger.WithField("requester_id", requester.ID).Warn("skipping invalid requester")
			continue
		}
		c.requesters[requester.ID] = &requester
	}
	for i := range active {
		res := active[i]
		fields := logrus.Fields{"reservation_id": res.ID, "device_id": res.DeviceID, "requester_id": res.RequesterID}
		if !res.IsActive() {
			continue
		}
		device, requester := c.devices[res.DeviceID], c.requesters[res.RequesterID]
		if device == nil || requester == nil {
			c.logger.WithFields(fields).Warn("active reservation references unknown entity")
			continue
		}
		if _, taken := c.activeByDevice[res.DeviceID]; taken {
			c.logger.WithFields(fields).Warn("device bound to more than one active reservation")
			continue
		}
		if _, taken := c.activeByRequester[res.RequesterID]; taken {
			c.logger.WithFields(fields).Warn("requester bound to more than one active reservation")
			continue
		}
		c.reservations[res.ID] = &res
		c.reservationOrder = append(c.reservationOrder, res.ID)
		c.activeByDevice[res.DeviceID] = res.ID
		c.activeByRequester[res.RequesterID] = res.ID
	}

	b := &batch{op: "load reconcile"}
	now := c.now()
	for _, id := range c.deviceOrder {
		device := c.devices[id]
		_, bound := c.activeByDevice[id]
		want := lending.StateAvailable
		if bound {
			want = lending.StateLoaned
		}
		if device.State != want {
			c.logger.WithFields(logrus.Fields{"device_id": id, "from": device.State, "to": want}).Warn("reconciled device state")
			device.State = want
			device.UpdatedAt = now
			b.devices = append(b.devices, *device)
		}
	}
	for id, requester := range c.requesters {
		_, bound := c.activeByRequester[id]
		if requester.HoldsDevice != bound {
			c.logger.WithFields(logrus.Fields{"requester_id": id, "holds_device": bound}).Warn("reconciled requester flag")
			requester.HoldsDevice = bound
			requester.UpdatedAt = now
			b.requesters = append(b.requesters, *requester)
		}
	}
	c.seal(b)
	c.logger.WithFields(logrus.Fields{
		"devices":      len(c.devices),
		"requesters":   len(c.requesters),
		"reservations": len(c.reservations),
	}).Info("lending state loaded")
	c.mu.Unlock()

	return c.finish(ctx, b)
}

// RequestDevice reserves the first available device of the requester's tier, in
// registration order, or enqueues the requester when none is free.
func (c *Coordinator) RequestDevice(ctx context.Context, requesterID string) (Outcome, error) {
	c.mu.Lock()
	b := &batch{op: "request device " + requesterID}
	outcome, tier, err := c.requestLocked(b, requesterID)
	if err != nil {
		c.mu.Unlock()
		c.metrics.RequestOutcome(tier, OutcomeRejected)
		return Outcome{}, err
	}
	c.seal(b)
	c.mu.Unlock()

	if outcome.IsEnqueued() {
		c.metrics.RequestOutcome(tier, OutcomeEnqueued)
		c.logger.WithFields(logrus.Fields{
			"requester_id": requesterID,
			"tier":         tier,
			"position":     outcome.Enqueued.Position,
		}).Info("requester enqueued")
	} else {
		c.metrics.RequestOutcome(tier, OutcomeReserved)
		c.logger.WithFields(logrus.Fields{
			"requester_id":   requesterID,
			"device_id":      outcome.Reservation.DeviceID,
			"reservation_id": outcome.Reservation.ID,
		}).Info("device reserved")
	}
	return outcome, c.finish(ctx, b)
}

func (c *Coordinator) requestLocked(b *batch, requesterID string) (Outcome, lending.Tier, error) {
	requester, ok := c.requesters[requesterID]
	if !ok {
		return Outcome{}, "", lending.ErrUnknownRequester
	}
	tier := requester.Tier
	if requester.HoldsDevice {
		return Outcome{}, tier, lending.ErrRequesterAlreadyServed
	}
	queue := c.queues[tier]
	if queue.Contains(requesterID) {
		return Outcome{}, tier, lending.ErrAlreadyQueued
	}

	if device := c.firstAvailable(tier); device != nil {
		res, err := c.assignLocked(b, device, requester)
		if err != nil {
			return Outcome{}, tier, err
		}
		return Outcome{Reservation: &res}, tier, nil
	}

	change, err := queue.Enqueue(requester, c.now())
	if err != nil {
		return Outcome{}, tier, err
	}
	b.changes = append(b.changes, QueueSizeChanged{
		changeMeta:  c.meta(),
		Tier:        change.Tier,
		Delta:       change.Delta,
		NewSize:     change.Size,
		RequesterID: requesterID,
	})
	return Outcome{Enqueued: &Enqueued{Tier: tier, Position: queue.Position(requesterID), Size: change.Size}}, tier, nil
}

// ReleaseDevice moves an active reservation to a terminal status, frees its device and
// drains the tier queue onto free devices.
func (c *Coordinator) ReleaseDevice(ctx context.Context, reservationID string, status lending.ReservationStatus) (*ReleaseResult, error) {
	c.mu.Lock()
	b := &batch{op: "release reservation " + reservationID}
	result, tier, err := c.releaseLocked(b, reservationID, status)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.seal(b)
	c.mu.Unlock()

	c.metrics.Released(tier, status)
	c.metrics.Drained(tier, len(result.Assigned))
	c.logger.WithFields(logrus.Fields{
		"reservation_id": reservationID,
		"device_id":      result.Released.DeviceID,
		"status":         status,
		"assigned":       len(result.Assigned),
	}).Info("reservation released")
	return result, c.finish(ctx, b)
}

func (c *Coordinator) releaseLocked(b *batch, reservationID string, status lending.ReservationStatus) (*ReleaseResult, lending.Tier, error) {
	res, ok := c.reservations[reservationID]
	if !ok {
		return nil, "", lending.ErrUnknownReservation
	}
	if !res.IsActive() || !status.IsTerminal() {
		return nil, res.Tier, lending.ErrInvalidStatusTransition
	}
	device := c.devices[res.DeviceID]
	requester := c.requesters[res.RequesterID]
	at := c.now()
	previous, assignment, err := lending.CloseReservation(res, device, requester, status, at)
	if err != nil {
		return nil, res.Tier, err
	}
	delete(c.activeByDevice, res.DeviceID)
	delete(c.activeByRequester, res.RequesterID)

	b.reservations = append(b.reservations, *res)
	b.devices = append(b.devices, *device)
	b.requesters = append(b.requesters, *requester)
	b.changes = append(b.changes,
		ReservationStatusChanged{changeMeta: c.meta(), Reservation: *res, OldStatus: previous, NewStatus: status},
		DeviceStateChanged{
			changeMeta: c.meta(),
			Device:     *device,
			OldState:   assignment.Device.From,
			NewState:   assignment.Device.To,
			Available:  assignment.Device.Available,
		},
		RequesterServedChanged{
			changeMeta: c.meta(),
			Requester:  *requester,
			OldFlag:    assignment.Requester.Old,
			NewFlag:    assignment.Requester.New,
		},
	)

	result := &ReleaseResult{Released: *res}
	result.Assigned = c.drainLocked(b, res.Tier)
	return result, res.Tier, nil
}

// drainLocked serves the oldest queued requesters of tier while devices of tier are free.
func (c *Coordinator) drainLocked(b *batch, tier lending.Tier) []lending.Reservation {
	queue := c.queues[tier]
	var assigned []lending.Reservation
	for {
		device := c.firstAvailable(tier)
		if device == nil {
			return assigned
		}
		entry, change, ok := queue.DequeueFront()
		if !ok {
			return assigned
		}
		b.changes = append(b.changes, QueueSizeChanged{
			changeMeta:  c.meta(),
			Tier:        change.Tier,
			Delta:       change.Delta,
			NewSize:     change.Size,
			RequesterID: entry.RequesterID,
		})
		requester := c.requesters[entry.RequesterID]
		if requester == nil || requester.HoldsDevice {
			c.logger.WithField("requester_id", entry.RequesterID).Warn("dropping stale queue entry")
			continue
		}
		res, err := c.assignLocked(b, device, requester)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"requester_id": entry.RequesterID,
				"device_id":    device.ID,
			}).WithError(err).Error("drain assignment failed")
			continue
		}
		assigned = append(assigned, res)
	}
}

// assignLocked opens a reservation and records its writes and changes in b.
func (c *Coordinator) assignLocked(b *batch, device *lending.Device, requester *lending.Requester) (lending.Reservation, error) {
	res, assignment, err := lending.OpenReservation(c.newID(), device, requester, c.now())
	if err != nil {
		return lending.Reservation{}, err
	}
	c.reservations[res.ID] = res
	c.reservationOrder = append(c.reservationOrder, res.ID)
	c.activeByDevice[device.ID] = res.ID
	c.activeByRequester[requester.ID] = res.ID

	b.devices = append(b.devices, *device)
	b.requesters = append(b.requesters, *requester)
	b.reservations = append(b.reservations, *res)
	b.changes = append(b.changes,
		DeviceStateChanged{
			changeMeta: c.meta(),
			Device:     *device,
			OldState:   assignment.Device.From,
			NewState:   assignment.Device.To,
			Available:  assignment.Device.Available,
		},
		RequesterServedChanged{
			changeMeta: c.meta(),
			Requester:  *requester,
			OldFlag:    assignment.Requester.Old,
			NewFlag:    assignment.Requester.New,
		},
		ReservationCreated{changeMeta: c.meta(), Reservation: *res},
	)
	return *res, nil
}

// firstAvailable returns the earliest registered available device of tier.
func (c *Coordinator) firstAvailable(tier lending.Tier) *lending.Device {
	for _, id := range c.deviceOrder {
		device := c.devices[id]
		if device.Tier == tier && device.IsAvailable() {
			return device
		}
	}
	return nil
}
