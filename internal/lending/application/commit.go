package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	lending "laptop-lending/internal/lending/domain"
)

// sequencer hands out persistence turns in the order they were stamped under the state lock.
type sequencer struct {
	mu   sync.Mutex
	cond *sync.Cond
	next uint64
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sequencer) wait(turn uint64) {
	s.mu.Lock()
	for s.next != turn {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

func (s *sequencer) done() {
	s.mu.Lock()
	s.next++
	s.cond.Broadcast()
	s.mu.Unlock()
}

type entityKind string

const (
	entityDevice      entityKind = "device"
	entityRequester   entityKind = "requester"
	entityReservation entityKind = "reservation"
)

type entityKey struct {
	kind entityKind
	id   string
}

func (k entityKey) String() string { return string(k.kind) + " " + k.id }

// batch is everything one committed mutation has to write and announce.
// Entity values are copies taken under the state lock.
type batch struct {
	op   string
	turn uint64

	devices        []lending.Device
	requesters     []lending.Requester
	reservations   []lending.Reservation
	deletedDevices []string
	changes        []Change
}

func (b *batch) empty() bool {
	return len(b.devices) == 0 && len(b.requesters) == 0 && len(b.reservations) == 0 && len(b.deletedDevices) == 0
}

// seal stamps the persistence turn. Caller holds c.mu.
func (c *Coordinator) seal(b *batch) {
	b.turn = c.turn
	c.turn++
}

// meta stamps the next change sequence. Caller holds c.mu.
func (c *Coordinator) meta() changeMeta {
	c.changeSeq++
	return changeMeta{Seq: c.changeSeq, At: c.now()}
}

// finish persists the sealed batch in turn order and then publishes its changes
// outside every lock.
func (c *Coordinator) finish(ctx context.Context, b *batch) error {
	err := c.persistInTurn(ctx, b)
	if failed := c.notifier.Publish(ctx, b.changes...); failed > 0 {
		c.logger.WithFields(logrus.Fields{"op": b.op, "failed": failed}).Debug("subscribers failed")
	}
	return err
}

func (c *Coordinator) persistInTurn(ctx context.Context, b *batch) error {
	c.seq.wait(b.turn)
	defer c.seq.done()
	if b.empty() {
		return nil
	}
	return c.persist(ctx, b)
}

func (c *Coordinator) persist(ctx context.Context, b *batch) error {
	var errs []error
	record := func(key entityKey, err error) {
		if err == nil {
			c.markClean(key)
			return
		}
		c.markDirty(key)
		c.metrics.PersistenceFailed(string(key.kind))
		c.logger.WithFields(logrus.Fields{"op": b.op, "entity": key.String()}).WithError(err).Error("persist failed")
		errs = append(errs, fmt.Errorf("%s: %w", key, err))
	}

	for _, device := range b.devices {
		record(entityKey{entityDevice, device.ID}, c.store.UpdateDevice(ctx, device))
	}
	for _, requester := range b.requesters {
		record(entityKey{entityRequester, requester.ID}, c.store.UpdateRequester(ctx, requester))
	}
	for _, reservation := range b.reservations {
		record(entityKey{entityReservation, reservation.ID}, c.store.SaveReservation(ctx, reservation))
	}
	if len(b.deletedDevices) > 0 {
		remover, _ := c.store.(lending.DeviceRemover)
		for _, id := range b.deletedDevices {
			key := entityKey{entityDevice, id}
			if remover == nil {
				record(key, errors.New("store cannot delete devices"))
				continue
			}
			err := remover.DeleteDevice(ctx, id)
			if err != nil {
				c.logger.WithFields(logrus.Fields{"op": b.op, "device_id": id}).WithError(err).Error("delete device failed")
				c.metrics.PersistenceFailed(string(entityDevice))
				errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
				continue
			}
			c.markClean(key)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &lending.PersistenceError{Op: b.op, Err: errors.Join(errs...)}
}

func (c *Coordinator) markDirty(key entityKey) {
	c.dirtyMu.Lock()
	c.dirty[key] = struct{}{}
	c.dirtyMu.Unlock()
}

func (c *Coordinator) markClean(key entityKey) {
	c.dirtyMu.Lock()
	delete(c.dirty, key)
	c.dirtyMu.Unlock()
}

// PendingWrites returns the number of entities whose latest write failed.
func (c *Coordinator) PendingWrites() int {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	return len(c.dirty)
}

// RetryPersistence rewrites the current snapshot of every entity whose last write failed.
// It returns a *lending.PersistenceError when some writes still fail.
func (c *Coordinator) RetryPersistence(ctx context.Context) error {
	c.mu.Lock()
	c.dirtyMu.Lock()
	keys := make([]entityKey, 0, len(c.dirty))
	for key := range c.dirty {
		keys = append(keys, key)
	}
	c.dirtyMu.Unlock()
	if len(keys) == 0 {
		c.mu.Unlock()
		return nil
	}

	b := &batch{op: "retry persistence"}
	for _, key := range keys {
		switch key.kind {
		case entityDevice:
			if device, ok := c.devices[key.id]; ok {
				b.devices = append(b.devices, *device)
			} else {
				b.deletedDevices = append(b.deletedDevices, key.id)
			}
		case entityRequester:
			if requester, ok := c.requesters[key.id]; ok {
				b.requesters = append(b.requesters, *requester)
			}
		case entityReservation:
			if reservation, ok := c.reservations[key.id]; ok {
				b.reservations = append(b.reservations, *reservation)
			}
		}
	}
	c.seal(b)
	c.mu.Unlock()

	err := c.persistInTurn(ctx, b)
	c.logger.WithFields(logrus.Fields{"entities": len(keys), "pending": c.PendingWrites()}).Info("persistence retried")
	return err
}
