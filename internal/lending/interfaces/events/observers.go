package events

import (
	"context"
	"errors"

	"laptop-lending/internal/audit"
	"laptop-lending/internal/auth"
	"laptop-lending/internal/eventing"
	lendingapp "laptop-lending/internal/lending/application"
)

// Subscriber is the part of the change notifier observers attach to.
type Subscriber interface {
	Subscribe(name string, handler lendingapp.Handler, kinds ...lendingapp.ChangeKind) (func(), error)
}

// EventPublisher writes events to the outbox.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, event any, meta eventing.Meta) (eventing.Envelope, error)
}

// OutboxObserver relays every committed change to the outbox.
type OutboxObserver struct {
	publisher EventPublisher
}

// NewOutboxObserver constructs an outbox observer.
func NewOutboxObserver(publisher EventPublisher) (*OutboxObserver, error) {
	if publisher == nil {
		return nil, errors.New("outbox observer: nil publisher")
	}
	return &OutboxObserver{publisher: publisher}, nil
}

// Attach subscribes the observer to all change kinds.
func (o *OutboxObserver) Attach(notifier Subscriber) (func(), error) {
	if notifier == nil {
		return nil, errors.New("outbox observer: nil notifier")
	}
	return notifier.Subscribe("outbox", o.Handle)
}

// Handle publishes one change.
func (o *OutboxObserver) Handle(ctx context.Context, change lendingapp.Change) error {
	_, err := o.publisher.Publish(ctx, string(change.Kind()), change, eventing.Meta{
		OccurredAt: change.OccurredAt(),
		SubjectID:  lendingapp.SubjectID(change),
		Sequence:   change.Sequence(),
	})
	return err
}

// AuditObserver records reservation lifecycle changes in the audit log.
type AuditObserver struct {
	logger audit.Logger
}

// NewAuditObserver constructs an audit observer.
func NewAuditObserver(logger audit.Logger) (*AuditObserver, error) {
	if logger == nil {
		return nil, errors.New("audit observer: nil logger")
	}
	return &AuditObserver{logger: logger}, nil
}

// Attach subscribes the observer to reservation changes.
func (o *AuditObserver) Attach(notifier Subscriber) (func(), error) {
	if notifier == nil {
		return nil, errors.New("audit observer: nil notifier")
	}
	return notifier.Subscribe("audit", o.Handle,
		lendingapp.KindReservationCreated,
		lendingapp.KindReservationStatusChanged,
	)
}

// Handle writes one audit entry. The actor comes from the request identity, or "system".
func (o *AuditObserver) Handle(ctx context.Context, change lendingapp.Change) error {
	entry := audit.Entry{
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		ResourceType: "reservation",
		CreatedAt:    change.OccurredAt(),
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	switch c := change.(type) {
	case lendingapp.ReservationCreated:
		entry.Action = "reservation.created"
		entry.ResourceID = c.Reservation.ID
		entry.Metadata = audit.Metadata(map[string]any{
			"requester_id": c.Reservation.RequesterID,
			"device_id":    c.Reservation.DeviceID,
			"tier":         c.Reservation.Tier,
			"seq":          c.Sequence(),
		})
	case lendingapp.ReservationStatusChanged:
		entry.Action = "reservation." + string(c.NewStatus)
		entry.ResourceID = c.Reservation.ID
		entry.Metadata = audit.Metadata(map[string]any{
			"requester_id": c.Reservation.RequesterID,
			"device_id":    c.Reservation.DeviceID,
			"old_status":   c.OldStatus,
			"seq":          c.Sequence(),
		})
	default:
		return nil
	}
	return o.logger.Log(ctx, entry)
}
