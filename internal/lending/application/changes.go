package application

import (
	"time"

	lending "laptop-lending/internal/lending/domain"
)

// ChangeKind names one variant of Change.
type ChangeKind string

const (
	KindDeviceStateChanged       ChangeKind = "device_state_changed"
	KindRequesterServedChanged   ChangeKind = "requester_served_changed"
	KindQueueSizeChanged         ChangeKind = "queue_size_changed"
	KindReservationCreated       ChangeKind = "reservation_created"
	KindReservationStatusChanged ChangeKind = "reservation_status_changed"
)

// ChangeKinds lists every kind the coordinator emits.
func ChangeKinds() []ChangeKind {
	return []ChangeKind{
		KindDeviceStateChanged,
		KindRequesterServedChanged,
		KindQueueSizeChanged,
		KindReservationCreated,
		KindReservationStatusChanged,
	}
}

// IsValid checks if the kind is known.
func (k ChangeKind) IsValid() bool {
	switch k {
	case KindDeviceStateChanged, KindRequesterServedChanged, KindQueueSizeChanged,
		KindReservationCreated, KindReservationStatusChanged:
		return true
	default:
		return false
	}
}

// Change is a committed state change announced by the coordinator.
// The set of implementations is closed: DeviceStateChanged, RequesterServedChanged,
// QueueSizeChanged, ReservationCreated and ReservationStatusChanged.
type Change interface {
	Kind() ChangeKind
	// Sequence is strictly increasing across every change of one coordinator.
	Sequence() uint64
	OccurredAt() time.Time
	sealed()
}

type changeMeta struct {
	Seq uint64    `json:"-"`
	At  time.Time `json:"-"`
}

func (m changeMeta) Sequence() uint64 { return m.Seq }
func (m changeMeta) OccurredAt() time.Time { return m.At }
func (changeMeta) sealed() {}

// DeviceStateChanged carries a device snapshot taken after the transition.
type DeviceStateChanged struct {
	changeMeta
	Device    lending.Device      `json:"device"`
	OldState  lending.DeviceState `json:"old_state"`
	NewState  lending.DeviceState `json:"new_state"`
	Available bool                `json:"available"`
}

func (DeviceStateChanged) Kind() ChangeKind { return KindDeviceStateChanged }

// RequesterServedChanged reports a flip of the holds-device flag.
type RequesterServedChanged struct {
	changeMeta
	Requester lending.Requester `json:"requester"`
	OldFlag   bool              `json:"old_flag"`
	NewFlag   bool              `json:"new_flag"`
}

func (RequesterServedChanged) Kind() ChangeKind { return KindRequesterServedChanged }

// QueueSizeChanged reports an enqueue (+1) or a removal (-1) on a tier queue.
type QueueSizeChanged struct {
	changeMeta
	Tier        lending.Tier `json:"tier"`
	Delta       int          `json:"delta"`
	NewSize     int          `json:"new_size"`
	RequesterID string       `json:"requester_id"`
}

func (QueueSizeChanged) Kind() ChangeKind { return KindQueueSizeChanged }

// ReservationCreated reports a new active reservation.
type ReservationCreated struct {
	changeMeta
	Reservation lending.Reservation `json:"reservation"`
}

func (ReservationCreated) Kind() ChangeKind { return KindReservationCreated }

// ReservationStatusChanged reports a terminal status transition.
type ReservationStatusChanged struct {
	changeMeta
	Reservation lending.Reservation       `json:"reservation"`
	OldStatus   lending.ReservationStatus `json:"old_status"`
	NewStatus   lending.ReservationStatus `json:"new_status"`
}

func (ReservationStatusChanged) Kind() ChangeKind { return KindReservationStatusChanged }

// SubjectID returns the id of the entity a change is about.
func SubjectID(change Change) string {
	switch c := change.(type) {
	case DeviceStateChanged:
		return c.Device.ID
	case RequesterServedChanged:
		return c.Requester.ID
	case QueueSizeChanged:
		return c.RequesterID
	case ReservationCreated:
		return c.Reservation.ID
	case ReservationStatusChanged:
		return c.Reservation.ID
	default:
		return ""
	}
}
