package lending

import "context"

// Store is the durability contract consumed by the coordinator.
// Update methods upsert. Implementations either fully apply a call or return an error.
type Store interface {
	LoadAllDevices(ctx context.Context) ([]Device, error)
	LoadAllRequesters(ctx context.Context) ([]Requester, error)
	SaveReservation(ctx context.Context, reservation Reservation) error
	UpdateDevice(ctx context.Context, device Device) error
	UpdateRequester(ctx context.Context, requester Requester) error
}

// ReservationLoader is implemented by stores that can rebuild the active reservation table.
type ReservationLoader interface {
	LoadActiveReservations(ctx context.Context) ([]Reservation, error)
}

// DeviceRemover is implemented by stores that support device removal.
type DeviceRemover interface {
	DeleteDevice(ctx context.Context, id string) error
}

// ReservationLister is implemented by stores that keep reservation history.
// An empty status lists every status.
type ReservationLister interface {
	ListReservations(ctx context.Context, status ReservationStatus) ([]Reservation, error)
}
