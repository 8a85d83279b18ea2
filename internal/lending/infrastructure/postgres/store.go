package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	lending "laptop-lending/internal/lending/domain"
)

const (
	defaultDevicesTable      = "lending_devices"
	defaultRequestersTable   = "lending_requesters"
	defaultReservationsTable = "lending_reservations"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a Postgres implementation of the lending store.
type Store struct {
	db           DBTX
	devices      string
	requesters   string
	reservations string
}

// Option configures the store.
type Option func(*Store)

// WithTables overrides the default table names. Empty names keep the default.
func WithTables(devices, requesters, reservations string) Option {
	return func(s *Store) {
		if devices != "" {
			s.devices = devices
		}
		if requesters != "" {
			s.requesters = requesters
		}
		if reservations != "" {
			s.reservations = reservations
		}
	}
}

// NewStore constructs a store.
func NewStore(db DBTX, opts ...Option) *Store {
	store := &Store{
		db:           db,
		devices:      defaultDevicesTable,
		requesters:   defaultRequestersTable,
		reservations: defaultReservationsTable,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errors.New("lending store: nil db")
	}
	return nil
}

// LoadAllDevices returns devices in registration order.
func (s *Store) LoadAllDevices(ctx context.Context) ([]lending.Device, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT id, brand, model, storage_gb, memory_gb, tier, state, created_at, updated_at
FROM %s
ORDER BY created_at ASC, id ASC`, s.devices)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lending.Device
	for rows.Next() {
		var device lending.Device
		var tier, state string
		if err := rows.Scan(
			&device.ID,
			&device.Brand,
			&device.Model,
			&device.StorageGB,
			&device.MemoryGB,
			&tier,
			&state,
			&device.CreatedAt,
			&device.UpdatedAt,
		); err != nil {
			return nil, err
		}
		device.Tier = lending.Tier(tier)
		device.State = lending.DeviceState(state)
		device.CreatedAt = device.CreatedAt.UTC()
		device.UpdatedAt = device.UpdatedAt.UTC()
		result = append(result, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LoadAllRequesters returns requesters ordered by id.
func (s *Store) LoadAllRequesters(ctx context.Context) ([]lending.Requester, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT id, name, email, phone, tier, holds_device, created_at, updated_at
FROM %s
ORDER BY id ASC`, s.requesters)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lending.Requester
	for rows.Next() {
		var requester lending.Requester
		var tier string
		if err := rows.Scan(
			&requester.ID,
			&requester.Name,
			&requester.Email,
			&requester.Phone,
			&tier,
			&requester.HoldsDevice,
			&requester.CreatedAt,
			&requester.UpdatedAt,
		); err != nil {
			return nil, err
		}
		requester.Tier = lending.Tier(tier)
		requester.CreatedAt = requester.CreatedAt.UTC()
		requester.UpdatedAt = requester.UpdatedAt.UTC()
		result = append(result, requester)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LoadActiveReservations returns active reservations ordered by creation time.
func (s *Store) LoadActiveReservations(ctx context.Context) ([]lending.Reservation, error) {
	return s.ListReservations(ctx, lending.StatusActive)
}

// ListReservations returns reservations ordered by creation time. An empty status lists all.
func (s *Store) ListReservations(ctx context.Context, status lending.ReservationStatus) ([]lending.Reservation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT id, requester_id, device_id, tier, status, created_at, ended_at
FROM %s
WHERE ($1 = '' OR status = $1)
ORDER BY created_at ASC, id ASC`, s.reservations)

	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lending.Reservation
	for rows.Next() {
		var res lending.Reservation
		var tier, resStatus string
		var endedAt sql.NullTime
		if err := rows.Scan(
			&res.ID,
			&res.RequesterID,
			&res.DeviceID,
			&tier,
			&resStatus,
			&res.CreatedAt,
			&endedAt,
		); err != nil {
			return nil, err
		}
		res.Tier = lending.Tier(tier)
		res.Status = lending.ReservationStatus(resStatus)
		res.CreatedAt = res.CreatedAt.UTC()
		if endedAt.Valid {
			res.EndedAt = endedAt.Time.UTC()
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveReservation upserts a reservation.
func (s *Store) SaveReservation(ctx context.Context, reservation lending.Reservation) error {
	if err := s.ready(); err != nil {
		return err
	}
	if reservation.ID == "" {
		return lending.ErrEmptyID
	}
	var endedAt sql.NullTime
	if !reservation.EndedAt.IsZero() {
		endedAt = sql.NullTime{Time: reservation.EndedAt.UTC(), Valid: true}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, requester_id, device_id, tier, status, created_at, ended_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id)
DO UPDATE SET status = EXCLUDED.status, ended_at = EXCLUDED.ended_at`, s.reservations)

	_, err := s.db.ExecContext(ctx, query,
		reservation.ID,
		reservation.RequesterID,
		reservation.DeviceID,
		string(reservation.Tier),
		string(reservation.Status),
		reservation.CreatedAt.UTC(),
		endedAt,
	)
	return err
}

// UpdateDevice upserts a device.
func (s *Store) UpdateDevice(ctx context.Context, device lending.Device) error {
	if err := s.ready(); err != nil {
		return err
	}
	if device.ID == "" {
		return lending.ErrEmptyID
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, brand, model, storage_gb, memory_gb, tier, state, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id)
DO UPDATE SET
	brand = EXCLUDED.brand,
	model = EXCLUDED.model,
	storage_gb = EXCLUDED.storage_gb,
	memory_gb = EXCLUDED.memory_gb,
	tier = EXCLUDED.tier,
	state = EXCLUDED.state,
	updated_at = EXCLUDED.updated_at`, s.devices)

	_, err := s.db.ExecContext(ctx, query,
		device.ID,
		device.Brand,
		device.Model,
		device.StorageGB,
		device.MemoryGB,
		string(device.Tier),
		string(device.State),
		device.CreatedAt.UTC(),
		device.UpdatedAt.UTC(),
	)
	return err
}

// UpdateRequester upserts a requester.
func (s *Store) UpdateRequester(ctx context.Context, requester lending.Requester) error {
	if err := s.ready(); err != nil {
		return err
	}
	if requester.ID == "" {
		return lending.ErrEmptyID
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, name, email, phone, tier, holds_device, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	tier = EXCLUDED.tier,
	holds_device = EXCLUDED.holds_device,
	updated_at = EXCLUDED.updated_at`, s.requesters)

	_, err := s.db.ExecContext(ctx, query,
		requester.ID,
		requester.Name,
		requester.Email,
		requester.Phone,
		string(requester.Tier),
		requester.HoldsDevice,
		requester.CreatedAt.UTC(),
		requester.UpdatedAt.UTC(),
	)
	return err
}

// DeleteDevice removes a device row. Reservation history keeps its device id.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if id == "" {
		return lending.ErrEmptyID
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.devices)
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}
