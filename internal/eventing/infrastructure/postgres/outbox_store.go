package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"laptop-lending/internal/eventing"
)

const (
	defaultOutboxTable       = "event_outbox"
	defaultOutboxMaxAttempts = 5
	defaultOutboxBatch       = 50

	statusPending = "pending"
	statusSent    = "sent"
	statusFailed  = "failed"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OutboxStore keeps envelopes in event_outbox until the dispatcher delivers them.
// Records are relayed in insertion order.
type OutboxStore struct {
	db          DBTX
	table       string
	maxAttempts int
	now         func() time.Time
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithMaxAttempts sets how many failed deliveries a record gets before it is parked.
func WithMaxAttempts(attempts int) OutboxOption {
	return func(store *OutboxStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db DBTX, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{
		db:          db,
		table:       defaultOutboxTable,
		maxAttempts: defaultOutboxMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *OutboxStore) ready() error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	return nil
}

// Insert queues env. Re-inserting an event id already queued returns the existing record id.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, payload, status, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, 0, $6)
ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
RETURNING id`, s.table)

	var id string
	err = s.db.QueryRowContext(ctx, query,
		eventing.NewEventID(), env.EventID, env.EventType, payload, statusPending, s.now(),
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListPending returns records due for delivery in insertion order.
// Failed records come back until they reach the attempt limit.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	query := fmt.Sprintf(`
SELECT id, payload, attempts
FROM %s
WHERE status = $1 OR (status = $2 AND attempts < $3)
ORDER BY position ASC
LIMIT $4`, s.table)

	rows, err := s.db.QueryContext(ctx, query, statusPending, statusFailed, s.maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.OutboxRecord
	for rows.Next() {
		var (
			record  eventing.OutboxRecord
			payload []byte
		)
		if err := rows.Scan(&record.ID, &payload, &record.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &record.Envelope); err != nil {
			return nil, fmt.Errorf("outbox store: decode %s: %w", record.ID, err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// MarkSent records a successful delivery.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, statusSent)
}

// MarkFailed records a failed delivery and counts the attempt.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, statusFailed)
}

func (s *OutboxStore) setStatus(ctx context.Context, id, status string) error {
	if err := s.ready(); err != nil {
		return err
	}
	var query string
	var args []any
	switch status {
	case statusSent:
		query = fmt.Sprintf(`UPDATE %s SET status = $1, sent_at = $2 WHERE id = $3`, s.table)
		args = []any{status, s.now(), id}
	default:
		query = fmt.Sprintf(`UPDATE %s SET status = $1, attempts = attempts + 1 WHERE id = $2`, s.table)
		args = []any{status, id}
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outbox store: record %s not found", id)
	}
	return nil
}

// CountPending returns the number of records not yet sent, parked ones included.
func (s *OutboxStore) CountPending(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE status <> $1`, s.table)
	var count int
	if err := s.db.QueryRowContext(ctx, query, statusSent).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
