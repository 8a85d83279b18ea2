package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"laptop-lending/internal/eventing"
)

const (
	defaultDLQTable     = "dead_letter_events"
	defaultDLQListLimit = 100
)

// DLQStore keeps envelopes whose delivery failed, one row per event id.
type DLQStore struct {
	db    DBTX
	table string
	now   func() time.Time
}

// DLQOption configures the DLQ store.
type DLQOption func(*DLQStore)

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db DBTX, opts ...DLQOption) *DLQStore {
	store := &DLQStore{
		db:    db,
		table: defaultDLQTable,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *DLQStore) ready() error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	return nil
}

// RecordFailure inserts the envelope or bumps attempts and the last error.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if err := s.ready(); err != nil {
		return err
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	query := fmt.Sprintf(`
INSERT INTO %[1]s (event_id, event_type, payload, error, first_seen_at, last_seen_at, attempts)
VALUES ($1, $2, $3, $4, $5, $5, 1)
ON CONFLICT (event_id)
DO UPDATE SET
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %[1]s.attempts + 1`, s.table)

	_, err = s.db.ExecContext(ctx, query, env.EventID, env.EventType, payload, message, s.now())
	return err
}

// ListFailures returns dead letters, most recently failed first.
func (s *DLQStore) ListFailures(ctx context.Context, limit int) ([]eventing.DeadLetter, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultDLQListLimit
	}
	query := fmt.Sprintf(`
SELECT payload, error, attempts, first_seen_at, last_seen_at
FROM %s
ORDER BY last_seen_at DESC, event_id ASC
LIMIT $1`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.DeadLetter
	for rows.Next() {
		var letter eventing.DeadLetter
		var payload []byte
		if err := rows.Scan(&payload, &letter.Error, &letter.Attempts, &letter.FirstSeenAt, &letter.LastSeenAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &letter.Envelope); err != nil {
			return nil, fmt.Errorf("dlq store: decode %s: %w", s.table, err)
		}
		letter.FirstSeenAt = letter.FirstSeenAt.UTC()
		letter.LastSeenAt = letter.LastSeenAt.UTC()
		result = append(result, letter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
