package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"laptop-lending/internal/eventing"
)

type record struct {
	id        string
	env       eventing.Envelope
	status    string
	attempts  int
	createdAt time.Time
}

// OutboxStore keeps outbox records in memory.
type OutboxStore struct {
	mu          sync.Mutex
	records     []*record
	byID        map[string]*record
	maxAttempts int
}

// NewOutboxStore constructs an in-memory outbox. maxAttempts <= 0 defaults to 5.
func NewOutboxStore(maxAttempts int) *OutboxStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &OutboxStore{byID: make(map[string]*record), maxAttempts: maxAttempts}
}

// Insert appends an envelope.
func (s *OutboxStore) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	if s == nil {
		return "", errors.New("outbox store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &record{id: eventing.NewEventID(), env: env, status: "pending", createdAt: time.Now().UTC()}
	s.records = append(s.records, rec)
	s.byID[rec.id] = rec
	return rec.id, nil
}

// ListPending returns records still due for delivery, oldest first.
func (s *OutboxStore) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil {
		return nil, errors.New("outbox store: nil store")
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []eventing.OutboxRecord
	for _, rec := range s.records {
		if len(result) == limit {
			break
		}
		if s.due(rec) {
			result = append(result, eventing.OutboxRecord{ID: rec.id, Envelope: rec.env, Attempts: rec.attempts})
		}
	}
	return result, nil
}

func (s *OutboxStore) due(rec *record) bool {
	return rec.status == "pending" || (rec.status == "failed" && rec.attempts < s.maxAttempts)
}

// MarkSent marks a record as sent and drops it.
func (s *OutboxStore) MarkSent(_ context.Context, id string) error {
	if s == nil {
		return errors.New("outbox store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	for i, candidate := range s.records {
		if candidate == rec {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	return nil
}

// MarkFailed marks a record as failed and increments attempts.
func (s *OutboxStore) MarkFailed(_ context.Context, id string) error {
	if s == nil {
		return errors.New("outbox store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byID[id]; ok {
		rec.status = "failed"
		rec.attempts++
	}
	return nil
}

// CountPending returns the number of records not yet sent.
func (s *OutboxStore) CountPending(context.Context) (int, error) {
	if s == nil {
		return 0, errors.New("outbox store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}
