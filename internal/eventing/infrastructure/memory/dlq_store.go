package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"laptop-lending/internal/eventing"
)

// DLQStore keeps dead letters in memory, keyed by event id.
type DLQStore struct {
	mu      sync.Mutex
	letters map[string]*eventing.DeadLetter
	now     func() time.Time
}

// NewDLQStore constructs an empty in-memory DLQ.
func NewDLQStore() *DLQStore {
	return &DLQStore{
		letters: make(map[string]*eventing.DeadLetter),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordFailure stores env or bumps its attempt count.
func (s *DLQStore) RecordFailure(_ context.Context, env eventing.Envelope, err error) error {
	if s == nil {
		return errors.New("dlq store: nil store")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	message := ""
	if err != nil {
		message = err.Error()
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if letter, ok := s.letters[env.EventID]; ok {
		letter.Error = message
		letter.LastSeenAt = now
		letter.Attempts++
		return nil
	}
	s.letters[env.EventID] = &eventing.DeadLetter{
		Envelope:    env,
		Error:       message,
		Attempts:    1,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	return nil
}

// ListFailures returns dead letters, most recently failed first.
func (s *DLQStore) ListFailures(_ context.Context, limit int) ([]eventing.DeadLetter, error) {
	if s == nil {
		return nil, errors.New("dlq store: nil store")
	}
	s.mu.Lock()
	out := make([]eventing.DeadLetter, 0, len(s.letters))
	for _, letter := range s.letters {
		out = append(out, *letter)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].Envelope.EventID < out[j].Envelope.EventID
		}
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
