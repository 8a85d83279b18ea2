package lending

import (
	"sync"
	"time"
)

// QueueEntry is a requester waiting for a device.
type QueueEntry struct {
	RequesterID string    `json:"requester_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// QueueChange describes a size change of a tier queue.
type QueueChange struct {
	Tier        Tier
	RequesterID string
	Delta       int
	Size        int
}

// TierQueue is a FIFO of requesters waiting for devices of one tier.
// Arrival order is the only ordering rule.
type TierQueue struct {
	tier    Tier
	mu      sync.Mutex
	entries []QueueEntry
	index   map[string]struct{}
}

// NewTierQueue constructs an empty queue for tier.
func NewTierQueue(tier Tier) (*TierQueue, error) {
	if !tier.IsValid() {
		return nil, ErrInvalidTier
	}
	return &TierQueue{tier: tier, index: make(map[string]struct{})}, nil
}

// Tier returns the queue tier.
func (q *TierQueue) Tier() Tier { return q.tier }

// Enqueue appends requester to the end of the queue.
func (q *TierQueue) Enqueue(requester *Requester, at time.Time) (QueueChange, error) {
	if requester == nil {
		return QueueChange{}, ErrUnknownRequester
	}
	if requester.Tier != q.tier {
		return QueueChange{}, ErrTierMismatch
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[requester.ID]; ok {
		return QueueChange{}, ErrAlreadyQueued
	}
	if requester.HoldsDevice {
		return QueueChange{}, ErrRequesterAlreadyServed
	}
	q.entries = append(q.entries, QueueEntry{RequesterID: requester.ID, EnqueuedAt: at})
	q.index[requester.ID] = struct{}{}
	return QueueChange{Tier: q.tier, RequesterID: requester.ID, Delta: 1, Size: len(q.entries)}, nil
}

// PeekFront returns the head without removing it. ok is false when the queue is empty.
func (q *TierQueue) PeekFront() (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}
	return q.entries[0], true
}

// DequeueFront removes and returns the head. ok is false when the queue is empty.
func (q *TierQueue) DequeueFront() (QueueEntry, QueueChange, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return QueueEntry{}, QueueChange{}, false
	}
	head := q.entries[0]
	q.entries[0] = QueueEntry{}
	q.entries = q.entries[1:]
	delete(q.index, head.RequesterID)
	return head, QueueChange{Tier: q.tier, RequesterID: head.RequesterID, Delta: -1, Size: len(q.entries)}, true
}

// RemoveByID withdraws a requester from any position.
func (q *TierQueue) RemoveByID(requesterID string) (QueueChange, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[requesterID]; !ok {
		return QueueChange{}, false
	}
	for i, entry := range q.entries {
		if entry.RequesterID != requesterID {
			continue
		}
		q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
		break
	}
	delete(q.index, requesterID)
	return QueueChange{Tier: q.tier, RequesterID: requesterID, Delta: -1, Size: len(q.entries)}, true
}

// Contains reports whether the requester is waiting.
func (q *TierQueue) Contains(requesterID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[requesterID]
	return ok
}

// Position returns the 1-based position of the requester, or 0 when absent.
func (q *TierQueue) Position(requesterID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[requesterID]; !ok {
		return 0
	}
	for i, entry := range q.entries {
		if entry.RequesterID == requesterID {
			return i + 1
		}
	}
	return 0
}

// Size returns the number of waiting requesters.
func (q *TierQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the queue in FIFO order.
func (q *TierQueue) Entries() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueueEntry(nil), q.entries...)
}
