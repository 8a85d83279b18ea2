package lending

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequester(id string, tier Tier) *Requester {
	return &Requester{ID: id, Name: "Student " + id, Tier: tier}
}

func TestNewTierQueue_InvalidTier(t *testing.T) {
	_, err := NewTierQueue(Tier("MID"))
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestTierQueue_FIFO(t *testing.T) {
	q, err := NewTierQueue(TierHigh)
	require.NoError(t, err)

	_, ok := q.PeekFront()
	assert.False(t, ok)
	_, _, ok = q.DequeueFront()
	assert.False(t, ok)

	now := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		change, err := q.Enqueue(newTestRequester(id, TierHigh), now)
		require.NoError(t, err)
		assert.Equal(t, QueueChange{Tier: TierHigh, RequesterID: id, Delta: 1, Size: i + 1}, change)
	}
	assert.Equal(t, 3, q.Size())
	assert.Equal(t, 2, q.Position("b"))

	head, ok := q.PeekFront()
	require.True(t, ok)
	assert.Equal(t, "a", head.RequesterID)
	assert.Equal(t, 3, q.Size())

	for i, want := range []string{"a", "b", "c"} {
		entry, change, ok := q.DequeueFront()
		require.True(t, ok)
		assert.Equal(t, want, entry.RequesterID)
		assert.Equal(t, -1, change.Delta)
		assert.Equal(t, 2-i, change.Size)
		assert.False(t, q.Contains(want))
	}
}

func TestTierQueue_EnqueueRejections(t *testing.T) {
	q, err := NewTierQueue(TierLow)
	require.NoError(t, err)

	r := newTestRequester("r-1", TierLow)
	_, err = q.Enqueue(r, time.Now())
	require.NoError(t, err)

	_, err = q.Enqueue(r, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	served := newTestRequester("r-2", TierLow)
	served.HoldsDevice = true
	_, err = q.Enqueue(served, time.Now())
	assert.ErrorIs(t, err, ErrRequesterAlreadyServed)

	_, err = q.Enqueue(newTestRequester("r-3", TierHigh), time.Now())
	assert.ErrorIs(t, err, ErrTierMismatch)

	_, err = q.Enqueue(nil, time.Now())
	assert.ErrorIs(t, err, ErrUnknownRequester)

	assert.Equal(t, 1, q.Size())
}

func TestTierQueue_RemoveByID(t *testing.T) {
	q, err := NewTierQueue(TierHigh)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(newTestRequester(id, TierHigh), time.Now())
		require.NoError(t, err)
	}

	change, ok := q.RemoveByID("b")
	require.True(t, ok)
	assert.Equal(t, QueueChange{Tier: TierHigh, RequesterID: "b", Delta: -1, Size: 2}, change)

	_, ok = q.RemoveByID("b")
	assert.False(t, ok)

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].RequesterID)
	assert.Equal(t, "c", entries[1].RequesterID)
	assert.Equal(t, 0, q.Position("b"))

	// a removed requester may queue again at the back
	_, err = q.Enqueue(newTestRequester("b", TierHigh), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, q.Position("b"))
}

func TestTierQueue_EntriesIsCopy(t *testing.T) {
	q, err := NewTierQueue(TierHigh)
	require.NoError(t, err)
	_, err = q.Enqueue(newTestRequester("a", TierHigh), time.Now())
	require.NoError(t, err)

	entries := q.Entries()
	entries[0].RequesterID = "mutated"
	head, _ := q.PeekFront()
	assert.Equal(t, "a", head.RequesterID)
}

func TestTierQueue_ConcurrentEnqueue(t *testing.T) {
	q, err := NewTierQueue(TierLow)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := newTestRequester(fmt.Sprintf("r-%d", i%25), TierLow)
			_, _ = q.Enqueue(r, time.Now())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, q.Size())
	seen := map[string]bool{}
	for _, entry := range q.Entries() {
		assert.False(t, seen[entry.RequesterID], "duplicate %s", entry.RequesterID)
		seen[entry.RequesterID] = true
	}
}
