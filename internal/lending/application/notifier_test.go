package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lending "laptop-lending/internal/lending/domain"
)

func TestNotifier_KindFilterAndUnsubscribe(t *testing.T) {
	n := NewNotifier(WithNotifierLogger(quietLogger()))

	var queueEvents, all int
	unsubQueue, err := n.Subscribe("queue", func(_ context.Context, change Change) error {
		_, ok := change.(QueueSizeChanged)
		require.True(t, ok)
		queueEvents++
		return nil
	}, KindQueueSizeChanged)
	require.NoError(t, err)
	unsubAll, err := n.Subscribe("all", func(context.Context, Change) error {
		all++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n.Subscribers())

	changes := []Change{
		QueueSizeChanged{changeMeta: changeMeta{Seq: 1}, Tier: lending.TierLow, Delta: 1, NewSize: 1},
		ReservationCreated{changeMeta: changeMeta{Seq: 2}},
	}
	assert.Equal(t, 0, n.Publish(context.Background(), changes...))
	assert.Equal(t, 1, queueEvents)
	assert.Equal(t, 2, all)

	unsubQueue()
	unsubQueue()
	assert.Equal(t, 1, n.Subscribers())
	n.Publish(context.Background(), changes...)
	assert.Equal(t, 1, queueEvents)
	assert.Equal(t, 4, all)

	unsubAll()
	assert.Equal(t, 0, n.Subscribers())
}

func TestNotifier_IsolatesFailures(t *testing.T) {
	var hooked []string
	n := NewNotifier(WithNotifierLogger(quietLogger()), WithFailureHook(func(name string, _ ChangeKind) {
		hooked = append(hooked, name)
	}))

	var order []string
	_, err := n.Subscribe("first", func(context.Context, Change) error {
		order = append(order, "first")
		return errors.New("first failed")
	})
	require.NoError(t, err)
	_, err = n.Subscribe("second", func(context.Context, Change) error {
		order = append(order, "second")
		panic("second panicked")
	})
	require.NoError(t, err)
	_, err = n.Subscribe("third", func(context.Context, Change) error {
		order = append(order, "third")
		return nil
	})
	require.NoError(t, err)

	failed := n.Publish(context.Background(), DeviceStateChanged{changeMeta: changeMeta{Seq: 7}})
	assert.Equal(t, 2, failed)
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, []string{"first", "second"}, hooked)
}

func TestNotifier_SubscribeValidation(t *testing.T) {
	n := NewNotifier()
	_, err := n.Subscribe("nil", nil)
	assert.Error(t, err)
	_, err = n.Subscribe("bad", func(context.Context, Change) error { return nil }, ChangeKind("device_exploded"))
	assert.Error(t, err)

	var nilNotifier *Notifier
	assert.Equal(t, 0, nilNotifier.Publish(context.Background(), ReservationCreated{}))
}

func TestSubjectID(t *testing.T) {
	assert.Equal(t, "d1", SubjectID(DeviceStateChanged{Device: lending.Device{ID: "d1"}}))
	assert.Equal(t, "s1", SubjectID(RequesterServedChanged{Requester: lending.Requester{ID: "s1"}}))
	assert.Equal(t, "s2", SubjectID(QueueSizeChanged{RequesterID: "s2"}))
	assert.Equal(t, "r1", SubjectID(ReservationCreated{Reservation: lending.Reservation{ID: "r1"}}))
	assert.Equal(t, "r2", SubjectID(ReservationStatusChanged{Reservation: lending.Reservation{ID: "r2"}}))
}
