package events

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laptop-lending/internal/audit"
	"laptop-lending/internal/auth"
	"laptop-lending/internal/eventing"
	eventmemory "laptop-lending/internal/eventing/infrastructure/memory"
	lendingapp "laptop-lending/internal/lending/application"
	lending "laptop-lending/internal/lending/domain"
	"laptop-lending/internal/lending/infrastructure/memory"
)

func TestObservers_RecordCommittedChanges(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	notifier := lendingapp.NewNotifier(lendingapp.WithNotifierLogger(logger))
	coordinator, err := lendingapp.NewCoordinator(memory.NewStore(), lendingapp.WithNotifier(notifier), lendingapp.WithLogger(logger))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, coordinator.Load(ctx))

	outbox := eventmemory.NewOutboxStore(0)
	publisher, err := eventing.NewPublisher(outbox)
	require.NoError(t, err)
	outboxObserver, err := NewOutboxObserver(publisher)
	require.NoError(t, err)
	_, err = outboxObserver.Attach(notifier)
	require.NoError(t, err)

	auditLog := audit.NewMemoryLogger()
	auditObserver, err := NewAuditObserver(auditLog)
	require.NoError(t, err)
	_, err = auditObserver.Attach(notifier)
	require.NoError(t, err)

	_, err = coordinator.RegisterDevice(ctx, lendingapp.NewDevice{Brand: "Lenovo", Model: "T14", StorageGB: 256, MemoryGB: 16, Tier: lending.TierLow})
	require.NoError(t, err)
	_, err = coordinator.RegisterRequester(ctx, lendingapp.NewRequester{ID: "s-1", Name: "Ada", Email: "ada@example.com", Tier: lending.TierLow})
	require.NoError(t, err)

	opCtx := eventing.WithCorrelationID(auth.WithIdentity(ctx, auth.RoleOperator, "desk-7"), "req-42")
	outcome, err := coordinator.RequestDevice(opCtx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, outcome.Reservation)
	_, err = coordinator.ReleaseDevice(ctx, outcome.Reservation.ID, lending.StatusCompleted)
	require.NoError(t, err)

	records, err := outbox.ListPending(ctx, 100)
	require.NoError(t, err)
	// request: device, requester, reservation; release: reservation, device, requester
	require.Len(t, records, 6)
	var lastSeq uint64
	seen := map[string]int{}
	for _, record := range records {
		seen[record.Envelope.EventType]++
		assert.Greater(t, record.Envelope.Sequence, lastSeq)
		lastSeq = record.Envelope.Sequence
		assert.NotEmpty(t, record.Envelope.SubjectID)
	}
	assert.Equal(t, 2, seen[string(lendingapp.KindDeviceStateChanged)])
	assert.Equal(t, 1, seen[string(lendingapp.KindReservationCreated)])
	assert.Equal(t, "req-42", records[0].Envelope.CorrelationID)

	entries, err := auditLog.List(ctx, audit.Filter{ResourceID: outcome.Reservation.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "reservation.completed", entries[0].Action)
	assert.Equal(t, "system", entries[0].Actor)
	assert.Equal(t, "reservation.created", entries[1].Action)
	assert.Equal(t, "desk-7", entries[1].Actor)
	assert.Equal(t, "operator", entries[1].Role)
}

func TestObservers_Guards(t *testing.T) {
	_, err := NewOutboxObserver(nil)
	assert.Error(t, err)
	_, err = NewAuditObserver(nil)
	assert.Error(t, err)
}
