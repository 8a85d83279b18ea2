package metrics

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lendingapp "laptop-lending/internal/lending/application"
	lending "laptop-lending/internal/lending/domain"
)

type stubStats struct {
	stats lendingapp.Stats
}

func (s stubStats) Stats() lendingapp.Stats { return s.stats }

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRecorderCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RequestOutcome(lending.TierHigh, lendingapp.OutcomeReserved)
	m.RequestOutcome(lending.TierHigh, lendingapp.OutcomeReserved)
	m.RequestOutcome(lending.TierLow, lendingapp.OutcomeEnqueued)
	m.Released(lending.TierHigh, lending.StatusCompleted)
	m.Drained(lending.TierHigh, 2)
	m.Drained(lending.TierHigh, 0)
	m.PersistenceFailed("device")
	m.SubscriberFailed("outbox", lendingapp.KindReservationCreated)
	m.ObserveHTTP("/api/v1/requests", "POST", 201, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("HIGH", "reserved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("LOW", "enqueued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReleasesTotal.WithLabelValues("HIGH", "completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DrainedTotal.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("device")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriberFailures.WithLabelValues("outbox", "reservation_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/v1/requests", "POST", "201")))
}

func TestStatsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, WithStatsSource(stubStats{stats: lendingapp.Stats{
		Tiers: map[lending.Tier]lendingapp.TierStats{
			lending.TierHigh: {Available: 1, Loaned: 2, Queued: 3, Requesters: 5, Served: 2},
			lending.TierLow:  {Available: 4},
		},
		ActiveReservations: 2,
		PendingWrites:      1,
	}}))

	expected := `
# HELP lending_devices Registered devices by tier and state
# TYPE lending_devices gauge
lending_devices{state="available",tier="HIGH"} 1
lending_devices{state="available",tier="LOW"} 4
lending_devices{state="loaned",tier="HIGH"} 2
lending_devices{state="loaned",tier="LOW"} 0
# HELP lending_queue_length Waiting requesters by tier
# TYPE lending_queue_length gauge
lending_queue_length{tier="HIGH"} 3
lending_queue_length{tier="LOW"} 0
# HELP lending_active_reservations Active reservations
# TYPE lending_active_reservations gauge
lending_active_reservations 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"lending_devices", "lending_queue_length", "lending_active_reservations"))
}

func TestOutboxGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	pending := 7
	var failing bool
	New(reg, WithLogger(quietLogger()), WithOutboxCounter(func(context.Context) (int, error) {
		if failing {
			return 0, errors.New("db down")
		}
		return pending, nil
	}))

	expected := `
# HELP lending_event_outbox_pending Outbox records not yet delivered
# TYPE lending_event_outbox_pending gauge
lending_event_outbox_pending 7
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "lending_event_outbox_pending"))

	failing = true
	expected = `
# HELP lending_event_outbox_pending Outbox records not yet delivered
# TYPE lending_event_outbox_pending gauge
lending_event_outbox_pending 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "lending_event_outbox_pending"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RequestOutcome(lending.TierHigh, "reserved")
	m.Released(lending.TierHigh, lending.StatusCancelled)
	m.StreamConnected("sse", 1)
}
