package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	lendingapp "laptop-lending/internal/lending/application"
	lending "laptop-lending/internal/lending/domain"
)

const metricPrefix = "lending_"

// StatsSource provides allocation snapshots for scrape-time gauges.
type StatsSource interface {
	Stats() lendingapp.Stats
}

// CountFunc reports a backlog size, e.g. pending outbox records.
type CountFunc func(ctx context.Context) (int, error)

// Metrics bundles lending service metrics.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	ReleasesTotal       *prometheus.CounterVec
	DrainedTotal        *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	SubscriberFailures  *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPLatency         *prometheus.HistogramVec
	StreamClients       *prometheus.GaugeVec
}

type config struct {
	stats  StatsSource
	outbox CountFunc
	logger logrus.FieldLogger
}

// Option configures scrape-time collectors.
type Option func(*config)

// WithStatsSource exports device, queue and reservation gauges from source.
func WithStatsSource(source StatsSource) Option {
	return func(c *config) {
		c.stats = source
	}
}

// WithOutboxCounter exports the outbox backlog.
func WithOutboxCounter(count CountFunc) Option {
	return func(c *config) {
		c.outbox = count
	}
}

// WithLogger overrides the logger used for scrape failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs metrics and registers them with reg (the default registerer when nil).
func New(reg prometheus.Registerer, opts ...Option) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cfg := config{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "requests_total",
				Help: "Total device requests by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		ReleasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "releases_total",
				Help: "Total released reservations by tier and terminal status",
			},
			[]string{"tier", "status"},
		),
		DrainedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "queue_drained_total",
				Help: "Total queued requesters assigned a device on release or registration",
			},
			[]string{"tier"},
		),
		PersistenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persistence_failures_total",
				Help: "Total failed store writes by entity",
			},
			[]string{"entity"},
		),
		SubscriberFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "subscriber_failures_total",
				Help: "Total change notifications a subscriber failed to handle",
			},
			[]string{"subscriber", "kind"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		HTTPLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		StreamClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_clients",
				Help: "Connected change stream clients by transport",
			},
			[]string{"transport"},
		),
	}
	reg.MustRegister(
		m.RequestsTotal,
		m.ReleasesTotal,
		m.DrainedTotal,
		m.PersistenceFailures,
		m.SubscriberFailures,
		m.HTTPRequestsTotal,
		m.HTTPLatency,
		m.StreamClients,
	)

	if cfg.stats != nil {
		reg.MustRegister(newStatsCollector(cfg.stats))
	}
	if cfg.outbox != nil {
		registerOutboxMetrics(reg, cfg.outbox, cfg.logger)
	}
	return m
}

// RequestOutcome implements application.Recorder.
func (m *Metrics) RequestOutcome(tier lending.Tier, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.RequestsTotal.WithLabelValues(string(tier), outcome).Inc()
}

// Released implements application.Recorder.
func (m *Metrics) Released(tier lending.Tier, status lending.ReservationStatus) {
	if m == nil {
		return
	}
	m.ReleasesTotal.WithLabelValues(string(tier), string(status)).Inc()
}

// Drained implements application.Recorder.
func (m *Metrics) Drained(tier lending.Tier, assigned int) {
	if m == nil || assigned <= 0 {
		return
	}
	m.DrainedTotal.WithLabelValues(string(tier)).Add(float64(assigned))
}

// PersistenceFailed implements application.Recorder.
func (m *Metrics) PersistenceFailed(entity string) {
	if m == nil {
		return
	}
	if entity == "" {
		entity = "unknown"
	}
	m.PersistenceFailures.WithLabelValues(entity).Inc()
}

// SubscriberFailed matches application.FailureHook.
func (m *Metrics) SubscriberFailed(subscriber string, kind lendingapp.ChangeKind) {
	if m == nil {
		return
	}
	m.SubscriberFailures.WithLabelValues(subscriber, string(kind)).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// StreamConnected adjusts the connected client gauge by delta.
func (m *Metrics) StreamConnected(transport string, delta int) {
	if m == nil {
		return
	}
	m.StreamClients.WithLabelValues(transport).Add(float64(delta))
}
