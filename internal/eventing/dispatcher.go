package eventing

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultBatchSize = 50

// Sink receives relayed envelopes.
type Sink interface {
	Deliver(ctx context.Context, env Envelope) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, env Envelope) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// DeadLetter is an envelope whose delivery failed at least once.
type DeadLetter struct {
	Envelope    Envelope  `json:"envelope"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// DLQReader lists dead letters, most recently failed first.
type DLQReader interface {
	ListFailures(ctx context.Context, limit int) ([]DeadLetter, error)
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
	Attempts int
}

// DispatchResult summarizes one dispatch pass.
type DispatchResult struct {
	Sent   int
	Failed int
}

// Dispatcher relays pending outbox records to a sink.
type Dispatcher struct {
	sink   Sink
	outbox OutboxStore
	dlq    DLQStore
	logger logrus.FieldLogger
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDLQ records failed deliveries.
func WithDLQ(dlq DLQStore) DispatcherOption {
	return func(d *Dispatcher) {
		d.dlq = dlq
	}
}

// WithDispatchLogger overrides the logger.
func WithDispatchLogger(logger logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(sink Sink, outbox OutboxStore, opts ...DispatcherOption) (*Dispatcher, error) {
	if sink == nil {
		return nil, errors.New("dispatcher: nil sink")
	}
	if outbox == nil {
		return nil, errors.New("dispatcher: nil outbox")
	}
	d := &Dispatcher{sink: sink, outbox: outbox, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch pulls pending outbox messages and delivers them.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	var result DispatchResult
	if d == nil || d.outbox == nil || d.sink == nil {
		return result, nil
	}
	if limit <= 0 {
		limit = defaultBatchSize
	}
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		return result, err
	}

	for _, record := range records {
		env := record.Envelope
		if err := d.sink.Deliver(WithCorrelationID(ctx, env.CorrelationID), env); err != nil {
			result.Failed++
			d.logger.WithError(err).WithFields(logrus.Fields{
				"event_id":   env.EventID,
				"event_type": env.EventType,
				"attempts":   record.Attempts + 1,
			}).Warn("outbox delivery failed")
			if markErr := d.outbox.MarkFailed(ctx, record.ID); markErr != nil {
				d.logger.WithError(markErr).WithField("outbox_id", record.ID).Error("mark outbox failed")
			}
			if d.dlq != nil {
				if dlqErr := d.dlq.RecordFailure(ctx, env, err); dlqErr != nil {
					d.logger.WithError(dlqErr).WithField("event_id", env.EventID).Error("record dead letter")
				}
			}
			continue
		}

		if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
			d.logger.WithError(err).WithField("outbox_id", record.ID).Error("mark outbox sent")
			continue
		}
		result.Sent++
	}
	return result, nil
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, limit int) {
	if d == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx, limit); err != nil && ctx.Err() == nil {
				d.logger.WithError(err).Error("outbox dispatch")
			}
		}
	}
}
