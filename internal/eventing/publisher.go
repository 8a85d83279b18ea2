package eventing

import (
	"context"
	"errors"
)

// OutboxWriter writes envelopes to the outbox.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Publisher wraps events into envelopes and stores them in the outbox.
type Publisher struct {
	outbox OutboxWriter
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter) (*Publisher, error) {
	if outbox == nil {
		return nil, errors.New("publisher: nil outbox")
	}
	return &Publisher{outbox: outbox}, nil
}

// Publish builds an envelope and writes it to the outbox.
func (p *Publisher) Publish(ctx context.Context, eventType string, event any, meta Meta) (Envelope, error) {
	if p == nil || p.outbox == nil {
		return Envelope{}, errors.New("publisher: not initialized")
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = CorrelationIDFromContext(ctx)
	}
	env, err := BuildEnvelope(eventType, event, meta)
	if err != nil {
		return Envelope{}, err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
