package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is stamped on envelopes whose Meta leaves it unset.
const SchemaVersion = 1

// Envelope is the outbox unit: one change, its type and delivery metadata.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	SubjectID     string          `json:"subject_id"`
	Sequence      uint64          `json:"sequence"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("eventing: %s %s has no payload", e.EventType, e.EventID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("eventing: decode %s: %w", e.EventType, err)
	}
	return nil
}

// Meta carries optional envelope fields. Zero values are filled in by BuildEnvelope.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	SubjectID     string
	Sequence      uint64
	SchemaVersion int
}

func (m Meta) withDefaults() Meta {
	if m.EventID == "" {
		m.EventID = NewEventID()
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now()
	}
	m.OccurredAt = m.OccurredAt.UTC()
	if m.CorrelationID == "" {
		m.CorrelationID = m.EventID
	}
	if m.SchemaVersion == 0 {
		m.SchemaVersion = SchemaVersion
	}
	return m
}

// BuildEnvelope marshals event and wraps it. The correlation id defaults to the event id.
func BuildEnvelope(eventType string, event any, meta Meta) (Envelope, error) {
	eventType = strings.TrimSpace(eventType)
	switch {
	case event == nil:
		return Envelope{}, errors.New("eventing: nil event")
	case eventType == "":
		return Envelope{}, errors.New("eventing: empty event type")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventing: encode %s: %w", eventType, err)
	}
	meta = meta.withDefaults()
	return Envelope{
		EventID:       meta.EventID,
		EventType:     eventType,
		OccurredAt:    meta.OccurredAt,
		CorrelationID: meta.CorrelationID,
		SubjectID:     meta.SubjectID,
		Sequence:      meta.Sequence,
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}, nil
}
