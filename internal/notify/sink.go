package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"laptop-lending/internal/eventing"
	lendingapp "laptop-lending/internal/lending/application"
)

// Clock provides time for dedupe windows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type sendRecord struct {
	at   time.Time
	hash string
}

// Sink renders relayed lending events and sends them on a channel.
type Sink struct {
	channel      Channel
	template     *Template
	clock        Clock
	kinds        map[string]struct{}
	dedupeWindow time.Duration
	mu           sync.Mutex
	sent         map[string]sendRecord
}

// Option configures the sink.
type Option func(*Sink)

// WithEventTypes limits notifications to the given change kinds.
// Envelopes of other types are acknowledged without sending.
func WithEventTypes(kinds ...lendingapp.ChangeKind) Option {
	return func(s *Sink) {
		if len(kinds) == 0 {
			return
		}
		s.kinds = make(map[string]struct{}, len(kinds))
		for _, kind := range kinds {
			s.kinds[string(kind)] = struct{}{}
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(s *Sink) {
		if window > 0 {
			s.dedupeWindow = window
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(s *Sink) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSink constructs a notification sink.
func NewSink(channel Channel, template *Template, opts ...Option) (*Sink, error) {
	if channel == nil {
		return nil, errors.New("notify sink: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	s := &Sink{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Deliver implements eventing.Sink.
func (s *Sink) Deliver(ctx context.Context, env eventing.Envelope) error {
	if s == nil || s.channel == nil {
		return errors.New("notify sink: not initialized")
	}
	if s.kinds != nil {
		if _, ok := s.kinds[env.EventType]; !ok {
			return nil
		}
	}
	data, err := BuildTemplateData(env)
	if err != nil {
		return err
	}
	content, err := s.template.Render(data)
	if err != nil {
		return err
	}
	key := env.SubjectID + "|" + env.EventType
	if !s.shouldSend(key, content) {
		return nil
	}
	if err := s.channel.Send(ctx, content); err != nil {
		return err
	}
	s.markSent(key, content)
	return nil
}

// BuildTemplateData decodes a lending change envelope into template fields.
func BuildTemplateData(env eventing.Envelope) (TemplateData, error) {
	data := TemplateData{
		Event:         env.EventType,
		EventLabel:    eventLabel(env.EventType),
		OccurredAt:    env.OccurredAt.UTC().Format(time.RFC3339),
		Sequence:      env.Sequence,
		CorrelationID: env.CorrelationID,
	}
	switch lendingapp.ChangeKind(env.EventType) {
	case lendingapp.KindDeviceStateChanged:
		var change lendingapp.DeviceStateChanged
		if err := env.Decode(&change); err != nil {
			return data, err
		}
		data.DeviceID = change.Device.ID
		data.Tier = string(change.Device.Tier)
		data.Status = string(change.NewState)
		data.Summary = fmt.Sprintf("Device %s %s: %s -> %s", change.Device.Brand, change.Device.Model, change.OldState, change.NewState)
	case lendingapp.KindRequesterServedChanged:
		var change lendingapp.RequesterServedChanged
		if err := env.Decode(&change); err != nil {
			return data, err
		}
		data.RequesterID = change.Requester.ID
		data.Tier = string(change.Requester.Tier)
		if change.NewFlag {
			data.Summary = fmt.Sprintf("%s now holds a device", change.Requester.Name)
		} else {
			data.Summary = fmt.Sprintf("%s no longer holds a device", change.Requester.Name)
		}
	case lendingapp.KindQueueSizeChanged:
		var change lendingapp.QueueSizeChanged
		if err := env.Decode(&change); err != nil {
			return data, err
		}
		data.RequesterID = change.RequesterID
		data.Tier = string(change.Tier)
		data.Summary = fmt.Sprintf("Queue %s size %d (%+d)", change.Tier, change.NewSize, change.Delta)
	case lendingapp.KindReservationCreated:
		var change lendingapp.ReservationCreated
		if err := env.Decode(&change); err != nil {
			return data, err
		}
		fillReservation(&data, change.Reservation.ID, change.Reservation.RequesterID, change.Reservation.DeviceID, string(change.Reservation.Tier))
		data.Status = string(change.Reservation.Status)
		data.Summary = "Device reserved"
	case lendingapp.KindReservationStatusChanged:
		var change lendingapp.ReservationStatusChanged
		if err := env.Decode(&change); err != nil {
			return data, err
		}
		fillReservation(&data, change.Reservation.ID, change.Reservation.RequesterID, change.Reservation.DeviceID, string(change.Reservation.Tier))
		data.Status = string(change.NewStatus)
		data.Summary = fmt.Sprintf("Reservation %s", change.NewStatus)
	default:
		return data, fmt.Errorf("notify: unknown event type %q", env.EventType)
	}
	return data, nil
}

func fillReservation(data *TemplateData, id, requesterID, deviceID, tier string) {
	data.ReservationID = id
	data.RequesterID = requesterID
	data.DeviceID = deviceID
	data.Tier = tier
}

func eventLabel(eventType string) string {
	switch lendingapp.ChangeKind(eventType) {
	case lendingapp.KindDeviceStateChanged:
		return "Device"
	case lendingapp.KindRequesterServedChanged:
		return "Requester"
	case lendingapp.KindQueueSizeChanged:
		return "Queue"
	case lendingapp.KindReservationCreated:
		return "Reserved"
	case lendingapp.KindReservationStatusChanged:
		return "Returned"
	default:
		return eventType
	}
}

func (s *Sink) shouldSend(key, content string) bool {
	if s.dedupeWindow <= 0 {
		return true
	}
	now := s.clock.Now().UTC()
	s.mu.Lock()
	record, ok := s.sent[key]
	s.mu.Unlock()
	if !ok {
		return true
	}
	return record.hash != hashContent(content) || now.Sub(record.at) >= s.dedupeWindow
}

func (s *Sink) markSent(key, content string) {
	if s.dedupeWindow <= 0 {
		return
	}
	s.mu.Lock()
	s.sent[key] = sendRecord{at: s.clock.Now().UTC(), hash: hashContent(content)}
	s.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}
