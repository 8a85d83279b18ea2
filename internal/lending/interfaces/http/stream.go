package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	lendingapp "laptop-lending/internal/lending/application"
)

const clientBuffer = 16

// StreamMessage is the wire form of a change on the SSE and WebSocket streams.
type StreamMessage struct {
	Kind       lendingapp.ChangeKind `json:"kind"`
	Seq        uint64                `json:"seq"`
	OccurredAt time.Time             `json:"occurred_at"`
	Data       lendingapp.Change     `json:"data"`
}

// NewStreamMessage wraps a change for streaming.
func NewStreamMessage(change lendingapp.Change) StreamMessage {
	return StreamMessage{
		Kind:       change.Kind(),
		Seq:        change.Sequence(),
		OccurredAt: change.OccurredAt(),
		Data:       change,
	}
}

// ConnectionObserver is told when stream clients come and go.
type ConnectionObserver interface {
	StreamConnected(transport string, delta int)
}

// Broker fans out encoded changes to connected clients. Slow clients miss messages.
type Broker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	logger  logrus.FieldLogger
}

// NewBroker constructs a broker.
func NewBroker(logger logrus.FieldLogger) *Broker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broker{clients: make(map[chan []byte]struct{}), logger: logger}
}

// Attach subscribes the broker to every change kind.
func (b *Broker) Attach(notifier *lendingapp.Notifier) (func(), error) {
	return notifier.Subscribe("stream", b.Handle)
}

// Handle encodes and broadcasts one change.
func (b *Broker) Handle(_ context.Context, change lendingapp.Change) error {
	payload, err := json.Marshal(NewStreamMessage(change))
	if err != nil {
		return err
	}
	b.broadcast(payload)
	return nil
}

// Subscribe registers a new client channel.
func (b *Broker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, clientBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a client channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Clients returns the number of connected clients.
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// broadcast sends under the lock so Unsubscribe never closes a channel mid-send.
func (b *Broker) broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.WithField("dropped", dropped).Debug("stream clients lagging")
	}
}

// StreamHandler serves the SSE change stream.
type StreamHandler struct {
	broker    *Broker
	observer  ConnectionObserver
	keepAlive time.Duration
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *Broker, observer ConnectionObserver) *StreamHandler {
	return &StreamHandler{broker: broker, observer: observer, keepAlive: 25 * time.Second}
}

// ServeHTTP handles GET /api/v1/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)
	if h.observer != nil {
		h.observer.StreamConnected("sse", 1)
		defer h.observer.StreamConnected("sse", -1)
	}

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	notify := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: change\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
