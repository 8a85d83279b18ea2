package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// WebSocketHandler streams changes over WebSocket. Clients only listen; inbound
// messages other than control frames are discarded.
type WebSocketHandler struct {
	broker   *Broker
	observer ConnectionObserver
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler constructs a WebSocket stream handler. A nil checkOrigin allows any origin.
func NewWebSocketHandler(broker *Broker, observer ConnectionObserver, logger logrus.FieldLogger, checkOrigin func(r *http.Request) bool) *WebSocketHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketHandler{
		broker:   broker,
		observer: observer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeHTTP handles GET /api/v1/ws.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}
	ch := h.broker.Subscribe()
	if h.observer != nil {
		h.observer.StreamConnected("websocket", 1)
	}
	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, ch, done)

	h.broker.Unsubscribe(ch)
	if h.observer != nil {
		h.observer.StreamConnected("websocket", -1)
	}
}

// readPump keeps the read deadline fresh and reports when the peer goes away.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Debug("websocket read")
			}
			return
		}
	}
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, ch <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"ready"}`)); err != nil {
		return
	}
	for {
		select {
		case message, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
