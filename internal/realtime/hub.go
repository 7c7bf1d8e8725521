// Package realtime pushes session status changes to websocket subscribers.
// Delivery is best effort; clients that fall behind are dropped and can
// always fall back to polling.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

// Message is the envelope written to subscribers.
type Message struct {
	Type string               `json:"type"`
	Data services.PaymentView `json:"data"`
}

const MessageStatus = "status"

type subscriber struct {
	conn      *websocket.Conn
	sessionID string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue reports false only when the buffer is full. Messages for a closed
// subscriber are discarded.
func (s *subscriber) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Hub fans engine transitions out to the subscribers of each session. It
// implements reconcile.Observer.
type Hub struct {
	mu         sync.Mutex
	sessions   map[string]map[*subscriber]struct{}
	queryAfter time.Duration
	logger     *slog.Logger
}

func NewHub(queryAfter time.Duration, logger *slog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*subscriber]struct{}),
		queryAfter: queryAfter,
		logger:     logger,
	}
}

// Serve subscribes conn to sessionID, sends the view returned by snapshot,
// and blocks until the connection ends. The subscriber is registered before
// snapshot runs, so a transition that lands meanwhile is still delivered. A
// terminal view closes the stream after it is sent.
func (h *Hub) Serve(conn *websocket.Conn, sessionID string, snapshot func() (*services.PaymentView, error)) {
	sub := &subscriber{conn: conn, sessionID: sessionID, send: make(chan []byte, sendBuffer)}
	h.add(sub)

	current, err := snapshot()
	switch {
	case err != nil:
		h.logger.Warn("load status snapshot failed", "session_id", sessionID, "error", err)
		h.remove(sub)
		sub.close()
	default:
		if payload, err := encode(*current); err == nil {
			sub.enqueue(payload)
		}
		if current.Status.Terminal() {
			h.remove(sub)
			sub.close()
		}
	}

	go h.readPump(sub)
	h.writePump(sub)
}

func (h *Hub) TransitionApplied(tx models.Transaction) {
	payload, err := encode(services.NewPaymentView(tx, time.Now(), h.queryAfter))
	if err != nil {
		h.logger.Error("encode status message failed", "session_id", tx.SessionID, "error", err)
		return
	}

	h.mu.Lock()
	subs := h.sessions[tx.SessionID]
	if tx.Status.Terminal() {
		delete(h.sessions, tx.SessionID)
	}
	h.mu.Unlock()

	for sub := range subs {
		if !sub.enqueue(payload) {
			h.logger.Warn("dropping slow status subscriber", "session_id", tx.SessionID)
			h.remove(sub)
			sub.close()
			continue
		}
		if tx.Status.Terminal() {
			sub.close()
		}
	}
}

// Subscribers reports how many connections are watching sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[sub.sessionID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.sessions[sub.sessionID] = subs
	}
	subs[sub] = struct{}{}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[sub.sessionID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.sessions, sub.sessionID)
	}
}

// readPump only exists to process pongs and notice the peer going away.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.close()
	}()

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("status subscriber read error", "session_id", sub.sessionID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encode(view services.PaymentView) ([]byte, error) {
	return json.Marshal(Message{Type: MessageStatus, Data: view})
}
