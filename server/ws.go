package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-companion/engine"
	"github.com/becomeliminal/nim-companion/internal/applog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 120 * time.Second
	pingPeriod = pongWait / 2
	sendBuffer = 16
)

// Websocket frame types.
const (
	EventMessage  = "message"
	EventResponse = "response"
	EventCheckIn  = "checkin"
	EventError    = "error"
)

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Event is a frame sent to the client.
type Event struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageCount   int    `json:"message_count,omitempty"`
	State          string `json:"state,omitempty"`
	Error          string `json:"error,omitempty"`
}

func outputEvent(kind string, out *engine.Output) Event {
	return Event{
		Type:           kind,
		Content:        out.Text,
		ConversationID: out.ConversationID,
		MessageCount:   out.MessageCount,
		State:          string(out.State),
	}
}

type client struct {
	userID string
	send   chan Event
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub tracks websocket clients per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*client]struct{})}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Deliver pushes a check-in to every client of userID. Slow clients miss it.
// It matches engine.Deliver.
func (h *Hub) Deliver(userID string, out *engine.Output) {
	if out == nil {
		return
	}
	ev := outputEvent(EventCheckIn, out)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- ev:
		default:
			applog.Warn("[SERVER] Dropped check-in for slow client", "user_id", userID)
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for c := range set {
			c.close()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warn("[SERVER] Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{
		userID: userID,
		send:   make(chan Event, sendBuffer),
		done:   make(chan struct{}),
	}
	s.hub.register(c)
	defer s.hub.unregister(c)
	applog.Info("[SERVER] Websocket connected", "user_id", userID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, c)
		cancel()
		// Unblocks the read loop.
		_ = conn.Close()
	}()

	s.readLoop(ctx, conn, c)
	c.close()
	<-writerDone
	applog.Info("[SERVER] Websocket disconnected", "user_id", userID)
}

// readLoop runs one chat turn per inbound message until the connection
// closes.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.Type != "" && msg.Type != EventMessage {
			c.push(ctx, Event{Type: EventError, Error: "unsupported message type " + msg.Type})
			continue
		}

		out, err := s.engine.Chat(ctx, c.userID, msg.Content)
		if err != nil {
			c.push(ctx, Event{Type: EventError, Error: err.Error()})
			continue
		}
		c.push(ctx, outputEvent(EventResponse, out))
	}
}

func (c *client) push(ctx context.Context, ev Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	case <-ctx.Done():
	}
}

// writeLoop owns all writes to conn.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
