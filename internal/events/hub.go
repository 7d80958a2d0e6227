// Package events streams entity state changes to browsers over websockets.
// Every connection belongs to one session and only sees that session's
// records.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"stacnav/internal/entity"
	"stacnav/internal/session"
	"stacnav/pkg/models"
)

const (
	writeWait = 2 * time.Second
	// sendBuffer is how many events a client may fall behind before it is
	// dropped.
	sendBuffer = 64
)

// Client owns one websocket. Only its writer goroutine writes to ws after
// registration.
type Client struct {
	sessionID string
	ws        *websocket.Conn
	send      chan []byte
	once      sync.Once
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

type Hub struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	clients map[string]map[*Client]struct{}
}

type Stats struct {
	Sessions int `json:"sessions"`
	Clients  int `json:"clients"`
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		log:     log.WithField("component", "events"),
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Attach streams s's store transitions until s is closed.
func (h *Hub) Attach(s *session.Session) {
	unsubscribe := s.Store.Subscribe(h.Observer(s.ID))
	s.OnClose(func() {
		unsubscribe()
		h.CloseSession(s.ID)
	})
}

// Observer returns a store observer publishing to sessionID's clients.
func (h *Hub) Observer(sessionID string) entity.Observer {
	return func(rec models.EntityRecord) {
		h.Publish(FromRecord(sessionID, rec))
	}
}

// Add registers ws for sessionID and starts its writer.
func (h *Hub) Add(sessionID string, ws *websocket.Conn) *Client {
	c := &Client{sessionID: sessionID, ws: ws, send: make(chan []byte, sendBuffer)}
	h.register(c)
	go h.writeLoop(c)
	return c
}

func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	h.drop(c)
	h.mu.Unlock()
}

// CloseSession disconnects every client of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[sessionID] {
		h.drop(c)
	}
}

// Publish queues ev for its session's clients without blocking. A client
// whose buffer is full is dropped.
func (h *Hub) Publish(ev EntityEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[ev.SessionID] {
		select {
		case c.send <- b:
		default:
			h.log.WithField("session_id", ev.SessionID).Warn("dropping slow client")
			h.drop(c)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Stats{Sessions: len(h.clients)}
	for _, conns := range h.clients {
		st.Clients += len(conns)
	}
	return st
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.sessionID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.sessionID] = conns
	}
	conns[c] = struct{}{}
}

func (h *Hub) writeLoop(c *Client) {
	for b := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
			h.log.WithError(err).WithField("session_id", c.sessionID).Debug("dropping client")
			h.Remove(c)
			return
		}
	}
}

// drop requires h.mu.
func (h *Hub) drop(c *Client) {
	conns := h.clients[c.sessionID]
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.sessionID)
	}
	c.close()
}
