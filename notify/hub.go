package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/models"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	// gorilla connections allow one concurrent writer
	mu sync.Mutex
}

func (c *client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub pushes events to the websocket connections of the users they concern
type Hub struct {
	clients map[string]map[*client]struct{}
	mutex   sync.Mutex
}

// NewHub returns an empty Hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*client]struct{})}
}

// ServeWS upgrades the request and keeps userID subscribed until the client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorw("websocket upgrade error", "error", err)
		return
	}
	c := &client{conn: conn}
	h.add(userID, c)
	zap.S().Infow("user connected to /ws/events", "userId", userID)

	defer func() {
		h.remove(userID, c)
		conn.Close()
		zap.S().Infow("user disconnected from /ws/events", "userId", userID)
	}()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) add(userID string, c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
}

func (h *Hub) remove(userID string, c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.clients[userID], c)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// Connected reports how many connections userID has open
func (h *Hub) Connected(userID string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients[userID])
}

// Notify pushes ev to its recipients and its actor. Users with no open connection
// are skipped.
func (h *Hub) Notify(_ context.Context, ev models.Event) error {
	targets := make(map[string]bool, len(ev.Recipients)+1)
	for _, id := range ev.Recipients {
		targets[id] = true
	}
	if ev.Actor != "" {
		targets[ev.Actor] = true
	}

	h.mutex.Lock()
	var conns []*client
	var owners []string
	for id := range targets {
		for c := range h.clients[id] {
			conns = append(conns, c)
			owners = append(owners, id)
		}
	}
	h.mutex.Unlock()

	payload := map[string]interface{}{
		"event": ev.Type,
		"data":  ev,
	}
	for i, c := range conns {
		if err := c.write(payload); err != nil {
			zap.S().Errorw("failed to push event", "userId", owners[i], "eventId", ev.ID, "error", err)
			h.remove(owners[i], c)
			c.conn.Close()
		}
	}
	return nil
}
