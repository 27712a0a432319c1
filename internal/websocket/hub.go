package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a change notification pushed to the clients of one home.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks connected clients per home and fans messages out to them.
type Hub struct {
	mu     sync.RWMutex
	homes  map[int64]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		homes:  make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.homes[c.homeID]
	if !ok {
		set = make(map[*Client]struct{})
		h.homes[c.homeID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client and closes its send channel. Calling it twice
// is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.homes[c.homeID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.homes, c.homeID)
	}
}

// Broadcast sends msg to every client connected for homeID. Slow clients
// with a full buffer miss the message.
func (h *Hub) Broadcast(homeID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.homes[homeID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping message for slow client", "home_id", homeID, "type", msg.Type)
		}
	}
}

// ClientCount returns the number of clients connected for homeID.
func (h *Hub) ClientCount(homeID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.homes[homeID])
}
