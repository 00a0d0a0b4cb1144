package sse

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hardstakes/arena/internal/p2p/state"
)

// Client is one watcher of the arena event feed.
type Client struct {
	ClientID    string
	MatchID     uint64 // 0 watches every match
	ConnectedAt time.Time
	MessageChan chan state.Event
}

func NewClient(matchID uint64) *Client {
	return &Client{
		ClientID:    uuid.NewString(),
		MatchID:     matchID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan state.Event, 100),
	}
}

// Hub fans committed machine events out to watchers. Publish never blocks:
// a watcher whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	dropped uint64
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		close(c.MessageChan)
		delete(h.clients, clientID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts events not delivered to a full watcher.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Publish is the machine observer.
func (h *Hub) Publish(ev state.Event) {
	h.mu.RLock()
	var missed uint64
	for _, c := range h.clients {
		if c.MatchID != 0 && c.MatchID != ev.MatchID {
			continue
		}
		select {
		case c.MessageChan <- ev:
		default:
			missed++
		}
	}
	h.mu.RUnlock()
	if missed > 0 {
		h.mu.Lock()
		h.dropped += missed
		h.mu.Unlock()
	}
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.MessageChan)
		delete(h.clients, id)
	}
}
