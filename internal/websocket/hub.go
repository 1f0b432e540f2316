package websocket

import (
	"context"
	"log"
	"sync"
	"time"
)

const queueSize = 256

// Message is the envelope written to viewers
type Message struct {
	Type      string                 `json:"type"`
	Payload   interface{}            `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type delivery struct {
	room string
	msg  *Message
	skip string // client ID that should not receive msg
}

// Hub fans messages out to the clients of a room. Membership changes and
// deliveries are serialized through Run.
type Hub struct {
	join  chan *Client
	leave chan *Client
	queue chan delivery

	done     chan struct{}
	doneOnce sync.Once

	mu    sync.RWMutex
	rooms map[string]map[string]*Client
}

// NewHub creates a hub. Call Run to start delivering.
func NewHub() *Hub {
	return &Hub{
		join:  make(chan *Client),
		leave: make(chan *Client),
		queue: make(chan delivery, queueSize),
		done:  make(chan struct{}),
		rooms: make(map[string]map[string]*Client),
	}
}

// Run processes joins, leaves and broadcasts until ctx is cancelled, then
// disconnects every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.join:
			h.add(c)
		case c := <-h.leave:
			h.remove(c)
		case d := <-h.queue:
			h.deliver(d)
		case <-ctx.Done():
			log.Println("[WebSocket] Hub shutting down")
			h.shutdown()
			return
		}
	}
}

// Join adds client to its room. It returns false once the hub has shut down.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.join <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave removes client from its room
func (h *Hub) Leave(client *Client) {
	select {
	case h.leave <- client:
	case <-h.done:
	}
}

// BroadcastToRoom queues message for every client in room. It returns
// without sending once the hub has shut down.
func (h *Hub) BroadcastToRoom(room string, message *Message) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	select {
	case h.queue <- delivery{room: room, msg: message}:
	case <-h.done:
	}
}

// GetRoomSize returns the number of clients in room
func (h *Hub) GetRoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	members := h.rooms[c.Room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[c.Room] = members
	}
	members[c.ID] = c
	size := len(members)
	h.mu.Unlock()

	log.Printf("[WebSocket] %s joined %s as client %s (%d viewers)", c.Username, c.Room, c.ID, size)
	h.post(delivery{room: c.Room, msg: presence("viewer_joined", c, size), skip: c.ID})
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	members := h.rooms[c.Room]
	if _, ok := members[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(members, c.ID)
	size := len(members)
	if size == 0 {
		delete(h.rooms, c.Room)
	}
	h.mu.Unlock()

	c.closeSend()
	log.Printf("[WebSocket] %s left %s (%d viewers)", c.Username, c.Room, size)
	if size > 0 {
		h.post(delivery{room: c.Room, msg: presence("viewer_left", c, size)})
	}
}

// post queues from inside the Run loop, where blocking on the queue would
// deadlock
func (h *Hub) post(d delivery) {
	select {
	case h.queue <- d:
	default:
		log.Printf("[WebSocket] Warning: queue full, dropping %s for %s", d.msg.Type, d.room)
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.rooms[d.room] {
		if id == d.skip {
			continue
		}
		if !c.offer(d.msg) {
			log.Printf("[WebSocket] Warning: client %s is too slow, dropping %s", id, d.msg.Type)
		}
	}
}

func (h *Hub) shutdown() {
	h.doneOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, members := range rooms {
		for _, c := range members {
			c.closeSend()
			if c.conn != nil {
				c.conn.Close()
			}
		}
	}
}

func presence(kind string, c *Client, viewers int) *Message {
	return &Message{
		Type: kind,
		Payload: map[string]interface{}{
			"username":  c.Username,
			"client_id": c.ID,
			"viewers":   viewers,
		},
		Timestamp: time.Now(),
	}
}
