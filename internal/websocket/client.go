package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxInboundMessageBytes = 4096
	sendBuffer             = 256
)

var (
	ErrClientClosed = errors.New("client connection is closed")
	ErrClientBusy   = errors.New("client send buffer is full")
)

// InboundMessage is a message received from a viewer. Payload stays raw so
// handlers decode what they expect.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessageHandler handles one inbound message
type MessageHandler func(client *Client, msg *InboundMessage)

// Client is one viewer connection
type Client struct {
	ID       string
	Username string
	Room     string

	conn      *websocket.Conn
	hub       *Hub
	onMessage MessageHandler

	mu     sync.Mutex
	send   chan *Message
	closed bool
}

// NewClient wraps conn. Register it with hub.Join, then start WritePump
// and ReadPump.
func NewClient(hub *Hub, conn *websocket.Conn, room, username string, onMessage MessageHandler) *Client {
	return &Client{
		ID:        uuid.NewString(),
		Username:  username,
		Room:      room,
		conn:      conn,
		hub:       hub,
		onMessage: onMessage,
		send:      make(chan *Message, sendBuffer),
	}
}

// SendMessage queues a message for this client only
func (c *Client) SendMessage(msgType string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- &Message{Type: msgType, Payload: payload, Timestamp: time.Now()}:
		return nil
	default:
		return ErrClientBusy
	}
}

// offer queues msg without blocking and reports whether it was accepted
func (c *Client) offer(msg *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump decodes inbound messages until the connection drops, then
// leaves the hub
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg InboundMessage
		err := c.conn.ReadJSON(&msg)
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
			c.SendMessage("error", map[string]string{"error": "invalid message"})
			continue
		case err != nil:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WebSocket] Client %s read error: %v", c.ID, err)
			}
			return
		}

		if c.onMessage != nil {
			c.onMessage(c, &msg)
		}
	}
}

// WritePump writes queued messages, one per frame, and keeps the
// connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
