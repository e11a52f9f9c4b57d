package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-engine/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
)

// client is the live delivery sink of one websocket session. Events are
// queued on a bounded buffer and written by a single writer goroutine.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	send chan models.ChatEvent
	done chan struct{}
	once sync.Once
	// onOverflow runs when the buffer is full and the client is dropped.
	onOverflow func()
}

func newClient(conn *websocket.Conn, info ConnInfo, buffer int) *client {
	if buffer < 1 {
		buffer = 1
	}
	return &client{
		conn: conn,
		info: info,
		send: make(chan models.ChatEvent, buffer),
		done: make(chan struct{}),
	}
}

// Deliver queues ev without blocking. A client that cannot keep up is closed.
func (c *client) Deliver(ev models.ChatEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		if c.onOverflow != nil {
			c.onOverflow()
		}
		c.Close()
		return false
	}
}

// Close stops the writer, which closes the connection. Safe to call repeatedly.
func (c *client) Close() {
	c.once.Do(func() { close(c.done) })
}

// writeLoop owns all writes to the connection.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readLoop drains inbound frames until the peer goes away. Clients do not
// send commands over the socket; reading keeps control frames flowing.
func (c *client) readLoop() error {
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}
