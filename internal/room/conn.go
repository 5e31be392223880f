package room

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn wraps one websocket. Writes are serialized with a mutex; gorilla
// permits a single concurrent writer.
type Conn struct {
	id string
	ws *websocket.Conn

	mu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{id: newConnID(), ws: ws}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Send writes one text frame. An error means this connection is broken;
// the caller decides whether that matters.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Read blocks for the next text frame.
func (c *Conn) Read() ([]byte, error) {
	_, frame, err := c.ws.ReadMessage()
	return frame, err
}

// Close sends a close control frame and tears the socket down.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
	)
	c.mu.Unlock()
	return c.ws.Close()
}
