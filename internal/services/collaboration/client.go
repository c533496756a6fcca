package collaboration

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client is one live websocket connection. Membership (session, user id,
// role) lives in the Registry, not here.
type Client struct {
	ID   string
	Conn *websocket.Conn // nil in tests

	// Send is drained by WritePump. Only enqueue and Close touch it from the
	// server side.
	Send chan []byte

	mu     sync.Mutex
	closed bool

	lastActive atomic.Int64
	manager    *SessionManager
}

// NewClient wraps conn. conn may be nil when frames are read straight off Send.
func NewClient(conn *websocket.Conn, manager *SessionManager) *Client {
	c := &Client{
		ID:      ksuid.New().String(),
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		manager: manager,
	}
	c.touch()
	return c
}

// enqueue never blocks. A client whose buffer is full is too slow to keep up
// and gets disconnected; its read pump then runs Leave.
func (c *Client) enqueue(msg []byte) bool {
	if msg == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.Send <- msg:
		return true
	default:
		slog.Warn("client send buffer full, disconnecting", "client_id", c.ID)
		c.closeLocked()
		return false
	}
}

// Close stops delivery. WritePump sends a close frame and drops the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)

	if c.Conn == nil {
		return
	}
	// unblock a read pump stuck in ReadMessage
	c.Conn.SetReadDeadline(time.Now())
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Client) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastActive.Load()))
}

// ReadPump reads frames until the connection fails, then leaves the session.
// It owns the Leave call, so disconnect handling runs exactly once.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.manager.Leave(context.WithoutCancel(ctx), c)
		c.manager.detach(c)
		c.Close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client_id", c.ID, "error", err)
			}
			return
		}

		c.touch()
		c.manager.Dispatch(ctx, c, message)
	}
}

// WritePump writes one frame per message and pings the peer periodically.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
