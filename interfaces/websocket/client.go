package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	// Send buffer size
	sendBufferSize = 256
)

type enqueueResult int

const (
	enqueued enqueueResult = iota
	full
	closed
)

// FrameHandler consumes inbound frames and connection teardown. Errors are
// logged by the handler; the connection stays open.
type FrameHandler interface {
	HandleFrame(ctx context.Context, connectionID string, data []byte) error
	Disconnect(ctx context.Context, connectionID string) error
}

// Client represents one websocket connection
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	logger *zap.Logger

	mu       sync.Mutex
	send     chan []byte
	isClosed bool
	once     sync.Once
}

func newClient(id, userID string, conn *websocket.Conn, bufferSize int, logger *zap.Logger) *Client {
	if bufferSize <= 0 {
		bufferSize = sendBufferSize
	}
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		logger: logger.With(
			zap.String("connectionID", id),
			zap.String("userID", userID),
		),
	}
}

// ID returns the client's connection id
func (c *Client) ID() string {
	return c.id
}

func (c *Client) enqueue(data []byte) enqueueResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return closed
	}
	select {
	case c.send <- data:
		return enqueued
	default:
		return full
	}
}

func (c *Client) buffered() int {
	return len(c.send)
}

// close stops the write pump and tears down the socket. Safe to call more
// than once.
func (c *Client) close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.isClosed = true
		close(c.send)
		c.mu.Unlock()
		c.conn.Close()
	})
}

// readPump hands each text frame to the handler in arrival order. It
// returns when the connection fails or is closed.
func (c *Client) readPump(ctx context.Context, handler FrameHandler) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			handler.HandleFrame(ctx, c.id, message)
		case websocket.BinaryMessage:
			c.logger.Debug("Binary messages not supported")
		}
	}
}

// writePump drains the send buffer to the socket and keeps it alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
