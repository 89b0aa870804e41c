package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/valueobjects"
	"mindmap/domain/events"
)

const (
	relayWriteWait     = 10 * time.Second
	relayMessageBuffer = 256
)

// ErrRelayClosed is returned when sending on a closed relay connection
var ErrRelayClosed = errors.New("relay connection closed")

// RelayClient is one participant connection to the relay endpoint
type RelayClient struct {
	conn     *websocket.Conn
	logger   *zap.Logger
	messages chan events.Message

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// DialRelay connects to the relay at url (ws:// or wss://). A non-empty
// token is sent as a bearer Authorization header.
func DialRelay(ctx context.Context, url, token string, logger *zap.Logger) (*RelayClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("relay dial failed: %w", err)
	}

	c := &RelayClient{
		conn:     conn,
		logger:   logger,
		messages: make(chan events.Message, relayMessageBuffer),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Messages delivers relayed events in arrival order. The channel is closed
// when the connection ends.
func (c *RelayClient) Messages() <-chan events.Message {
	return c.messages
}

// JoinRoom moves this connection into roomID
func (c *RelayClient) JoinRoom(roomID string, info events.ParticipantInfo) error {
	frame, err := events.NewInbound(events.JoinRoom, events.JoinRoomPayload{RoomID: roomID, UserInfo: info})
	if err != nil {
		return err
	}
	return c.write(frame)
}

// Send relays a graph mutation to the other participants of the room
func (c *RelayClient) Send(m aggregates.Mutation) error {
	frame, err := events.IntentFor(m)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// SendCursor relays the pointer position
func (c *RelayClient) SendCursor(pos valueobjects.Position) error {
	frame, err := events.NewInbound(events.CursorMove, events.CursorPayload{Position: pos})
	if err != nil {
		return err
	}
	return c.write(frame)
}

// Close ends the connection
func (c *RelayClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(relayWriteWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *RelayClient) write(frame events.Inbound) error {
	select {
	case <-c.done:
		return ErrRelayClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("relay write failed: %w", err)
	}
	return nil
}

func (c *RelayClient) readLoop() {
	defer close(c.messages)
	for {
		var msg events.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Relay connection lost", zap.Error(err))
			}
			return
		}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}
