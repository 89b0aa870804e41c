package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mindmap/application/ports"
	"mindmap/application/realtime"
)

// Hub tracks live websocket connections by connection id and delivers
// frames to their send buffers. It never blocks a caller.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	metrics realtime.Metrics
	logger  *zap.Logger
}

var _ ports.Transport = (*Hub)(nil)

// NewHub creates a new hub
func NewHub(metrics realtime.Metrics, logger *zap.Logger) *Hub {
	if metrics == nil {
		metrics = realtime.NopMetrics{}
	}
	return &Hub{
		clients: make(map[string]*Client),
		metrics: metrics,
		logger:  logger,
	}
}

// Deliver enqueues a frame for connectionID. When the buffer is full a
// droppable frame is discarded and any other frame evicts the connection.
func (h *Hub) Deliver(_ context.Context, connectionID string, d ports.Delivery) error {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return ports.ErrConnectionGone
	}

	switch client.enqueue(d.Data) {
	case enqueued:
		return nil
	case closed:
		return ports.ErrConnectionGone
	}

	if d.Droppable {
		h.metrics.FrameDropped()
		return nil
	}

	h.logger.Warn("Evicting slow connection",
		zap.String("connectionID", connectionID),
		zap.Int("buffered", client.buffered()),
	)
	h.remove(client)
	client.close()
	return ports.ErrConnectionGone
}

// Count returns the number of live connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.metrics.ConnectionsChanged(0)
	h.logger.Info("Hub shut down", zap.Int("closed", len(clients)))
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectionsChanged(n)
	h.logger.Debug("Client registered", zap.String("connectionID", c.id), zap.Int("connections", n))
}

// remove drops c if it is still the registered client for its id
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	current, ok := h.clients[c.id]
	if ok && current == c {
		delete(h.clients, c.id)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok && current == c {
		h.metrics.ConnectionsChanged(n)
		h.logger.Debug("Client unregistered", zap.String("connectionID", c.id), zap.Int("connections", n))
		return true
	}
	return false
}
