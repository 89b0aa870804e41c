package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mindmap/domain/core/valueobjects"
	"mindmap/pkg/auth"
	pkgerrors "mindmap/pkg/errors"
)

// ServerConfig holds websocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	AllowedOrigins  []string
	RequireAuth     bool
}

// DefaultServerConfig returns default websocket server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  sendBufferSize,
	}
}

// Server upgrades relay connections and runs their pumps
type Server struct {
	hub      *Hub
	handler  FrameHandler
	upgrader websocket.Upgrader
	config   ServerConfig
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewServer creates a new websocket server
func NewServer(hub *Hub, handler FrameHandler, config ServerConfig, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *Server {
	return &Server{
		hub:     hub,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		config: config,
		errors: errorHandler,
		logger: logger,
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// The caller identity, when present, was placed in the context by the
// optional authentication middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID string
	if user, err := auth.GetUserFromContext(r.Context()); err == nil {
		userID = user.UserID
	} else if s.config.RequireAuth {
		s.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("Missing authentication token"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := newClient(valueobjects.NewConnectionID(), userID, conn, s.config.SendBufferSize, s.logger)
	s.hub.add(client)
	client.logger.Info("Relay connection established", zap.String("remoteAddr", r.RemoteAddr))

	go client.writePump()

	// the request context lives until this handler returns
	ctx := r.Context()
	client.readPump(ctx, s.handler)

	s.hub.remove(client)
	s.handler.Disconnect(context.WithoutCancel(ctx), client.id)
	client.close()
	client.logger.Info("Relay connection closed")
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
