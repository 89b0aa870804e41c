package di

import (
	"mindmap/application/commands/bus"
	"mindmap/application/ports"
	querybus "mindmap/application/queries/bus"
	"mindmap/application/realtime"
	"mindmap/application/services"
	"mindmap/infrastructure/config"
	"mindmap/interfaces/http/rest"
	"mindmap/interfaces/websocket"
	"mindmap/pkg/auth"
	"mindmap/pkg/observability"

	"go.uber.org/zap"
)

// Container holds the dependencies of the API server and the REST Lambda
type Container struct {
	Config     *config.Config
	Logging    *Logging
	Logger     *zap.Logger
	Tracer     *observability.Tracer
	Collector  *observability.Collector
	Store      *DocumentStore
	Repository ports.DocumentRepository
	Service    *services.DocumentService
	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
	Validator  *auth.JWTValidator
	Limiter    *auth.TokenBucketLimiter
	Hub        *websocket.Hub
	Dispatcher *realtime.Dispatcher
	Router     *rest.Router
}

// LambdaRelay holds the dependencies of the API Gateway websocket handler
type LambdaRelay struct {
	Config     *config.Config
	Logging    *Logging
	Logger     *zap.Logger
	Tracer     *observability.Tracer
	Metrics    *observability.Metrics
	Registry   ports.RoomRegistry
	Presence   *realtime.Presence
	Dispatcher *realtime.Dispatcher
	Validator  *auth.JWTValidator
}
