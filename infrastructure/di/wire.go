//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"mindmap/application/ports"
	"mindmap/application/realtime"
	"mindmap/infrastructure/config"
	"mindmap/infrastructure/messaging/apigateway"
	"mindmap/interfaces/websocket"
	"mindmap/pkg/observability"
)

// CoreSet provides configuration-independent infrastructure
var CoreSet = wire.NewSet(
	ProvideLogging,
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideTracer,
)

// ServerSet wires the REST API and the in-process relay
var ServerSet = wire.NewSet(
	CoreSet,
	ProvideEventBridgeClient,
	ProvideCollector,
	ProvideDocumentStore,
	ProvideDocumentRepository,
	ProvideEventPublisher,
	ProvideDocumentService,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideErrorHandler,
	ProvideJWTValidator,
	ProvideRateLimiter,
	ProvideHub,
	ProvideLocalRegistry,
	wire.Bind(new(ports.Transport), new(*websocket.Hub)),
	wire.Bind(new(realtime.Metrics), new(*observability.Collector)),
	ProvidePresence,
	ProvideRelay,
	ProvideDispatcher,
	ProvideRelayServer,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// LambdaRelaySet wires the API Gateway websocket relay
var LambdaRelaySet = wire.NewSet(
	CoreSet,
	ProvideCloudWatchClient,
	ProvideCloudWatchMetrics,
	ProvideRoomRegistry,
	ProvideGatewayTransport,
	ProvideJWTValidator,
	wire.Bind(new(ports.Transport), new(*apigateway.Transport)),
	wire.Bind(new(realtime.Metrics), new(*observability.Metrics)),
	ProvidePresence,
	ProvideRelay,
	ProvideDispatcher,
	wire.Struct(new(LambdaRelay), "*"),
)

// InitializeContainer creates a fully wired server container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(ServerSet)
	return nil, nil, nil
}

// InitializeLambdaRelay creates the websocket Lambda dependencies
func InitializeLambdaRelay(ctx context.Context, cfg *config.Config) (*LambdaRelay, func(), error) {
	wire.Build(LambdaRelaySet)
	return nil, nil, nil
}
