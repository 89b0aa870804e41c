//go:build !wireinject
// +build !wireinject

// Injectors for the provider sets declared in wire.go. Keep the two files in
// step when a provider changes.

package di

import (
	"context"

	"mindmap/infrastructure/config"
)

// Injectors from wire.go:

// InitializeContainer creates a fully wired server container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	logging, err := ProvideLogging(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := ProvideLogger(logging)
	tracer := ProvideTracer(cfg)
	collector := ProvideCollector(cfg)
	awsConfig, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	client := ProvideDynamoDBClient(awsConfig)
	documentStore, cleanup, err := ProvideDocumentStore(ctx, cfg, client, logger)
	if err != nil {
		return nil, nil, err
	}
	documentRepository := ProvideDocumentRepository(documentStore, tracer, collector)
	eventbridgeClient := ProvideEventBridgeClient(awsConfig)
	eventPublisher := ProvideEventPublisher(cfg, eventbridgeClient, logger)
	documentService := ProvideDocumentService(documentRepository, eventPublisher, logger)
	commandBus, err := ProvideCommandBus(documentService, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	queryBus, err := ProvideQueryBus(documentService)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	jwtValidator, err := ProvideJWTValidator(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	tokenBucketLimiter, cleanup2 := ProvideRateLimiter(cfg)
	hub, cleanup3 := ProvideHub(collector, logger)
	roomRegistry := ProvideLocalRegistry()
	presence := ProvidePresence(roomRegistry, hub, collector, logger)
	relay := ProvideRelay(presence, roomRegistry, logger)
	dispatcher := ProvideDispatcher(presence, relay, collector, logger)
	errorHandler := ProvideErrorHandler(cfg, logger)
	server := ProvideRelayServer(cfg, hub, dispatcher, errorHandler, logger)
	router := ProvideRouter(cfg, commandBus, queryBus, errorHandler, jwtValidator, tokenBucketLimiter, server, collector, documentStore, logger)
	container := &Container{
		Config:     cfg,
		Logging:    logging,
		Logger:     logger,
		Tracer:     tracer,
		Collector:  collector,
		Store:      documentStore,
		Repository: documentRepository,
		Service:    documentService,
		CommandBus: commandBus,
		QueryBus:   queryBus,
		Validator:  jwtValidator,
		Limiter:    tokenBucketLimiter,
		Hub:        hub,
		Dispatcher: dispatcher,
		Router:     router,
	}
	return container, func() {
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}

// InitializeLambdaRelay creates the websocket Lambda dependencies
func InitializeLambdaRelay(ctx context.Context, cfg *config.Config) (*LambdaRelay, func(), error) {
	logging, err := ProvideLogging(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := ProvideLogger(logging)
	tracer := ProvideTracer(cfg)
	awsConfig, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cloudwatchClient := ProvideCloudWatchClient(awsConfig)
	metrics := ProvideCloudWatchMetrics(cfg, cloudwatchClient, logger)
	client := ProvideDynamoDBClient(awsConfig)
	roomRegistry, cleanup, err := ProvideRoomRegistry(cfg, client, logger)
	if err != nil {
		return nil, nil, err
	}
	transport := ProvideGatewayTransport(cfg, awsConfig, logger)
	presence := ProvidePresence(roomRegistry, transport, metrics, logger)
	relay := ProvideRelay(presence, roomRegistry, logger)
	dispatcher := ProvideDispatcher(presence, relay, metrics, logger)
	jwtValidator, err := ProvideJWTValidator(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	lambdaRelay := &LambdaRelay{
		Config:     cfg,
		Logging:    logging,
		Logger:     logger,
		Tracer:     tracer,
		Metrics:    metrics,
		Registry:   roomRegistry,
		Presence:   presence,
		Dispatcher: dispatcher,
		Validator:  jwtValidator,
	}
	return lambdaRelay, func() {
		cleanup()
	}, nil
}
