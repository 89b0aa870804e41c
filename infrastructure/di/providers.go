package di

import (
	"context"
	"fmt"

	"mindmap/application/commands/bus"
	commandhandlers "mindmap/application/commands/handlers"
	"mindmap/application/ports"
	querybus "mindmap/application/queries/bus"
	queryhandlers "mindmap/application/queries/handlers"
	"mindmap/application/realtime"
	"mindmap/application/services"
	"mindmap/infrastructure/config"
	"mindmap/infrastructure/messaging/apigateway"
	"mindmap/infrastructure/messaging/eventbridge"
	"mindmap/infrastructure/messaging/logging"
	"mindmap/infrastructure/persistence/dynamodb"
	"mindmap/infrastructure/persistence/memory"
	"mindmap/infrastructure/persistence/postgres"
	"mindmap/infrastructure/persistence/redis"
	"mindmap/infrastructure/persistence/traced"
	"mindmap/interfaces/http/rest"
	"mindmap/interfaces/http/rest/middleware"
	"mindmap/interfaces/websocket"
	"mindmap/pkg/auth"
	pkgerrors "mindmap/pkg/errors"
	"mindmap/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// developmentSecret signs tokens when no key is configured outside production
const developmentSecret = "mindmap-development-secret"

// Logging bundles the root logger with its runtime-adjustable level
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel
}

// DocumentStore is the selected document backend before decoration. Ping
// is nil for backends with nothing to check.
type DocumentStore struct {
	Repository ports.DocumentRepository
	Ping       func(ctx context.Context) error
}

// ProvideLogging creates the root logger
func ProvideLogging(cfg *config.Config) (*Logging, error) {
	logger, level, err := config.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return &Logging{Logger: logger, Level: level}, nil
}

// ProvideLogger extracts the root logger
func ProvideLogger(l *Logging) *zap.Logger {
	return l.Logger
}

// ProvideAWSConfig creates AWS configuration. Loading does not contact AWS,
// so this is safe for the memory and postgres stores too.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("mindmap-"+cfg.Environment, cfg.EnableTracing)
}

// ProvideCollector creates the Prometheus collector of a long-running server
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(prometheusNamespace(cfg.MetricsNamespace))
}

// ProvideDocumentStore opens the backend named by DOCUMENT_STORE
func ProvideDocumentStore(
	ctx context.Context,
	cfg *config.Config,
	client *awsdynamodb.Client,
	logger *zap.Logger,
) (*DocumentStore, func(), error) {
	switch cfg.DocumentStore {
	case config.StoreDynamoDB:
		ping := func(ctx context.Context) error {
			_, err := client.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(cfg.TableName)})
			return err
		}
		repo := dynamodb.NewDocumentRepository(client, cfg.TableName, logger)
		return &DocumentStore{Repository: repo, Ping: ping}, func() {}, nil

	case config.StorePostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewDocumentRepository(pool, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return &DocumentStore{Repository: repo, Ping: pool.Ping}, pool.Close, nil

	case config.StoreMemory:
		logger.Warn("Using the in-memory document store; documents are lost on restart")
		return &DocumentStore{Repository: memory.NewDocumentRepository()}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown document store %q", cfg.DocumentStore)
	}
}

// ProvideDocumentRepository decorates the selected store with tracing and
// latency metrics
func ProvideDocumentRepository(store *DocumentStore, tracer *observability.Tracer, collector *observability.Collector) ports.DocumentRepository {
	return traced.NewDocumentRepository(store.Repository, tracer, collector)
}

// ProvideEventPublisher publishes to EventBridge when a bus is configured
// and logs events otherwise
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return logging.NewPublisher(logger)
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideDocumentService creates the gated document service
func ProvideDocumentService(repo ports.DocumentRepository, publisher ports.EventPublisher, logger *zap.Logger) *services.DocumentService {
	return services.NewDocumentService(repo, services.NewAccessGate(), publisher, logger)
}

// ProvideCommandBus creates a command bus with the document handlers registered
func ProvideCommandBus(service *services.DocumentService, logger *zap.Logger) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))
	if err := commandhandlers.Register(commandBus, service); err != nil {
		return nil, err
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with the document handlers registered
func ProvideQueryBus(service *services.DocumentService) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus()
	if err := queryhandlers.Register(queryBus, service); err != nil {
		return nil, err
	}
	return queryBus, nil
}

// ProvideErrorHandler creates the HTTP error handler. Development responses
// include error causes.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideJWTValidator creates the token validator
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" && cfg.JWTPublicKey == "" && !cfg.IsProduction() {
		logger.Warn("No JWT key configured, using the development secret")
		secret = developmentSecret
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: cfg.JWTSigningMethod,
		PublicKey:     cfg.JWTPublicKey,
		SecretKey:     secret,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
	})
}

// ProvideRateLimiter creates the per-client request limiter
func ProvideRateLimiter(cfg *config.Config) (*auth.TokenBucketLimiter, func()) {
	limiter := auth.NewPerMinuteLimiter(cfg.RateLimitPerMin)
	return limiter, limiter.Stop
}

// ProvideHub creates the in-process connection hub
func ProvideHub(collector *observability.Collector, logger *zap.Logger) (*websocket.Hub, func()) {
	hub := websocket.NewHub(collector, logger)
	return hub, hub.Shutdown
}

// ProvideLocalRegistry creates the registry of a single relay process
func ProvideLocalRegistry() ports.RoomRegistry {
	return realtime.NewRegistry()
}

// ProvidePresence creates the presence tracker
func ProvidePresence(registry ports.RoomRegistry, transport ports.Transport, metrics realtime.Metrics, logger *zap.Logger) *realtime.Presence {
	return realtime.NewPresence(registry, transport, metrics, logger)
}

// ProvideRelay creates the mutation relay
func ProvideRelay(presence *realtime.Presence, registry ports.RoomRegistry, logger *zap.Logger) *realtime.Relay {
	return realtime.NewRelay(presence, registry, logger)
}

// ProvideDispatcher creates the inbound frame dispatcher
func ProvideDispatcher(presence *realtime.Presence, relay *realtime.Relay, metrics realtime.Metrics, logger *zap.Logger) *realtime.Dispatcher {
	return realtime.NewDispatcher(presence, relay, metrics, logger)
}

// ProvideRelayServer creates the websocket endpoint
func ProvideRelayServer(
	cfg *config.Config,
	hub *websocket.Hub,
	dispatcher *realtime.Dispatcher,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *websocket.Server {
	serverCfg := websocket.DefaultServerConfig()
	serverCfg.SendBufferSize = cfg.SendBufferSize
	serverCfg.AllowedOrigins = cfg.AllowedOrigins
	serverCfg.RequireAuth = cfg.RelayRequireAuth
	return websocket.NewServer(hub, dispatcher, serverCfg, errorHandler, logger)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	validator *auth.JWTValidator,
	limiter *auth.TokenBucketLimiter,
	relayServer *websocket.Server,
	collector *observability.Collector,
	store *DocumentStore,
	logger *zap.Logger,
) *rest.Router {
	routerCfg := rest.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Auth: middleware.AuthConfig{
			Validator:    validator,
			Limiter:      limiter,
			TrustGateway: cfg.TrustGatewayAuth,
		},
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Relay:             relayServer,
		Readiness:         map[string]rest.ReadinessCheck{},
	}
	if cfg.EnableMetrics {
		routerCfg.Metrics = collector.Handler()
		routerCfg.Middlewares = append(routerCfg.Middlewares, collector.Middleware)
	}
	if store.Ping != nil {
		routerCfg.Readiness["document_store"] = store.Ping
	}
	return rest.NewRouter(commandBus, queryBus, errorHandler, routerCfg, logger)
}

// ProvideRoomRegistry selects the shared registry of the Lambda relay
func ProvideRoomRegistry(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (ports.RoomRegistry, func(), error) {
	switch cfg.RegistryBackend {
	case config.RegistryRedis:
		registry, err := redis.NewRegistry(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return registry, func() { registry.Close() }, nil
	case config.RegistryDynamoDB:
		return dynamodb.NewConnectionRegistry(client, cfg.ConnectionsTable, logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry backend %q", cfg.RegistryBackend)
	}
}

// ProvideGatewayTransport delivers frames through the API Gateway
// management API
func ProvideGatewayTransport(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) *apigateway.Transport {
	return apigateway.NewTransport(apigateway.NewClient(awsCfg, cfg.WebSocketEndpoint), logger)
}

// ProvideCloudWatchMetrics creates the buffered CloudWatch metrics of the
// Lambda relay. Shipping is disabled with ENABLE_METRICS=false.
func ProvideCloudWatchMetrics(cfg *config.Config, client *awscloudwatch.Client, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, logger)
	}
	return observability.NewMetrics(namespace, client, logger)
}

func prometheusNamespace(ns string) string {
	out := make([]rune, 0, len(ns))
	for _, r := range ns {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
