// Package main implements the API Gateway websocket relay Lambda. One
// function serves the $connect, $disconnect and $default routes; room
// membership lives in the shared registry so any instance can fan out.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"mindmap/infrastructure/config"
	"mindmap/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

var relay *di.LambdaRelay

func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.WebSocketEndpoint == "" {
		log.Fatal("WEBSOCKET_ENDPOINT is required")
	}

	relay, _, err = di.InitializeLambdaRelay(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize relay: %v", err)
	}
	relay.Logger.Info("WebSocket relay initialized",
		zap.String("registry", cfg.RegistryBackend),
		zap.String("endpoint", cfg.WebSocketEndpoint),
	)
}

func handler(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	defer relay.Metrics.Flush(ctx)

	connectionID := req.RequestContext.ConnectionID
	routeKey := req.RequestContext.RouteKey

	status := http.StatusOK
	// the closure never fails; dispatch errors are logged by the dispatcher
	// and recorded on the subsegment
	_ = relay.Tracer.TraceFunction(ctx, segmentName(routeKey), func(ctx context.Context) error {
		relay.Tracer.AddAnnotation(ctx, "connectionID", connectionID)
		var err error
		switch routeKey {
		case "$connect":
			status, err = authorize(req)
		case "$disconnect":
			err = relay.Dispatcher.Disconnect(ctx, connectionID)
		default:
			if err = relay.Dispatcher.HandleFrame(ctx, connectionID, []byte(req.Body)); err != nil {
				status = http.StatusInternalServerError
			}
		}
		relay.Tracer.RecordError(ctx, err)
		return nil
	})
	return events.APIGatewayProxyResponse{StatusCode: status}, nil
}

func segmentName(routeKey string) string {
	switch routeKey {
	case "$connect":
		return "relay.connect"
	case "$disconnect":
		return "relay.disconnect"
	default:
		return "relay.message"
	}
}

// authorize validates the connect token when the relay requires one.
// Browsers cannot set headers on upgrade, so the token query parameter is
// accepted as well.
func authorize(req events.APIGatewayWebsocketProxyRequest) (int, error) {
	if !relay.Config.RelayRequireAuth {
		return http.StatusOK, nil
	}
	token := req.QueryStringParameters["token"]
	if token == "" {
		token = req.Headers["Authorization"]
	}
	if token == "" {
		token = req.Headers["authorization"]
	}

	claims, err := relay.Validator.ValidateToken(token)
	if err != nil {
		relay.Logger.Warn("Rejected websocket connection",
			zap.String("connectionID", req.RequestContext.ConnectionID),
			zap.Error(err),
		)
		return http.StatusUnauthorized, fmt.Errorf("connect rejected: %w", err)
	}
	relay.Logger.Debug("WebSocket connection authorized",
		zap.String("connectionID", req.RequestContext.ConnectionID),
		zap.String("userID", claims.UserID),
	)
	return http.StatusOK, nil
}

func main() {
	lambda.Start(handler)
}
