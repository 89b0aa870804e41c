package apigateway

import (
	"context"
	"errors"
	"fmt"

	"mindmap/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwTypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
)

// API is the subset of the management API client the transport uses
type API interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// Transport pushes frames to API Gateway websocket connections
type Transport struct {
	client API
	logger *zap.Logger
}

var _ ports.Transport = (*Transport)(nil)

// NewTransport creates a transport over client
func NewTransport(client API, logger *zap.Logger) *Transport {
	return &Transport{client: client, logger: logger}
}

// NewClient builds a management API client for the stage endpoint, for
// example https://abc.execute-api.eu-west-1.amazonaws.com/prod
func NewClient(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// Deliver posts one frame. A vanished connection maps to
// ports.ErrConnectionGone; a throttled droppable frame is discarded.
func (t *Transport) Deliver(ctx context.Context, connectionID string, d ports.Delivery) error {
	_, err := t.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         d.Data,
	})
	if err == nil {
		return nil
	}

	var goneErr *apigwTypes.GoneException
	if errors.As(err, &goneErr) {
		t.logger.Debug("Connection is gone", zap.String("connectionID", connectionID))
		return ports.ErrConnectionGone
	}

	var limitErr *apigwTypes.LimitExceededException
	if d.Droppable && errors.As(err, &limitErr) {
		t.logger.Debug("Dropping throttled frame", zap.String("connectionID", connectionID))
		return nil
	}

	return fmt.Errorf("failed to post to connection %s: %w", connectionID, err)
}
