package main

import (
	"context"
	"log"
	"strings"
	"time"

	"mindmap/infrastructure/config"
	"mindmap/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// identityHeaders are set here from authorizer claims and never accepted
// from the caller
var identityHeaders = []string{
	"x-api-gateway-authorized",
	"x-user-id",
	"x-user-name",
	"x-user-email",
}

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

func init() {
	coldStartTime = time.Now()
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Cleanup never runs; the execution environment is discarded whole
	container, _, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	chiRouter, ok := container.Router.Setup().(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)),
		zap.String("documentStore", cfg.DocumentStore),
	)
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	logger := container.Logger
	applyGatewayIdentity(&req, container.Config.TrustGatewayAuth)

	resp, err := chiLambda.ProxyWithContextV2(ctx, req)
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}

	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	} else {
		resp.Headers["X-Cold-Start"] = "false"
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	fields := []zap.Field{
		zap.String("method", req.RequestContext.HTTP.Method),
		zap.String("path", req.RequestContext.HTTP.Path),
		zap.String("request_id", req.RequestContext.RequestID),
		zap.Int("status_code", resp.StatusCode),
	}
	if resp.StatusCode >= 500 {
		logger.Error("Lambda error response", append(fields, zap.String("body", resp.Body))...)
	} else {
		logger.Debug("Lambda response", fields...)
	}
	return resp, err
}

// applyGatewayIdentity replaces caller-supplied identity headers with the
// claims of API Gateway's JWT authorizer when that authorizer is trusted
func applyGatewayIdentity(req *events.APIGatewayV2HTTPRequest, trusted bool) {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	for name := range req.Headers {
		for _, h := range identityHeaders {
			if strings.EqualFold(name, h) {
				delete(req.Headers, name)
			}
		}
	}
	if !trusted {
		return
	}

	authorizer := req.RequestContext.Authorizer
	if authorizer == nil || authorizer.JWT == nil {
		return
	}
	claims := authorizer.JWT.Claims
	if claims["sub"] == "" {
		return
	}
	req.Headers["X-API-Gateway-Authorized"] = "true"
	req.Headers["X-User-ID"] = claims["sub"]
	req.Headers["X-User-Name"] = claims["name"]
	req.Headers["X-User-Email"] = claims["email"]
}

func main() {
	lambda.Start(Handler)
}
