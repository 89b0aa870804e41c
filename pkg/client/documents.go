// Package client is the participant-side SDK: a relay connection, a REST
// document client and the session that ties both to a reconcile engine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"mindmap/domain/core/aggregates"
	pkgerrors "mindmap/pkg/errors"
)

const documentsPath = "/api/mindmaps"

// BreakerConfig tunes the circuit breaker in front of the document API
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used by NewDocumentClient
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// DocumentClientConfig configures a DocumentClient
type DocumentClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Breaker BreakerConfig
	// HTTPClient overrides the default client, mostly for tests
	HTTPClient *http.Client
}

// DocumentClient talks to the mind map REST endpoints as a single
// authenticated identity. Server errors and transport failures count
// against the breaker; 4xx answers do not.
type DocumentClient struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewDocumentClient creates a client for the API at cfg.BaseURL
func NewDocumentClient(cfg DocumentClientConfig, logger *zap.Logger) *DocumentClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	bc := cfg.Breaker
	if bc == (BreakerConfig{}) {
		bc = DefaultBreakerConfig()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mindmap-documents",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			appErr := pkgerrors.GetAppError(err)
			return appErr != nil && appErr.HTTPStatus > 0 && appErr.HTTPStatus < 500
		},
	})

	return &DocumentClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
		breaker: breaker,
		logger:  logger,
	}
}

// State reports the breaker state
func (c *DocumentClient) State() gobreaker.State {
	return c.breaker.State()
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Count   *int            `json:"count"`
	Data    json.RawMessage `json:"data"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// List returns every document owned by the caller, most recent first
func (c *DocumentClient) List(ctx context.Context) ([]*aggregates.Document, error) {
	var docs []*aggregates.Document
	if err := c.do(ctx, http.MethodGet, documentsPath, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get fetches one document
func (c *DocumentClient) Get(ctx context.Context, id string) (*aggregates.Document, error) {
	var doc aggregates.Document
	if err := c.do(ctx, http.MethodGet, documentsPath+"/"+id, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create stores a new document; the server assigns the id
func (c *DocumentClient) Create(ctx context.Context, doc *aggregates.Document) (*aggregates.Document, error) {
	body := map[string]interface{}{
		"title": doc.Title,
		"nodes": doc.Nodes,
		"edges": doc.Edges,
	}
	var out aggregates.Document
	if err := c.do(ctx, http.MethodPost, documentsPath, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the title, nodes and edges of an existing document
func (c *DocumentClient) Update(ctx context.Context, id string, doc *aggregates.Document) (*aggregates.Document, error) {
	body := map[string]interface{}{
		"title": doc.Title,
		"nodes": doc.Nodes,
		"edges": doc.Edges,
	}
	var out aggregates.Document
	if err := c.do(ctx, http.MethodPut, documentsPath+"/"+id, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *DocumentClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return pkgerrors.NewUnavailableError("documents").WithCause(err)
	default:
		return err
	}
}

func (c *DocumentClient) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// decodeError rebuilds the server's AppError from an error body
func decodeError(status int, raw []byte) error {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Type == "" {
		return &pkgerrors.AppError{
			Type:       typeForStatus(status),
			Message:    http.StatusText(status),
			HTTPStatus: status,
		}
	}
	return &pkgerrors.AppError{
		Type:       pkgerrors.ErrorType(body.Type),
		Message:    body.Message,
		Code:       body.Code,
		HTTPStatus: status,
	}
}

func typeForStatus(status int) pkgerrors.ErrorType {
	switch status {
	case http.StatusBadRequest:
		return pkgerrors.ErrorTypeValidation
	case http.StatusUnauthorized:
		return pkgerrors.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.ErrorTypeForbidden
	case http.StatusNotFound:
		return pkgerrors.ErrorTypeNotFound
	case http.StatusTooManyRequests:
		return pkgerrors.ErrorTypeRateLimit
	case http.StatusServiceUnavailable:
		return pkgerrors.ErrorTypeUnavailable
	default:
		return pkgerrors.ErrorTypeInternal
	}
}
