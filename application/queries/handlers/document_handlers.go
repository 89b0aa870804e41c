package handlers

import (
	"context"
	"fmt"

	"mindmap/application/queries"
	"mindmap/application/queries/bus"
	"mindmap/application/services"
	"mindmap/domain/core/aggregates"
)

// GetDocumentHandler handles GetDocumentQuery
type GetDocumentHandler struct {
	service *services.DocumentService
}

// NewGetDocumentHandler creates a new handler instance
func NewGetDocumentHandler(service *services.DocumentService) *GetDocumentHandler {
	return &GetDocumentHandler{service: service}
}

// Handle executes the query
func (h *GetDocumentHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.GetDocumentQuery)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T", query)
	}
	return h.service.Get(ctx, q.UserID, q.DocumentID)
}

// ListDocumentsHandler handles ListDocumentsQuery
type ListDocumentsHandler struct {
	service *services.DocumentService
}

// NewListDocumentsHandler creates a new handler instance
func NewListDocumentsHandler(service *services.DocumentService) *ListDocumentsHandler {
	return &ListDocumentsHandler{service: service}
}

// Handle executes the query
func (h *ListDocumentsHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.ListDocumentsQuery)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T", query)
	}
	docs, err := h.service.List(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*aggregates.Document{}
	}
	return &queries.ListDocumentsResult{Documents: docs, Count: len(docs)}, nil
}

// Register wires the document query handlers into a bus
func Register(b *bus.QueryBus, service *services.DocumentService) error {
	if err := b.Register(queries.GetDocumentQuery{}, NewGetDocumentHandler(service)); err != nil {
		return err
	}
	return b.Register(queries.ListDocumentsQuery{}, NewListDocumentsHandler(service))
}
