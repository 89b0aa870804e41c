package handlers

import (
	"fmt"
	"net/http"

	"mindmap/application/commands"
	"mindmap/application/commands/bus"
	"mindmap/application/queries"
	querybus "mindmap/application/queries/bus"
	"mindmap/domain/core/aggregates"
	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
	"mindmap/pkg/auth"
	"mindmap/pkg/common"
	pkgerrors "mindmap/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DocumentHandler handles mind map HTTP requests
type DocumentHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// CreateDocumentRequest is the body of POST /api/mindmaps
type CreateDocumentRequest struct {
	Title string          `json:"title,omitempty"`
	Nodes []entities.Node `json:"nodes,omitempty"`
	Edges []entities.Edge `json:"edges,omitempty"`
}

// UpdateDocumentRequest is the body of PUT /api/mindmaps/{id}. Absent
// fields are left as stored; present ones replace the stored value.
type UpdateDocumentRequest struct {
	Title *string          `json:"title,omitempty"`
	Nodes *[]entities.Node `json:"nodes,omitempty"`
	Edges *[]entities.Edge `json:"edges,omitempty"`
}

// CreateDocument handles POST /api/mindmaps
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	var req CreateDocumentRequest
	if err := common.ParseJSONBody(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	id := valueobjects.NewDocumentID()
	cmd := commands.CreateDocumentCommand{
		DocumentID: id,
		UserID:     user.UserID,
		Title:      req.Title,
		Nodes:      req.Nodes,
		Edges:      req.Edges,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	doc, err := h.getDocument(r, user.UserID, id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.logger.Info("Mind map created",
		zap.String("mindMapID", doc.ID),
		zap.String("userID", user.UserID),
		zap.Int("nodes", len(doc.Nodes)),
	)
	common.RespondJSON(w, http.StatusCreated, "Mind map created successfully", doc)
}

// GetDocument handles GET /api/mindmaps/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	doc, err := h.getDocument(r, user.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, "Mind map retrieved successfully", doc)
}

// UpdateDocument handles PUT /api/mindmaps/{id}
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	var req UpdateDocumentRequest
	if err := common.ParseJSONBody(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	cmd := commands.UpdateDocumentCommand{
		DocumentID: id,
		UserID:     user.UserID,
		Title:      req.Title,
		Nodes:      req.Nodes,
		Edges:      req.Edges,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	doc, err := h.getDocument(r, user.UserID, id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, "Mind map updated successfully", doc)
}

// ListDocuments handles GET /api/mindmaps
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ListDocumentsQuery{UserID: user.UserID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	list, ok := result.(*queries.ListDocumentsResult)
	if !ok {
		h.errors.Handle(w, r, fmt.Errorf("unexpected list result %T", result))
		return
	}
	common.RespondList(w, "Mind maps retrieved successfully", list.Count, list.Documents)
}

func (h *DocumentHandler) getDocument(r *http.Request, userID, id string) (*aggregates.Document, error) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetDocumentQuery{UserID: userID, DocumentID: id})
	if err != nil {
		return nil, err
	}
	doc, ok := result.(*aggregates.Document)
	if !ok {
		return nil, fmt.Errorf("unexpected document result %T", result)
	}
	return doc, nil
}

func (h *DocumentHandler) user(w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("User not authenticated"))
		return nil, false
	}
	return user, true
}
