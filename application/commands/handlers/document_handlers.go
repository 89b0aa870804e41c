package handlers

import (
	"context"
	"fmt"

	"mindmap/application/commands"
	"mindmap/application/commands/bus"
	"mindmap/application/services"
)

// CreateDocumentHandler handles CreateDocumentCommand
type CreateDocumentHandler struct {
	service *services.DocumentService
}

// NewCreateDocumentHandler creates a new handler instance
func NewCreateDocumentHandler(service *services.DocumentService) *CreateDocumentHandler {
	return &CreateDocumentHandler{service: service}
}

// Handle executes the create command
func (h *CreateDocumentHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(commands.CreateDocumentCommand)
	if !ok {
		return fmt.Errorf("unexpected command type %T", cmd)
	}
	_, err := h.service.Create(ctx, c.UserID, services.CreateDocumentInput{
		ID:    c.DocumentID,
		Title: c.Title,
		Nodes: c.Nodes,
		Edges: c.Edges,
	})
	return err
}

// UpdateDocumentHandler handles UpdateDocumentCommand
type UpdateDocumentHandler struct {
	service *services.DocumentService
}

// NewUpdateDocumentHandler creates a new handler instance
func NewUpdateDocumentHandler(service *services.DocumentService) *UpdateDocumentHandler {
	return &UpdateDocumentHandler{service: service}
}

// Handle executes the update command
func (h *UpdateDocumentHandler) Handle(ctx context.Context, cmd bus.Command) error {
	c, ok := cmd.(commands.UpdateDocumentCommand)
	if !ok {
		return fmt.Errorf("unexpected command type %T", cmd)
	}
	_, err := h.service.Update(ctx, c.UserID, c.DocumentID, services.UpdateDocumentInput{
		Title: c.Title,
		Nodes: c.Nodes,
		Edges: c.Edges,
	})
	return err
}

// Register wires the document command handlers into a bus
func Register(b *bus.CommandBus, service *services.DocumentService) error {
	if err := b.Register(commands.CreateDocumentCommand{}, NewCreateDocumentHandler(service)); err != nil {
		return err
	}
	return b.Register(commands.UpdateDocumentCommand{}, NewUpdateDocumentHandler(service))
}
