package commands

import (
	"mindmap/domain/core/entities"
	"mindmap/pkg/utils"
)

// CreateDocumentCommand creates a mind map with a caller-minted id so the
// result can be read back through the query side
type CreateDocumentCommand struct {
	DocumentID string          `validate:"required,uuid4"`
	UserID     string          `validate:"required"`
	Title      string          `validate:"max=200"`
	Nodes      []entities.Node `validate:"dive"`
	Edges      []entities.Edge `validate:"dive"`
}

// Validate checks the command fields
func (c CreateDocumentCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// UpdateDocumentCommand replaces the provided fields of a mind map
type UpdateDocumentCommand struct {
	DocumentID string           `validate:"required"`
	UserID     string           `validate:"required"`
	Title      *string          `validate:"omitempty,max=200"`
	Nodes      *[]entities.Node `validate:"omitempty,dive"`
	Edges      *[]entities.Edge `validate:"omitempty,dive"`
}

// Validate checks the command fields
func (c UpdateDocumentCommand) Validate() error {
	return utils.ValidateStruct(c)
}
